package grades

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opengradebook/gradebook/internal/apperror"
)

// Repository defines the data access contract for subjects, evaluations,
// and grades. All SQL lives in the concrete implementation.
type Repository interface {
	CreateSubject(ctx context.Context, s *Subject) error
	FindSubject(ctx context.Context, id string) (*Subject, error)
	ListSubjects(ctx context.Context) ([]Subject, error)
	RenameSubject(ctx context.Context, id, name string) error
	DeleteSubject(ctx context.Context, id string) error

	CreateEvaluation(ctx context.Context, e *Evaluation) error
	FindEvaluation(ctx context.Context, id string) (*Evaluation, error)
	ListEvaluations(ctx context.Context, subjectID string) ([]Evaluation, error)

	UpsertGrade(ctx context.Context, g *Grade) error
	ListGradesForEvaluation(ctx context.Context, evaluationID string) ([]Grade, error)
	ListGradesForStudent(ctx context.Context, studentID string) ([]Grade, error)
}

// repository implements Repository with hand-written MariaDB queries.
type repository struct {
	db *sql.DB
}

// NewRepository creates a grades repository backed by the given DB pool.
func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateSubject(ctx context.Context, s *Subject) error {
	query := `INSERT INTO subjects (id, name, teacher_id, created_at) VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, s.ID, s.Name, s.TeacherID, s.CreatedAt); err != nil {
		return fmt.Errorf("inserting subject: %w", err)
	}
	return nil
}

func (r *repository) FindSubject(ctx context.Context, id string) (*Subject, error) {
	query := `SELECT id, name, teacher_id, created_at FROM subjects WHERE id = ?`

	s := &Subject{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.Name, &s.TeacherID, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("subject not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying subject: %w", err)
	}
	return s, nil
}

func (r *repository) ListSubjects(ctx context.Context) ([]Subject, error) {
	query := `SELECT id, name, teacher_id, created_at FROM subjects ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing subjects: %w", err)
	}
	defer rows.Close()

	var subjects []Subject
	for rows.Next() {
		var s Subject
		if err := rows.Scan(&s.ID, &s.Name, &s.TeacherID, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning subject row: %w", err)
		}
		subjects = append(subjects, s)
	}
	return subjects, rows.Err()
}

func (r *repository) RenameSubject(ctx context.Context, id, name string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE subjects SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("renaming subject: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperror.NewNotFound("subject not found")
	}
	return nil
}

func (r *repository) DeleteSubject(ctx context.Context, id string) error {
	// Evaluations and grades cascade via foreign keys (see migrations).
	result, err := r.db.ExecContext(ctx, `DELETE FROM subjects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting subject: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperror.NewNotFound("subject not found")
	}
	return nil
}

func (r *repository) CreateEvaluation(ctx context.Context, e *Evaluation) error {
	query := `INSERT INTO evaluations (id, subject_id, title, weight, created_at)
	          VALUES (?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, e.ID, e.SubjectID, e.Title, e.Weight, e.CreatedAt); err != nil {
		return fmt.Errorf("inserting evaluation: %w", err)
	}
	return nil
}

func (r *repository) FindEvaluation(ctx context.Context, id string) (*Evaluation, error) {
	query := `SELECT id, subject_id, title, weight, created_at FROM evaluations WHERE id = ?`

	e := &Evaluation{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&e.ID, &e.SubjectID, &e.Title, &e.Weight, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("evaluation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying evaluation: %w", err)
	}
	return e, nil
}

func (r *repository) ListEvaluations(ctx context.Context, subjectID string) ([]Evaluation, error) {
	query := `SELECT id, subject_id, title, weight, created_at
	          FROM evaluations WHERE subject_id = ? ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("listing evaluations: %w", err)
	}
	defer rows.Close()

	var evals []Evaluation
	for rows.Next() {
		var e Evaluation
		if err := rows.Scan(&e.ID, &e.SubjectID, &e.Title, &e.Weight, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning evaluation row: %w", err)
		}
		evals = append(evals, e)
	}
	return evals, rows.Err()
}

// UpsertGrade inserts or updates the score for (evaluation, student).
// One row per pair, enforced by a unique key in the schema.
func (r *repository) UpsertGrade(ctx context.Context, g *Grade) error {
	query := `INSERT INTO grades (id, evaluation_id, student_id, score, graded_by, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?)
	          ON DUPLICATE KEY UPDATE score = VALUES(score), graded_by = VALUES(graded_by),
	                                  updated_at = VALUES(updated_at)`

	_, err := r.db.ExecContext(ctx, query,
		g.ID, g.EvaluationID, g.StudentID, g.Score, g.GradedBy, g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting grade: %w", err)
	}
	return nil
}

func (r *repository) ListGradesForEvaluation(ctx context.Context, evaluationID string) ([]Grade, error) {
	query := `SELECT id, evaluation_id, student_id, score, graded_by, updated_at
	          FROM grades WHERE evaluation_id = ? ORDER BY student_id`

	return r.listGrades(ctx, query, evaluationID)
}

func (r *repository) ListGradesForStudent(ctx context.Context, studentID string) ([]Grade, error) {
	query := `SELECT id, evaluation_id, student_id, score, graded_by, updated_at
	          FROM grades WHERE student_id = ? ORDER BY updated_at DESC`

	return r.listGrades(ctx, query, studentID)
}

func (r *repository) listGrades(ctx context.Context, query string, arg any) ([]Grade, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("listing grades: %w", err)
	}
	defer rows.Close()

	var grades []Grade
	for rows.Next() {
		var g Grade
		if err := rows.Scan(&g.ID, &g.EvaluationID, &g.StudentID, &g.Score, &g.GradedBy, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning grade row: %w", err)
		}
		grades = append(grades, g)
	}
	return grades, rows.Err()
}
