package grades

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opengradebook/gradebook/internal/apperror"
	"github.com/opengradebook/gradebook/internal/auth"
	"github.com/opengradebook/gradebook/internal/session"
)

// Service holds the business rules for the grading surface. The rules are
// deliberately thin: teachers manage their own subjects, students read
// their own grades, admins are unrestricted. Who the caller is comes from
// the identity snapshot the auth middleware resolved for this request.
type Service struct {
	repo Repository
}

// NewService creates a grades service over the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateSubject creates a subject owned by the calling teacher.
func (s *Service) CreateSubject(ctx context.Context, caller *session.Identity, input SubjectRequest) (*Subject, error) {
	if err := requireTeacher(caller); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperror.NewValidation("subject name is required")
	}

	subject := &Subject{
		ID:        uuid.NewString(),
		Name:      name,
		TeacherID: caller.ID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateSubject(ctx, subject); err != nil {
		return nil, apperror.NewInternal(err)
	}
	return subject, nil
}

// ListSubjects returns all subjects. Visible to every authenticated user.
func (s *Service) ListSubjects(ctx context.Context) ([]Subject, error) {
	subjects, err := s.repo.ListSubjects(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return subjects, nil
}

// GetSubject returns one subject by id.
func (s *Service) GetSubject(ctx context.Context, id string) (*Subject, error) {
	subject, err := s.repo.FindSubject(ctx, id)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return subject, nil
}

// RenameSubject renames a subject. Owning teacher or admin only.
func (s *Service) RenameSubject(ctx context.Context, caller *session.Identity, id string, input SubjectRequest) error {
	if _, err := s.ownedSubject(ctx, caller, id); err != nil {
		return err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return apperror.NewValidation("subject name is required")
	}
	if err := s.repo.RenameSubject(ctx, id, name); err != nil {
		return wrapStoreErr(err)
	}
	return nil
}

// DeleteSubject deletes a subject and (via schema cascade) its evaluations
// and grades. Owning teacher or admin only.
func (s *Service) DeleteSubject(ctx context.Context, caller *session.Identity, id string) error {
	if _, err := s.ownedSubject(ctx, caller, id); err != nil {
		return err
	}
	if err := s.repo.DeleteSubject(ctx, id); err != nil {
		return wrapStoreErr(err)
	}
	return nil
}

// CreateEvaluation adds an evaluation to a subject. Owning teacher or
// admin only.
func (s *Service) CreateEvaluation(ctx context.Context, caller *session.Identity, subjectID string, input EvaluationRequest) (*Evaluation, error) {
	if _, err := s.ownedSubject(ctx, caller, subjectID); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperror.NewValidation("evaluation title is required")
	}
	if input.Weight <= 0 {
		return nil, apperror.NewValidation("evaluation weight must be positive")
	}

	eval := &Evaluation{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		Title:     title,
		Weight:    input.Weight,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateEvaluation(ctx, eval); err != nil {
		return nil, apperror.NewInternal(err)
	}
	return eval, nil
}

// ListEvaluations returns a subject's evaluations.
func (s *Service) ListEvaluations(ctx context.Context, subjectID string) ([]Evaluation, error) {
	if _, err := s.repo.FindSubject(ctx, subjectID); err != nil {
		return nil, wrapStoreErr(err)
	}
	evals, err := s.repo.ListEvaluations(ctx, subjectID)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return evals, nil
}

// RecordGrade records or replaces a student's score on an evaluation.
// Only the teacher owning the evaluation's subject (or an admin) may grade.
func (s *Service) RecordGrade(ctx context.Context, caller *session.Identity, evaluationID, studentID string, input GradeRequest) (*Grade, error) {
	eval, err := s.repo.FindEvaluation(ctx, evaluationID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if _, err := s.ownedSubject(ctx, caller, eval.SubjectID); err != nil {
		return nil, err
	}
	if input.Score < 0 || input.Score > 100 {
		return nil, apperror.NewValidation("score must be between 0 and 100")
	}

	grade := &Grade{
		ID:           uuid.NewString(),
		EvaluationID: evaluationID,
		StudentID:    studentID,
		Score:        input.Score,
		GradedBy:     caller.ID,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := s.repo.UpsertGrade(ctx, grade); err != nil {
		return nil, apperror.NewInternal(err)
	}
	return grade, nil
}

// ListEvaluationGrades returns all grades on an evaluation. Owning teacher
// or admin only.
func (s *Service) ListEvaluationGrades(ctx context.Context, caller *session.Identity, evaluationID string) ([]Grade, error) {
	eval, err := s.repo.FindEvaluation(ctx, evaluationID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if _, err := s.ownedSubject(ctx, caller, eval.SubjectID); err != nil {
		return nil, err
	}
	grades, err := s.repo.ListGradesForEvaluation(ctx, evaluationID)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return grades, nil
}

// MyGrades returns the caller's own grades.
func (s *Service) MyGrades(ctx context.Context, caller *session.Identity) ([]Grade, error) {
	grades, err := s.repo.ListGradesForStudent(ctx, caller.ID)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return grades, nil
}

// --- Access helpers ---

// ownedSubject loads the subject and checks the caller may manage it:
// the owning teacher or an admin.
func (s *Service) ownedSubject(ctx context.Context, caller *session.Identity, subjectID string) (*Subject, error) {
	if caller == nil {
		return nil, apperror.NewUnauthorized("authentication required")
	}
	subject, err := s.repo.FindSubject(ctx, subjectID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if !caller.IsAdmin && subject.TeacherID != caller.ID {
		return nil, apperror.NewForbidden("you do not manage this subject")
	}
	return subject, nil
}

// requireTeacher allows teachers and admins.
func requireTeacher(caller *session.Identity) error {
	if caller == nil {
		return apperror.NewUnauthorized("authentication required")
	}
	if caller.IsAdmin || caller.Role == auth.RoleTeacher {
		return nil
	}
	return apperror.NewForbidden("teacher access required")
}

// wrapStoreErr passes typed domain errors through and wraps raw store
// failures as internal errors.
func wrapStoreErr(err error) error {
	if _, ok := err.(*apperror.AppError); ok {
		return err
	}
	return apperror.NewInternal(fmt.Errorf("grades store: %w", err))
}
