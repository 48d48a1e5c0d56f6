package grades

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opengradebook/gradebook/internal/apperror"
	"github.com/opengradebook/gradebook/internal/auth"
	"github.com/opengradebook/gradebook/internal/session"
)

// --- Mock Repository ---

// mockRepo implements Repository for testing.
type mockRepo struct {
	createSubjectFn    func(ctx context.Context, s *Subject) error
	findSubjectFn      func(ctx context.Context, id string) (*Subject, error)
	listSubjectsFn     func(ctx context.Context) ([]Subject, error)
	renameSubjectFn    func(ctx context.Context, id, name string) error
	deleteSubjectFn    func(ctx context.Context, id string) error
	createEvaluationFn func(ctx context.Context, e *Evaluation) error
	findEvaluationFn   func(ctx context.Context, id string) (*Evaluation, error)
	listEvaluationsFn  func(ctx context.Context, subjectID string) ([]Evaluation, error)
	upsertGradeFn      func(ctx context.Context, g *Grade) error
	listEvalGradesFn   func(ctx context.Context, evaluationID string) ([]Grade, error)
	listMyGradesFn     func(ctx context.Context, studentID string) ([]Grade, error)
}

func (m *mockRepo) CreateSubject(ctx context.Context, s *Subject) error {
	if m.createSubjectFn != nil {
		return m.createSubjectFn(ctx, s)
	}
	return nil
}

func (m *mockRepo) FindSubject(ctx context.Context, id string) (*Subject, error) {
	if m.findSubjectFn != nil {
		return m.findSubjectFn(ctx, id)
	}
	return nil, apperror.NewNotFound("subject not found")
}

func (m *mockRepo) ListSubjects(ctx context.Context) ([]Subject, error) {
	if m.listSubjectsFn != nil {
		return m.listSubjectsFn(ctx)
	}
	return nil, nil
}

func (m *mockRepo) RenameSubject(ctx context.Context, id, name string) error {
	if m.renameSubjectFn != nil {
		return m.renameSubjectFn(ctx, id, name)
	}
	return nil
}

func (m *mockRepo) DeleteSubject(ctx context.Context, id string) error {
	if m.deleteSubjectFn != nil {
		return m.deleteSubjectFn(ctx, id)
	}
	return nil
}

func (m *mockRepo) CreateEvaluation(ctx context.Context, e *Evaluation) error {
	if m.createEvaluationFn != nil {
		return m.createEvaluationFn(ctx, e)
	}
	return nil
}

func (m *mockRepo) FindEvaluation(ctx context.Context, id string) (*Evaluation, error) {
	if m.findEvaluationFn != nil {
		return m.findEvaluationFn(ctx, id)
	}
	return nil, apperror.NewNotFound("evaluation not found")
}

func (m *mockRepo) ListEvaluations(ctx context.Context, subjectID string) ([]Evaluation, error) {
	if m.listEvaluationsFn != nil {
		return m.listEvaluationsFn(ctx, subjectID)
	}
	return nil, nil
}

func (m *mockRepo) UpsertGrade(ctx context.Context, g *Grade) error {
	if m.upsertGradeFn != nil {
		return m.upsertGradeFn(ctx, g)
	}
	return nil
}

func (m *mockRepo) ListGradesForEvaluation(ctx context.Context, evaluationID string) ([]Grade, error) {
	if m.listEvalGradesFn != nil {
		return m.listEvalGradesFn(ctx, evaluationID)
	}
	return nil, nil
}

func (m *mockRepo) ListGradesForStudent(ctx context.Context, studentID string) ([]Grade, error) {
	if m.listMyGradesFn != nil {
		return m.listMyGradesFn(ctx, studentID)
	}
	return nil, nil
}

// --- Test Helpers ---

func teacherCaller() *session.Identity {
	return &session.Identity{ID: "teacher-1", Role: auth.RoleTeacher}
}

func studentCaller() *session.Identity {
	return &session.Identity{ID: "student-1", Role: auth.RoleStudent}
}

func adminCaller() *session.Identity {
	return &session.Identity{ID: "admin-1", Role: auth.RoleAdmin, IsAdmin: true}
}

func ownedSubjectRepo() *mockRepo {
	return &mockRepo{
		findSubjectFn: func(ctx context.Context, id string) (*Subject, error) {
			return &Subject{ID: id, Name: "Mathematics", TeacherID: "teacher-1", CreatedAt: time.Now().UTC()}, nil
		},
	}
}

func assertAppError(t *testing.T, err error, expectedType string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", expectedType)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Type != expectedType {
		t.Errorf("expected error type %s, got %s (message: %s)", expectedType, appErr.Type, appErr.Message)
	}
}

// --- Subject Tests ---

func TestCreateSubject_Teacher(t *testing.T) {
	var created *Subject
	repo := &mockRepo{
		createSubjectFn: func(ctx context.Context, s *Subject) error {
			created = s
			return nil
		},
	}
	svc := NewService(repo)

	subject, err := svc.CreateSubject(context.Background(), teacherCaller(), SubjectRequest{Name: "  Mathematics  "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject.ID == "" {
		t.Error("expected generated subject id")
	}
	if created.Name != "Mathematics" {
		t.Errorf("expected trimmed name, got %q", created.Name)
	}
	if created.TeacherID != "teacher-1" {
		t.Errorf("expected caller as owner, got %s", created.TeacherID)
	}
}

func TestCreateSubject_StudentForbidden(t *testing.T) {
	svc := NewService(&mockRepo{})
	_, err := svc.CreateSubject(context.Background(), studentCaller(), SubjectRequest{Name: "Mathematics"})
	assertAppError(t, err, apperror.TypeForbidden)
}

func TestCreateSubject_NilCaller(t *testing.T) {
	svc := NewService(&mockRepo{})
	_, err := svc.CreateSubject(context.Background(), nil, SubjectRequest{Name: "Mathematics"})
	assertAppError(t, err, apperror.TypeUnauthorized)
}

func TestCreateSubject_EmptyName(t *testing.T) {
	svc := NewService(&mockRepo{})
	_, err := svc.CreateSubject(context.Background(), teacherCaller(), SubjectRequest{Name: "   "})
	assertAppError(t, err, apperror.TypeValidation)
}

func TestRenameSubject_Ownership(t *testing.T) {
	svc := NewService(ownedSubjectRepo())
	ctx := context.Background()

	if err := svc.RenameSubject(ctx, teacherCaller(), "subj-1", SubjectRequest{Name: "Algebra"}); err != nil {
		t.Errorf("expected owner rename to succeed, got %v", err)
	}
	if err := svc.RenameSubject(ctx, adminCaller(), "subj-1", SubjectRequest{Name: "Algebra"}); err != nil {
		t.Errorf("expected admin rename to succeed, got %v", err)
	}

	other := &session.Identity{ID: "teacher-2", Role: auth.RoleTeacher}
	assertAppError(t, svc.RenameSubject(ctx, other, "subj-1", SubjectRequest{Name: "Algebra"}), apperror.TypeForbidden)
}

func TestDeleteSubject_UnknownSubject(t *testing.T) {
	svc := NewService(&mockRepo{})
	err := svc.DeleteSubject(context.Background(), teacherCaller(), "no-such-subject")
	assertAppError(t, err, apperror.TypeNotFound)
}

// --- Evaluation Tests ---

func TestCreateEvaluation_Success(t *testing.T) {
	repo := ownedSubjectRepo()
	var created *Evaluation
	repo.createEvaluationFn = func(ctx context.Context, e *Evaluation) error {
		created = e
		return nil
	}
	svc := NewService(repo)

	eval, err := svc.CreateEvaluation(context.Background(), teacherCaller(), "subj-1", EvaluationRequest{Title: "Midterm", Weight: 0.4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eval.SubjectID != "subj-1" || created.Title != "Midterm" {
		t.Errorf("unexpected evaluation: %+v", created)
	}
}

func TestCreateEvaluation_Validation(t *testing.T) {
	svc := NewService(ownedSubjectRepo())
	ctx := context.Background()

	_, err := svc.CreateEvaluation(ctx, teacherCaller(), "subj-1", EvaluationRequest{Title: "", Weight: 0.4})
	assertAppError(t, err, apperror.TypeValidation)

	_, err = svc.CreateEvaluation(ctx, teacherCaller(), "subj-1", EvaluationRequest{Title: "Midterm", Weight: 0})
	assertAppError(t, err, apperror.TypeValidation)
}

// --- Grade Tests ---

func gradingRepo() *mockRepo {
	repo := ownedSubjectRepo()
	repo.findEvaluationFn = func(ctx context.Context, id string) (*Evaluation, error) {
		return &Evaluation{ID: id, SubjectID: "subj-1", Title: "Midterm", Weight: 0.4}, nil
	}
	return repo
}

func TestRecordGrade_Success(t *testing.T) {
	repo := gradingRepo()
	var saved *Grade
	repo.upsertGradeFn = func(ctx context.Context, g *Grade) error {
		saved = g
		return nil
	}
	svc := NewService(repo)

	grade, err := svc.RecordGrade(context.Background(), teacherCaller(), "eval-1", "student-1", GradeRequest{Score: 87.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if grade.Score != 87.5 || saved.StudentID != "student-1" {
		t.Errorf("unexpected grade: %+v", saved)
	}
	if saved.GradedBy != "teacher-1" {
		t.Errorf("expected grader recorded, got %s", saved.GradedBy)
	}
}

func TestRecordGrade_ScoreBounds(t *testing.T) {
	svc := NewService(gradingRepo())
	ctx := context.Background()

	_, err := svc.RecordGrade(ctx, teacherCaller(), "eval-1", "student-1", GradeRequest{Score: -1})
	assertAppError(t, err, apperror.TypeValidation)

	_, err = svc.RecordGrade(ctx, teacherCaller(), "eval-1", "student-1", GradeRequest{Score: 100.5})
	assertAppError(t, err, apperror.TypeValidation)

	if _, err := svc.RecordGrade(ctx, teacherCaller(), "eval-1", "student-1", GradeRequest{Score: 0}); err != nil {
		t.Errorf("expected score 0 accepted, got %v", err)
	}
	if _, err := svc.RecordGrade(ctx, teacherCaller(), "eval-1", "student-1", GradeRequest{Score: 100}); err != nil {
		t.Errorf("expected score 100 accepted, got %v", err)
	}
}

func TestRecordGrade_NonOwnerForbidden(t *testing.T) {
	svc := NewService(gradingRepo())

	other := &session.Identity{ID: "teacher-2", Role: auth.RoleTeacher}
	_, err := svc.RecordGrade(context.Background(), other, "eval-1", "student-1", GradeRequest{Score: 50})
	assertAppError(t, err, apperror.TypeForbidden)
}

func TestListEvaluationGrades_OwnerOnly(t *testing.T) {
	repo := gradingRepo()
	repo.listEvalGradesFn = func(ctx context.Context, evaluationID string) ([]Grade, error) {
		return []Grade{{ID: "g-1", EvaluationID: evaluationID, StudentID: "student-1", Score: 90}}, nil
	}
	svc := NewService(repo)
	ctx := context.Background()

	grades, err := svc.ListEvaluationGrades(ctx, teacherCaller(), "eval-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(grades) != 1 {
		t.Errorf("expected 1 grade, got %d", len(grades))
	}

	_, err = svc.ListEvaluationGrades(ctx, studentCaller(), "eval-1")
	assertAppError(t, err, apperror.TypeForbidden)
}

func TestMyGrades(t *testing.T) {
	repo := &mockRepo{
		listMyGradesFn: func(ctx context.Context, studentID string) ([]Grade, error) {
			if studentID != "student-1" {
				t.Errorf("expected caller's own id, got %s", studentID)
			}
			return []Grade{{ID: "g-1", StudentID: studentID, Score: 72}}, nil
		},
	}
	svc := NewService(repo)

	grades, err := svc.MyGrades(context.Background(), studentCaller())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(grades) != 1 || grades[0].Score != 72 {
		t.Errorf("unexpected grades: %+v", grades)
	}
}

func TestWrapStoreErr(t *testing.T) {
	typed := apperror.NewNotFound("subject not found")
	if wrapStoreErr(typed) != typed {
		t.Error("expected typed errors passed through unchanged")
	}
	assertAppError(t, wrapStoreErr(errors.New("connection refused")), apperror.TypeInternal)
}
