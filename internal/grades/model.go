// Package grades implements the grade-management surface of Gradebook:
// subjects, their evaluations, and the scores students receive on them.
// The logic here is routine validation and SQL mapping; everything
// security-sensitive is delegated to the auth package's middleware and
// role queries.
package grades

import (
	"time"
)

// Subject is a course taught by one teacher.
type Subject struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TeacherID string    `json:"teacher_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Evaluation is a weighted assessment within a subject (exam, homework,
// project). Weights are relative within a subject; they are not required
// to sum to anything.
type Evaluation struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subject_id"`
	Title     string    `json:"title"`
	Weight    float64   `json:"weight"`
	CreatedAt time.Time `json:"created_at"`
}

// Grade is a student's score on one evaluation, 0-100 scale.
type Grade struct {
	ID           string    `json:"id"`
	EvaluationID string    `json:"evaluation_id"`
	StudentID    string    `json:"student_id"`
	Score        float64   `json:"score"`
	GradedBy     string    `json:"graded_by"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// --- Request DTOs ---

// SubjectRequest creates or renames a subject.
type SubjectRequest struct {
	Name string `json:"name" form:"name"`
}

// EvaluationRequest creates an evaluation within a subject.
type EvaluationRequest struct {
	Title  string  `json:"title" form:"title"`
	Weight float64 `json:"weight" form:"weight"`
}

// GradeRequest records or updates a student's score.
type GradeRequest struct {
	Score float64 `json:"score" form:"score"`
}
