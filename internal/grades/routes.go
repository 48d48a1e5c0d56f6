package grades

import (
	"github.com/labstack/echo/v4"

	"github.com/opengradebook/gradebook/internal/auth"
)

// RegisterRoutes sets up the grading routes. Everything requires a valid
// session; mutating routes additionally pass the anti-forgery check.
// Finer-grained rules (subject ownership, teacher role) live in the service.
func RegisterRoutes(e *echo.Echo, h *Handler, gateway *auth.Gateway) {
	g := e.Group("", auth.RequireAuth(gateway), auth.CSRF(gateway))

	g.GET("/subjects", h.ListSubjects)
	g.POST("/subjects", h.CreateSubject)
	g.GET("/subjects/:id", h.GetSubject)
	g.PUT("/subjects/:id", h.RenameSubject)
	g.DELETE("/subjects/:id", h.DeleteSubject)

	g.GET("/subjects/:id/evaluations", h.ListEvaluations)
	g.POST("/subjects/:id/evaluations", h.CreateEvaluation)

	g.GET("/evaluations/:id/grades", h.ListEvaluationGrades)
	g.PUT("/evaluations/:id/grades/:studentID", h.RecordGrade)

	g.GET("/grades", h.MyGrades)
}
