package grades

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/opengradebook/gradebook/internal/apperror"
	"github.com/opengradebook/gradebook/internal/auth"
)

// Handler handles HTTP requests for the grading surface. Handlers are
// thin: bind, call the service with the caller's identity, shape JSON.
type Handler struct {
	service *Service
	gateway *auth.Gateway
}

// NewHandler creates a new grades handler.
func NewHandler(service *Service, gateway *auth.Gateway) *Handler {
	return &Handler{service: service, gateway: gateway}
}

// mutated writes the success response for a state-changing request.
// Every such response carries the session's current anti-forgery token
// alongside the payload, so clients always hold a usable token for the
// next mutation.
func (h *Handler) mutated(c echo.Context, status int, payload map[string]any) error {
	token, err := h.gateway.CsrfToken(c.Request().Context(), auth.GetSessionID(c))
	if err != nil {
		return apperror.NewInternal(err)
	}
	payload["csrf_token"] = token
	return c.JSON(status, payload)
}

// CreateSubject handles POST /subjects.
func (h *Handler) CreateSubject(c echo.Context) error {
	var req SubjectRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("invalid request")
	}
	subject, err := h.service.CreateSubject(c.Request().Context(), auth.GetIdentity(c), req)
	if err != nil {
		return err
	}
	return h.mutated(c, http.StatusCreated, map[string]any{"subject": subject})
}

// ListSubjects handles GET /subjects.
func (h *Handler) ListSubjects(c echo.Context) error {
	subjects, err := h.service.ListSubjects(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, subjects)
}

// GetSubject handles GET /subjects/:id.
func (h *Handler) GetSubject(c echo.Context) error {
	subject, err := h.service.GetSubject(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, subject)
}

// RenameSubject handles PUT /subjects/:id.
func (h *Handler) RenameSubject(c echo.Context) error {
	var req SubjectRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("invalid request")
	}
	if err := h.service.RenameSubject(c.Request().Context(), auth.GetIdentity(c), c.Param("id"), req); err != nil {
		return err
	}
	return h.mutated(c, http.StatusOK, map[string]any{"message": "subject renamed"})
}

// DeleteSubject handles DELETE /subjects/:id.
func (h *Handler) DeleteSubject(c echo.Context) error {
	if err := h.service.DeleteSubject(c.Request().Context(), auth.GetIdentity(c), c.Param("id")); err != nil {
		return err
	}
	return h.mutated(c, http.StatusOK, map[string]any{"message": "subject deleted"})
}

// CreateEvaluation handles POST /subjects/:id/evaluations.
func (h *Handler) CreateEvaluation(c echo.Context) error {
	var req EvaluationRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("invalid request")
	}
	eval, err := h.service.CreateEvaluation(c.Request().Context(), auth.GetIdentity(c), c.Param("id"), req)
	if err != nil {
		return err
	}
	return h.mutated(c, http.StatusCreated, map[string]any{"evaluation": eval})
}

// ListEvaluations handles GET /subjects/:id/evaluations.
func (h *Handler) ListEvaluations(c echo.Context) error {
	evals, err := h.service.ListEvaluations(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, evals)
}

// RecordGrade handles PUT /evaluations/:id/grades/:studentID.
func (h *Handler) RecordGrade(c echo.Context) error {
	var req GradeRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("invalid request")
	}
	grade, err := h.service.RecordGrade(c.Request().Context(), auth.GetIdentity(c),
		c.Param("id"), c.Param("studentID"), req)
	if err != nil {
		return err
	}
	return h.mutated(c, http.StatusOK, map[string]any{"grade": grade})
}

// ListEvaluationGrades handles GET /evaluations/:id/grades.
func (h *Handler) ListEvaluationGrades(c echo.Context) error {
	grades, err := h.service.ListEvaluationGrades(c.Request().Context(), auth.GetIdentity(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, grades)
}

// MyGrades handles GET /grades.
func (h *Handler) MyGrades(c echo.Context) error {
	grades, err := h.service.MyGrades(c.Request().Context(), auth.GetIdentity(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, grades)
}
