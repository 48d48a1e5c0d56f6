package auth

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up all auth-related routes on the given Echo instance.
// Login, registration, and the recovery flow are public; everything else
// runs behind RequireAuth + CSRF. The middleware is exported separately for
// other packages to use on their own route groups.
func RegisterRoutes(e *echo.Echo, h *Handler, gateway *Gateway) {
	// Public routes -- no session required.
	e.POST("/login", h.Login)
	e.POST("/register", h.Register)
	e.GET("/session", h.Session)
	e.POST("/password/forgot", h.ForgotPassword)
	e.GET("/password/reset", h.CheckResetToken)
	e.POST("/password/reset", h.ResetPassword)

	// Authenticated, CSRF-protected routes.
	authed := e.Group("", RequireAuth(gateway), CSRF(gateway))
	authed.POST("/logout", h.Logout)
	authed.POST("/session/csrf", h.RefreshCsrf)
	authed.POST("/password", h.ChangePassword)
}
