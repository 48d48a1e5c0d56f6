package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/opengradebook/gradebook/internal/auth"
	"github.com/opengradebook/gradebook/internal/grades"
	"github.com/opengradebook/gradebook/internal/session"
)

// RegisterRoutes constructs the feature services with their dependencies
// and registers all application routes. This is the single place where the
// object graph is assembled; nothing reaches for a shared singleton.
func (a *App) RegisterRoutes() {
	e := a.Echo

	// Session infrastructure: Redis-backed store, manager, CSRF guard.
	store := session.NewRedisStore(a.Redis)
	manager := session.NewManager(store, a.Config.Auth.SessionLifetime, a.Config.Auth.Binding)
	guard := session.NewGuard(store, a.Config.Auth.SessionLifetime)

	// Auth core.
	identities := auth.NewIdentityStore(a.DB)
	resetTokens := auth.NewResetTokenStore(a.DB)
	resetSvc := auth.NewPasswordResetService(identities, resetTokens, a.Config.Auth.ResetTokenTTL)
	gateway := auth.NewGateway(identities, manager, guard, resetSvc)

	// Reset token delivery. Email transport is an external collaborator;
	// in development the token is logged so the flow can be exercised
	// end to end without a mail server.
	var notifier auth.ResetNotifier
	if a.Config.IsDevelopment() {
		notifier = func(ctx context.Context, email, token string) {
			slog.Debug("password reset link",
				slog.String("email", email),
				slog.String("url", a.Config.BaseURL+"/password/reset?token="+token),
			)
		}
	}

	authHandler := auth.NewHandler(gateway, notifier)
	auth.RegisterRoutes(e, authHandler, gateway)

	// Grading surface.
	gradesSvc := grades.NewService(grades.NewRepository(a.DB))
	grades.RegisterRoutes(e, grades.NewHandler(gradesSvc, gateway), gateway)

	// Health check endpoint for container health monitoring.
	e.GET("/healthz", func(c echo.Context) error {
		ctx := c.Request().Context()
		if err := a.DB.PingContext(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "db unreachable"})
		}
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "redis unreachable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}
