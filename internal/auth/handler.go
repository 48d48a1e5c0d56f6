package auth

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/opengradebook/gradebook/internal/apperror"
	"github.com/opengradebook/gradebook/internal/session"
)

// sessionCookieName is the HTTP cookie used to store the session id.
const sessionCookieName = "gradebook_session"

// ResetNotifier delivers a freshly issued reset token out of band (email in
// a full deployment). Delivery is an external collaborator: the core hands
// the plaintext token to this hook and forgets it.
type ResetNotifier func(ctx context.Context, email, token string)

// Handler handles HTTP requests for authentication. Handlers are thin:
// they bind the request, call the gateway, and shape the JSON response.
// No business logic lives here.
type Handler struct {
	gateway  *Gateway
	notifier ResetNotifier
}

// NewHandler creates a new auth handler. notifier may be nil, in which case
// issued reset tokens are simply dropped after persistence (useful in
// deployments where an operator reads them from a side channel).
func NewHandler(gateway *Gateway, notifier ResetNotifier) *Handler {
	return &Handler{gateway: gateway, notifier: notifier}
}

// Login processes a login submission (POST /login). On success it issues
// the session cookie and returns the identity together with the session's
// anti-forgery token for subsequent mutating requests.
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("invalid request")
	}

	user, sid, err := h.gateway.Authenticate(
		c.Request().Context(), getSessionID(c), req.Email, req.Password, originOf(c))
	if err != nil {
		return err
	}

	setSessionCookie(c, sid)

	csrfToken, err := h.gateway.CsrfToken(c.Request().Context(), sid)
	if err != nil {
		return apperror.NewInternal(err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"user":       user,
		"csrf_token": csrfToken,
	})
}

// Register processes an account creation request (POST /register).
// The new account is pending and NOT signed in: the caller must log in
// explicitly once the account is approved.
func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("invalid request")
	}

	user, err := h.gateway.Register(c.Request().Context(), RegisterInput{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Password:    req.Password,
		Confirm:     req.Confirm,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"user":    user,
		"message": "account created; awaiting approval",
	})
}

// Logout destroys the session and expires the cookie (POST /logout).
func (h *Handler) Logout(c echo.Context) error {
	if sid := getSessionID(c); sid != "" {
		h.gateway.Logout(c.Request().Context(), sid)
	}
	clearSessionCookie(c)
	return c.NoContent(http.StatusNoContent)
}

// Session reports the authentication state of the caller (GET /session).
// For a live session it echoes the identity snapshot and the current
// anti-forgery token. For a dead one it clears or replaces the cookie and
// surfaces the one-shot expiry notice, if any.
func (h *Handler) Session(c echo.Context) error {
	ctx := c.Request().Context()
	sid := getSessionID(c)

	rec, replacement, ok := h.gateway.ValidateSession(ctx, sid, originOf(c))
	if ok {
		return c.JSON(http.StatusOK, map[string]any{
			"authenticated": true,
			"identity":      rec.Identity,
			"csrf_token":    rec.CsrfToken,
		})
	}

	resp := map[string]any{"authenticated": false}
	if replacement != "" {
		// Inactivity expiry rotated the id; carry the fresh cookie and the
		// one-shot notice to the client.
		setSessionCookie(c, replacement)
		if notice := h.gateway.PopNotice(ctx, replacement); notice != "" {
			resp["notice"] = notice
		}
	} else if sid != "" {
		clearSessionCookie(c)
	}
	return c.JSON(http.StatusOK, resp)
}

// RefreshCsrf mints a new anti-forgery token for the session on explicit
// client request (POST /session/csrf). The previous token stops verifying
// immediately.
func (h *Handler) RefreshCsrf(c echo.Context) error {
	token, err := h.gateway.RotateCsrf(c.Request().Context(), GetSessionID(c))
	if err != nil {
		return apperror.NewInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"csrf_token": token})
}

// ChangePassword updates the caller's credential (POST /password).
// Requires an active session and re-verification of the current password.
func (h *Handler) ChangePassword(c echo.Context) error {
	var req ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("invalid request")
	}
	if req.NewPassword != req.Confirm {
		return apperror.NewValidation("passwords do not match")
	}

	ctx := c.Request().Context()
	sid := GetSessionID(c)
	if err := h.gateway.UpdateCredential(ctx, sid, originOf(c), req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}

	csrfToken, err := h.gateway.CsrfToken(ctx, sid)
	if err != nil {
		return apperror.NewInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"message":    "password updated",
		"csrf_token": csrfToken,
	})
}

// ForgotPassword starts the recovery flow (POST /password/forgot).
// The response is identical whether or not the email has an account, so
// the endpoint cannot be used to enumerate accounts.
func (h *Handler) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("invalid request")
	}

	ctx := c.Request().Context()
	token, err := h.gateway.IssueResetToken(ctx, req.Email)
	if err != nil {
		if apperror.IsType(err, apperror.TypeValidation) {
			return err
		}
		// Storage failures are logged upstream; the caller still gets the
		// generic acceptance so nothing about the account leaks.
	}
	if token != "" && h.notifier != nil {
		h.notifier(ctx, normalizeEmail(req.Email), token)
	}

	return c.JSON(http.StatusAccepted, map[string]any{
		"message": "if that email has an account, a reset link is on its way",
	})
}

// CheckResetToken reports whether a reset token is currently redeemable
// (GET /password/reset?token=...). Non-consuming; the UI uses it to decide
// whether to render the new-password form. Redemption re-checks everything.
func (h *Handler) CheckResetToken(c echo.Context) error {
	token := c.QueryParam("token")
	return c.JSON(http.StatusOK, map[string]any{
		"valid": token != "" && h.gateway.ResetTokenValid(c.Request().Context(), token),
	})
}

// ResetPassword redeems a recovery token (POST /password/reset).
func (h *Handler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewValidation("invalid request")
	}
	if req.Password != req.Confirm {
		return apperror.NewValidation("passwords do not match")
	}

	if _, err := h.gateway.RedeemResetToken(c.Request().Context(), req.Token, req.Password); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"message": "password reset; you can now sign in",
	})
}

// --- Request helpers ---

// originOf captures the request origin a session is bound to. c.RealIP()
// resolves the true client address through the trusted-proxy extractor.
func originOf(c echo.Context) session.Origin {
	return session.Origin{
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}

// getSessionID reads the session id from the cookie.
func getSessionID(c echo.Context) string {
	cookie, err := c.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	return cookie.Value
}

// setSessionCookie sets the session cookie on the response. The cookie is
// HttpOnly (JS can't read it), Secure behind TLS, SameSite=Lax, scoped to
// the whole application, and carries no Max-Age or Expires: the browser
// holds it for the browsing session, and the server-side inactivity check
// is the real lifetime bound.
func setSessionCookie(c echo.Context, id string) {
	req := c.Request()
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   req.TLS != nil || req.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie removes the session cookie by setting MaxAge to -1.
func clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
