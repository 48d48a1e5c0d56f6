package auth

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/opengradebook/gradebook/internal/apperror"
	"github.com/opengradebook/gradebook/internal/session"
)

// Context keys for storing session data in the Echo context. Other packages
// use these (via the exported getter functions below) to access the
// authenticated identity.
const (
	contextKeyIdentity  = "auth_identity"
	contextKeySessionID = "auth_session_id"
)

// csrfFormField is the body field carrying the anti-forgery token on every
// state-mutating request, in both JSON and form-encoded bodies.
const csrfFormField = "csrf_token"

// maxCsrfBodyBytes bounds how much of a request body the CSRF check will
// buffer while looking for the token field.
const maxCsrfBodyBytes = 1 << 20

// RequireAuth returns middleware that validates the session cookie against
// the request origin and injects the identity snapshot into the request
// context. Every protected route revalidates here -- there is no cached
// "still authenticated" assumption across requests.
//
// An expired session is not an error: the cookie is replaced with the
// rotated anonymous id (carrying the one-shot notice) and the request is
// downgraded to unauthenticated. Any other validation failure clears the
// cookie and fails closed.
func RequireAuth(gateway *Gateway) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			sid := getSessionID(c)
			if sid == "" {
				return handleUnauthenticated(c, "")
			}

			rec, replacement, ok := gateway.ValidateSession(ctx, sid, originOf(c))
			if !ok {
				var notice string
				if replacement != "" {
					setSessionCookie(c, replacement)
					notice = gateway.PopNotice(ctx, replacement)
				} else {
					clearSessionCookie(c)
				}
				return handleUnauthenticated(c, notice)
			}

			// Store the snapshot for downstream handlers. This is also the
			// per-request memoisation point: handlers read the snapshot from
			// the context instead of re-resolving the identity store.
			c.Set(contextKeyIdentity, rec.Identity)
			c.Set(contextKeySessionID, sid)

			return next(c)
		}
	}
}

// RequireAdmin returns middleware that rejects non-administrator sessions.
// Must run after RequireAuth.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ident := GetIdentity(c)
			if ident == nil || !ident.IsAdmin {
				return apperror.NewForbidden("administrator access required")
			}
			return next(c)
		}
	}
}

// CSRF returns middleware enforcing the anti-forgery token on every
// state-mutating request. The token travels as the csrf_token field of the
// request body (JSON or form-encoded) and must equal the session's current
// token. A failed check rejects the request before any handler runs,
// without revealing which part of the check failed. Must run after
// RequireAuth so the session id is in context.
func CSRF(gateway *Gateway) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isSafeMethod(c.Request().Method) {
				return next(c)
			}

			sid := GetSessionID(c)
			candidate, err := csrfTokenFromBody(c)
			if err != nil {
				return apperror.NewCsrfMismatch()
			}
			if !gateway.VerifyCsrf(c.Request().Context(), sid, candidate) {
				return apperror.NewCsrfMismatch()
			}
			return next(c)
		}
	}
}

// handleUnauthenticated returns the appropriate response for
// unauthenticated requests: a 303 redirect to the login entry point for
// browsers, 401 JSON for API clients. The one-shot expiry notice rides
// along when present.
func handleUnauthenticated(c echo.Context, notice string) error {
	if wantsHTML(c) {
		return c.Redirect(http.StatusSeeOther, "/login")
	}

	resp := map[string]string{
		"error":   "unauthorized",
		"message": "authentication required",
	}
	if notice != "" {
		resp["notice"] = notice
	}
	return c.JSON(http.StatusUnauthorized, resp)
}

// --- Exported getters for other packages ---

// GetIdentity retrieves the authenticated identity snapshot from the Echo
// context. Returns nil if the request is not authenticated (middleware not
// applied).
func GetIdentity(c echo.Context) *session.Identity {
	ident, ok := c.Get(contextKeyIdentity).(*session.Identity)
	if !ok {
		return nil
	}
	return ident
}

// GetSessionID retrieves the validated session id from the Echo context.
// Returns empty string if the request is not authenticated.
func GetSessionID(c echo.Context) string {
	id, ok := c.Get(contextKeySessionID).(string)
	if !ok {
		return ""
	}
	return id
}

// --- Helpers ---

// isSafeMethod returns true for HTTP methods that should not change state.
func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

// wantsHTML returns true if the client is a browser navigation rather than
// an API call.
func wantsHTML(c echo.Context) bool {
	return strings.Contains(c.Request().Header.Get("Accept"), "text/html")
}

// csrfTokenFromBody extracts the csrf_token field from a JSON or
// form-encoded request body, then restores the body so the handler can
// bind it normally.
func csrfTokenFromBody(c echo.Context) (string, error) {
	req := c.Request()
	if req.Body == nil {
		return "", nil
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, maxCsrfBodyBytes))
	if err != nil {
		return "", err
	}
	req.Body = io.NopCloser(bytes.NewReader(body))

	contentType := req.Header.Get(echo.HeaderContentType)
	switch {
	case strings.HasPrefix(contentType, echo.MIMEApplicationJSON):
		var fields struct {
			CsrfToken string `json:"csrf_token"`
		}
		if err := json.Unmarshal(body, &fields); err != nil {
			return "", err
		}
		return fields.CsrfToken, nil

	case strings.HasPrefix(contentType, echo.MIMEApplicationForm):
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return "", err
		}
		return values.Get(csrfFormField), nil
	}

	return "", nil
}
