package session

import (
	"crypto/subtle"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tsubasa-k/Single-Login/internal/account"
	"github.com/tsubasa-k/Single-Login/internal/apperror"
)

// Context key for the authenticated username. Handlers behind
// RequireSession read it via AuthenticatedUsername.
const contextKeyUsername = "session_username"

// usernameHeader names the account the bearer session belongs to.
const usernameHeader = "X-Username"

// RequireSession returns middleware that authenticates a request by its
// bearer session credential: the Authorization header must carry the
// session ID currently bound to the account named in X-Username. Requests
// without a matching active session are refused with a 401.
func RequireSession(store account.Store) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			username := c.Request().Header.Get(usernameHeader)
			token := bearerToken(c)
			if username == "" || token == "" {
				return apperror.NewUnauthenticated()
			}

			acct, err := store.Get(c.Request().Context(), username)
			if err != nil {
				// Unknown account reads the same as a bad token.
				return apperror.NewUnauthenticated()
			}
			if acct.Session == nil ||
				subtle.ConstantTimeCompare([]byte(acct.Session.SessionID), []byte(token)) != 1 {
				return apperror.NewUnauthenticated()
			}

			c.Set(contextKeyUsername, username)
			return next(c)
		}
	}
}

// AuthenticatedUsername returns the username RequireSession validated, or
// "" when the middleware was not applied.
func AuthenticatedUsername(c echo.Context) string {
	username, ok := c.Get(contextKeyUsername).(string)
	if !ok {
		return ""
	}
	return username
}

// bearerToken extracts the credential from "Authorization: Bearer <token>".
func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
