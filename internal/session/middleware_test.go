package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/tsubasa-k/Single-Login/internal/account"
	"github.com/tsubasa-k/Single-Login/internal/apperror"
)

func TestRequireSession(t *testing.T) {
	store := newMemoryStore()
	store.accounts["alice"] = &account.Account{
		Username: "alice",
		Session:  &account.ActiveSession{DeviceID: "device-1", SessionID: "sess-1"},
	}
	store.accounts["carol"] = &account.Account{Username: "carol"}

	e := echo.New()
	handler := RequireSession(store)(func(c echo.Context) error {
		return c.String(http.StatusOK, AuthenticatedUsername(c))
	})

	tests := []struct {
		name     string
		username string
		auth     string
		wantErr  bool
	}{
		{"no credentials", "", "", true},
		{"missing bearer prefix", "alice", "sess-1", true},
		{"wrong token", "alice", "Bearer guessed", true},
		{"unknown account", "ghost", "Bearer sess-1", true},
		{"no active session", "carol", "Bearer sess-1", true},
		{"another account's token", "carol", "Bearer sess-1", true},
		{"valid", "alice", "Bearer sess-1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/stepup/provision", nil)
			if tt.username != "" {
				req.Header.Set(usernameHeader, tt.username)
			}
			if tt.auth != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.auth)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := handler(c)
			if tt.wantErr {
				assertErrType(t, err, apperror.TypeUnauthenticated)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Body.String() != "alice" {
				t.Errorf("expected the authenticated username in context, got %q", rec.Body.String())
			}
		})
	}
}

func TestAuthenticatedUsername_UnsetIsEmpty(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	if got := AuthenticatedUsername(c); got != "" {
		t.Errorf("expected empty username without the middleware, got %q", got)
	}
}
