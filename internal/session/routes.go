package session

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/tsubasa-k/Single-Login/internal/account"
	"github.com/tsubasa-k/Single-Login/internal/middleware"
)

// RegisterRoutes sets up the authentication API on the given Echo instance.
//
// Credential-bearing endpoints are rate-limited per IP to blunt brute-force
// and credential-stuffing runs: 10 logins and 5 registrations per minute,
// and a tighter budget on code verification since a 6-digit code space
// is small. Endpoints that mutate or read an existing account's state run
// behind RequireSession.
func RegisterRoutes(e *echo.Echo, h *Handler, rdb *redis.Client, accounts account.Store) {
	api := e.Group("/api")

	api.POST("/register", h.Register, middleware.RateLimit(rdb, "register", 5, time.Minute))
	api.POST("/login", h.Login, middleware.RateLimit(rdb, "login", 10, time.Minute))

	// Verify continues a login paused on NeedsStepUp, so it cannot demand a
	// session; the code itself is the proof.
	api.POST("/stepup/verify", h.VerifyStepUp, middleware.RateLimit(rdb, "verify", 5, time.Minute))

	// Logout carries its own proof: the held session ID in the body.
	api.POST("/logout", h.Logout)
	api.POST("/session/validate", h.ValidateSession)

	// The emailed link is a GET so mail clients can open it directly.
	api.GET("/email/confirm", h.ConfirmEmail, middleware.RateLimit(rdb, "emailconfirm", 10, time.Minute))

	authed := api.Group("", RequireSession(accounts))
	authed.POST("/stepup/provision", h.ProvisionStepUp, middleware.RateLimit(rdb, "provision", 5, time.Minute))
	authed.POST("/stepup/confirm", h.ConfirmStepUp, middleware.RateLimit(rdb, "confirm", 5, time.Minute))
	authed.GET("/accounts/:username/activity", h.Activity)
}
