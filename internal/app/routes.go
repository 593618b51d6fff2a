package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tsubasa-k/Single-Login/internal/account"
	"github.com/tsubasa-k/Single-Login/internal/audit"
	"github.com/tsubasa-k/Single-Login/internal/config"
	"github.com/tsubasa-k/Single-Login/internal/identity"
	"github.com/tsubasa-k/Single-Login/internal/mail"
	"github.com/tsubasa-k/Single-Login/internal/origin"
	"github.com/tsubasa-k/Single-Login/internal/otc"
	"github.com/tsubasa-k/Single-Login/internal/session"
	"github.com/tsubasa-k/Single-Login/internal/stepup"
	"github.com/tsubasa-k/Single-Login/internal/trust"
)

// RegisterRoutes builds the component graph and mounts every route.
// Construction order is leaf-first: policy, resolver, and stores before
// the coordinator that composes them.
func (a *App) RegisterRoutes() error {
	policy, err := trust.NewPolicy(a.Config.Trust.Networks)
	if err != nil {
		return fmt.Errorf("parsing trusted networks: %w", err)
	}

	resolver := origin.NewHTTPResolver(a.Config.Origin.LookupURLs, a.Config.Origin.AttemptTimeout)
	sender := mail.NewSMTPSender(a.Config.SMTP)

	accounts := account.NewRepository(a.DB)
	provider := identity.NewLocalProvider(
		identity.NewCredentialRepository(a.DB),
		a.Redis,
		sender,
		a.Config.BaseURL,
		a.Config.Auth.EmailTokenTTL,
	)

	// Exactly one step-up mechanism per deployment; config selects it and
	// nothing falls back to the other mid-flow.
	var strategy stepup.Strategy
	switch a.Config.Auth.StepUpMode {
	case config.StepUpModeDeviceCode:
		strategy = stepup.NewDeviceCodeStrategy(a.Redis, sender, a.Config.Auth.DeviceCodeTTL)
	default:
		strategy = stepup.NewTOTPStrategy(otc.NewEngine(a.Config.Auth.TOTPIssuer), accounts)
	}

	trail := audit.NewService(audit.NewRepository(a.DB))
	coord := session.NewCoordinator(accounts, provider, strategy, policy, resolver, trail)

	// Server-side re-validation loop per bound session. Each watcher ends
	// with its session; the process lifetime bounds them all.
	coord.EnableBackgroundRevalidation(context.Background(), a.Config.Auth.RevalidateInterval)

	session.RegisterRoutes(a.Echo, session.NewHandler(coord, trail), a.Redis, accounts)

	a.Echo.GET("/healthz", a.health)
	return nil
}

// health reports readiness: both backing stores must answer.
func (a *App) health(c echo.Context) error {
	ctx := c.Request().Context()

	if err := a.DB.PingContext(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "database unavailable"})
	}
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "redis unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
