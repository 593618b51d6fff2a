package stepup

import (
	"context"
	"log/slog"
	"time"

	"github.com/tsubasa-k/Single-Login/internal/account"
	"github.com/tsubasa-k/Single-Login/internal/apperror"
	"github.com/tsubasa-k/Single-Login/internal/otc"
)

// TOTPStrategy verifies logins with time-based codes from an enrolled
// authenticator app. The shared secret lives on the account record and
// never leaves the server after the provisioning response.
type TOTPStrategy struct {
	engine *otc.Engine
	store  account.Store
	now    func() time.Time
}

// NewTOTPStrategy creates the authenticator-app strategy.
func NewTOTPStrategy(engine *otc.Engine, store account.Store) *TOTPStrategy {
	return &TOTPStrategy{
		engine: engine,
		store:  store,
		now:    time.Now,
	}
}

// Provision generates a fresh secret and stores it disabled. Re-provisioning
// replaces any previous secret and drops the enabled flag, so a lost
// authenticator can be re-enrolled but the old one stops working.
func (s *TOTPStrategy) Provision(ctx context.Context, username, email string) (*Provisioning, error) {
	prov, err := s.engine.Provision(username)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	if err := s.store.SetStepUpSecret(ctx, username, prov.Secret); err != nil {
		return nil, err
	}

	slog.Info("step-up secret provisioned",
		slog.String("username", username),
	)
	return &Provisioning{Secret: prov.Secret, URI: prov.URI}, nil
}

// Confirm validates a code against the stored secret and enables the factor.
// This is the proof of possession: until it succeeds the secret is inert.
func (s *TOTPStrategy) Confirm(ctx context.Context, username, code string) error {
	acct, err := s.store.Get(ctx, username)
	if err != nil {
		return err
	}
	if acct.StepUpSecret == nil {
		return apperror.NewStepUpNotProvisioned()
	}
	secret := *acct.StepUpSecret

	if !s.engine.Validate(secret, code, s.now()) {
		return apperror.NewInvalidCode()
	}

	// Enable exactly the secret the code was checked against. The store's
	// compare-and-swap refuses if the secret was rotated in between.
	if err := s.store.EnableStepUp(ctx, username, secret); err != nil {
		return err
	}

	slog.Info("step-up enabled",
		slog.String("username", username),
	)
	return nil
}

// Enabled reports whether the account has a confirmed secret.
func (s *TOTPStrategy) Enabled(ctx context.Context, username string) (bool, error) {
	acct, err := s.store.Get(ctx, username)
	if err != nil {
		return false, err
	}
	return acct.StepUpEnabled, nil
}

// Challenge has nothing to deliver: the authenticator app generates codes
// on its own. It still refuses when the factor is not enabled so callers
// get the failure at challenge time instead of validate time.
func (s *TOTPStrategy) Challenge(ctx context.Context, username, email, deviceID string) error {
	enabled, err := s.Enabled(ctx, username)
	if err != nil {
		return err
	}
	if !enabled {
		return apperror.NewStepUpNotProvisioned()
	}
	return nil
}

// Validate checks a submitted code against the enabled secret. The device ID
// is not part of TOTP validation; binding the session to the device happens
// at the coordinator.
func (s *TOTPStrategy) Validate(ctx context.Context, username, deviceID, code string) error {
	acct, err := s.store.Get(ctx, username)
	if err != nil {
		return err
	}
	if acct.StepUpSecret == nil || !acct.StepUpEnabled {
		return apperror.NewStepUpNotProvisioned()
	}

	if !s.engine.Validate(*acct.StepUpSecret, code, s.now()) {
		return apperror.NewInvalidCode()
	}
	return nil
}
