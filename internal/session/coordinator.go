package session

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tsubasa-k/Single-Login/internal/account"
	"github.com/tsubasa-k/Single-Login/internal/apperror"
	"github.com/tsubasa-k/Single-Login/internal/audit"
	"github.com/tsubasa-k/Single-Login/internal/identity"
	"github.com/tsubasa-k/Single-Login/internal/origin"
	"github.com/tsubasa-k/Single-Login/internal/stepup"
	"github.com/tsubasa-k/Single-Login/internal/trust"
)

// maxUsernameLength matches the accounts.username column width.
const maxUsernameLength = 64

// Coordinator orchestrates registration, login, step-up, logout, and
// session re-validation. It never exposes internal account fields to the
// transport layer beyond typed outcomes and opaque session identifiers.
type Coordinator struct {
	accounts account.Store
	identity identity.Provider
	stepper  stepup.Strategy
	policy   *trust.Policy
	resolver origin.Resolver
	trail    audit.Service

	// newSessionID mints a fresh random session identifier per login.
	// Swappable in tests.
	newSessionID func() string

	// watchSession, when set, starts background re-validation for a
	// freshly bound session. Set by EnableBackgroundRevalidation; nil
	// means callers poll the validate endpoint themselves.
	watchSession func(ValidateInput)
}

// NewCoordinator wires the coordinator's collaborators.
func NewCoordinator(
	accounts account.Store,
	provider identity.Provider,
	stepper stepup.Strategy,
	policy *trust.Policy,
	resolver origin.Resolver,
	trail audit.Service,
) *Coordinator {
	return &Coordinator{
		accounts:     accounts,
		identity:     provider,
		stepper:      stepper,
		policy:       policy,
		resolver:     resolver,
		trail:        trail,
		newSessionID: uuid.NewString,
	}
}

// EnableBackgroundRevalidation makes the coordinator spawn a Revalidator
// for every session it binds from then on. Each watcher stops on its own
// when its session ends, by logout or invalidation, and all of them stop
// when ctx is cancelled.
func (c *Coordinator) EnableBackgroundRevalidation(ctx context.Context, interval time.Duration) {
	r := NewRevalidator(c, interval)
	c.watchSession = func(input ValidateInput) {
		r.Watch(ctx, input)
	}
}

// Register creates the credential, the account row, and fires the
// email-verification challenge. The registration address, when observable,
// seeds the trusted address set.
func (c *Coordinator) Register(ctx context.Context, input RegisterInput) error {
	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))

	if username == "" {
		return apperror.NewValidation("username is required")
	}
	if len(username) > maxUsernameLength {
		return apperror.NewValidation("username is too long")
	}
	if !strings.Contains(email, "@") {
		return apperror.NewValidation("a valid email address is required")
	}

	// Cheap existence probe before the expensive credential hash. The
	// account insert below still catches the race on a duplicate username.
	exists, err := c.accounts.Exists(ctx, username)
	if err != nil {
		return apperror.NewStoreUnavailable(err)
	}
	if exists {
		return apperror.NewUsernameTaken(username)
	}

	if err := c.identity.CreateCredential(ctx, username, email, input.Password); err != nil {
		return err
	}

	addr := c.resolveAddress(ctx, input.Address)
	acct := &account.Account{
		Username:  username,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	if addr != "" {
		acct.RegistrationAddress = &addr
	}
	if err := c.accounts.Create(ctx, acct); err != nil {
		// Compensate: a credential without an account row would brick the
		// username, failing re-registration on the duplicate key and login
		// on the missing account.
		if delErr := c.identity.DeleteCredential(ctx, username); delErr != nil {
			slog.Warn("credential cleanup failed after account create failure",
				slog.String("username", username),
				slog.Any("error", delErr),
			)
		}
		return err
	}

	// Best-effort: a failed delivery must not orphan the fresh account.
	// Login re-triggers the challenge while the email stays unverified.
	if err := c.identity.SendEmailVerification(ctx, username, email); err != nil {
		slog.Warn("verification mail failed after registration",
			slog.String("username", username),
			slog.Any("error", err),
		)
	}

	c.trail.Record(ctx, username, audit.ActionRegistered, addr, "", "")
	slog.Info("account registered",
		slog.String("username", username),
		slog.String("address", addr),
	)
	return nil
}

// Login runs the gate sequence. It returns the session ID on a direct
// grant, apperror.NeedsStepUp when the attempt is paused pending a code
// (after starting a challenge round), and a typed refusal otherwise.
func (c *Coordinator) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" || input.Password == "" {
		return nil, apperror.NewInvalidCredential()
	}
	if input.DeviceID == "" {
		return nil, apperror.NewBadRequest("deviceId is required")
	}

	// Gate 1: credential check.
	principal, err := c.identity.VerifyCredential(ctx, username, input.Password)
	if err != nil {
		if apperror.IsType(err, apperror.TypeInvalidCredential) {
			c.trail.Record(ctx, username, audit.ActionLoginDenied, "", input.DeviceID, apperror.TypeInvalidCredential)
		}
		return nil, err
	}

	// Gate 2: email verification check. Re-trigger the challenge so the
	// user has a fresh link in their inbox.
	if !principal.EmailVerified {
		if err := c.identity.SendEmailVerification(ctx, username, principal.Email); err != nil {
			slog.Warn("re-sending verification mail failed",
				slog.String("username", username),
				slog.Any("error", err),
			)
		}
		c.trail.Record(ctx, username, audit.ActionLoginDenied, "", input.DeviceID, apperror.TypeEmailNotVerified)
		return nil, apperror.NewEmailNotVerified()
	}

	acct, err := c.accounts.Get(ctx, username)
	if err != nil {
		if apperror.IsType(err, apperror.TypeNotFound) {
			// Credential exists but the account row is gone; do not leak
			// the inconsistency to the caller.
			return nil, apperror.NewInvalidCredential()
		}
		return nil, apperror.NewStoreUnavailable(err)
	}

	// Gate 3: address trust check. A failed resolution yields "" which
	// classifies as suspicious; the decision degrades to the safe side.
	addr := c.resolveAddress(ctx, input.Address)
	if c.policy.Classify(addr) == trust.ClassTrusted || c.policy.IsKnown(acct.TrustedAddresses, addr) {
		return c.bind(ctx, acct, input.DeviceID, addr)
	}

	// Gate 4: step-up check. Without a usable factor the login is refused
	// outright: there is no workaround from an untrusted network.
	enabled, err := c.stepper.Enabled(ctx, username)
	if err != nil {
		return nil, err
	}
	if !enabled {
		c.trail.Record(ctx, username, audit.ActionLoginDenied, addr, input.DeviceID, apperror.TypeNeedsStepUp)
		return nil, apperror.NewStepUpNotProvisioned()
	}

	if err := c.stepper.Challenge(ctx, username, acct.Email, input.DeviceID); err != nil {
		return nil, err
	}
	c.trail.Record(ctx, username, audit.ActionStepUpRequired, addr, input.DeviceID, "")
	return nil, apperror.NewNeedsStepUp()
}

// ProvisionStepUp enrolls the second factor for the account and returns
// the one-time provisioning material. The factor stays disabled until
// ConfirmStepUp proves possession.
func (c *Coordinator) ProvisionStepUp(ctx context.Context, username string) (*stepup.Provisioning, error) {
	acct, err := c.accounts.Get(ctx, username)
	if err != nil {
		return nil, err
	}

	prov, err := c.stepper.Provision(ctx, username, acct.Email)
	if err != nil {
		return nil, err
	}

	c.trail.Record(ctx, username, audit.ActionStepUpProvisioned, "", "", "")
	return prov, nil
}

// ConfirmStepUp proves possession of the provisioned factor and enables it.
func (c *Coordinator) ConfirmStepUp(ctx context.Context, username, code string) error {
	if err := c.stepper.Confirm(ctx, username, code); err != nil {
		if apperror.IsType(err, apperror.TypeInvalidCode) {
			c.trail.Record(ctx, username, audit.ActionStepUpDenied, "", "", "confirm")
		}
		return err
	}
	c.trail.Record(ctx, username, audit.ActionStepUpConfirmed, "", "", "")
	return nil
}

// VerifyStepUpAndBind validates a step-up code for the paused login and, on
// success, performs session binding. Validation and binding are two
// sequential transitions, not one transaction: nothing mutates account
// state between them, and the compare-and-swap in the store keeps a race
// between two devices holding the same code down to one winner.
func (c *Coordinator) VerifyStepUpAndBind(ctx context.Context, input VerifyInput) (*LoginResult, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" || input.DeviceID == "" {
		return nil, apperror.NewBadRequest("username and deviceId are required")
	}

	acct, err := c.accounts.Get(ctx, username)
	if err != nil {
		return nil, err
	}

	if err := c.stepper.Validate(ctx, username, input.DeviceID, input.Code); err != nil {
		if apperror.IsType(err, apperror.TypeInvalidCode) || apperror.IsType(err, apperror.TypeCodeExpired) {
			c.trail.Record(ctx, username, audit.ActionStepUpDenied, "", input.DeviceID, "verify")
		}
		return nil, err
	}

	addr := c.resolveAddress(ctx, input.Address)
	return c.bind(ctx, acct, input.DeviceID, addr)
}

// ConfirmEmail redeems an emailed verification token and mirrors the
// provider's assertion onto the account row.
func (c *Coordinator) ConfirmEmail(ctx context.Context, token string) error {
	if token == "" {
		return apperror.NewBadRequest("token is required")
	}

	username, err := c.identity.ConfirmEmail(ctx, token)
	if err != nil {
		return err
	}

	if err := c.accounts.SetEmailVerified(ctx, username, true); err != nil {
		return apperror.NewStoreUnavailable(err)
	}

	c.trail.Record(ctx, username, audit.ActionEmailVerified, "", "", "")
	return nil
}

// Logout clears the active session and invalidates the provider-side
// credential session. The caller must present the held session ID as
// proof; anyone could otherwise kill any account's session by username.
// Idempotent: logging out with no session held is a success, not an error.
func (c *Coordinator) Logout(ctx context.Context, username, sessionID string) error {
	if username == "" || sessionID == "" {
		return apperror.NewBadRequest("username and sessionId are required")
	}

	acct, err := c.accounts.Get(ctx, username)
	if err != nil {
		if apperror.IsType(err, apperror.TypeNotFound) {
			return nil
		}
		return apperror.NewStoreUnavailable(err)
	}
	if acct.Session == nil {
		return nil
	}
	if acct.Session.SessionID != sessionID {
		return apperror.NewUnauthenticated()
	}

	if err := c.accounts.ClearSessionIf(ctx, username, sessionID); err != nil {
		return apperror.NewStoreUnavailable(err)
	}

	if err := c.identity.Invalidate(ctx, username); err != nil {
		slog.Warn("identity invalidation failed on logout",
			slog.String("username", username),
			slog.Any("error", err),
		)
	}

	c.trail.Record(ctx, username, audit.ActionLogout, "", "", "")
	return nil
}

// IsSessionStillValid is the periodic re-validation probe. It fails closed
// on any definitive mismatch (unknown principal, changed email, wrong
// device or session ID, address no longer trusted) and force-clears the
// session when it does. A store outage is not a verdict: it surfaces as a
// StoreUnavailable error meaning "unknown, retry next interval".
func (c *Coordinator) IsSessionStillValid(ctx context.Context, input ValidateInput) (bool, error) {
	principal, err := c.identity.CheckPrincipal(ctx, input.Username)
	if err != nil {
		if apperror.IsType(err, apperror.TypeNotFound) {
			return c.invalidate(ctx, input, "principal gone"), nil
		}
		return false, apperror.NewStoreUnavailable(err)
	}

	acct, err := c.accounts.Get(ctx, input.Username)
	if err != nil {
		if apperror.IsType(err, apperror.TypeNotFound) {
			return false, nil
		}
		return false, apperror.NewStoreUnavailable(err)
	}

	if principal.Email != acct.Email {
		return c.invalidate(ctx, input, "email changed"), nil
	}
	if acct.Session == nil ||
		acct.Session.DeviceID != input.DeviceID ||
		acct.Session.SessionID != input.SessionID {
		return false, nil
	}

	addr := c.resolveAddress(ctx, input.Address)
	if c.policy.Classify(addr) != trust.ClassTrusted && !c.policy.IsKnown(acct.TrustedAddresses, addr) {
		return c.invalidate(ctx, input, "address no longer trusted"), nil
	}

	return true, nil
}

// bind performs session binding: mint a fresh session ID, compare-and-swap
// it onto the account, and accrete the address into the trusted set. The
// CAS in the store is what makes two simultaneous logins resolve to exactly
// one winner.
func (c *Coordinator) bind(ctx context.Context, acct *account.Account, deviceID, addr string) (*LoginResult, error) {
	sessionID := c.newSessionID()

	err := c.accounts.BindSession(ctx, acct.Username, account.ActiveSession{
		DeviceID:  deviceID,
		SessionID: sessionID,
		Address:   addr,
	})
	if err != nil {
		if errors.Is(err, account.ErrSessionHeld) {
			// Re-read to phrase the refusal; the handling is identical
			// either way.
			sameDevice := false
			if held, readErr := c.accounts.Get(ctx, acct.Username); readErr == nil && held.Session != nil {
				sameDevice = held.Session.DeviceID == deviceID
			}
			c.trail.Record(ctx, acct.Username, audit.ActionLoginDenied, addr, deviceID, apperror.TypeAlreadyActive)
			return nil, apperror.NewAlreadyActive(sameDevice)
		}
		if apperror.IsType(err, apperror.TypeNotFound) {
			return nil, err
		}
		return nil, apperror.NewStoreUnavailable(err)
	}

	// Trust accretion: an address that just survived the gates is
	// authorized. Append-only; concurrent appends union in the store.
	if addr != "" && !acct.HasTrusted(addr) {
		if err := c.accounts.AddTrustedAddress(ctx, acct.Username, addr); err != nil {
			slog.Warn("trusted address accretion failed",
				slog.String("username", acct.Username),
				slog.Any("error", err),
			)
		}
	}

	c.trail.Record(ctx, acct.Username, audit.ActionLoginGranted, addr, deviceID, "")
	slog.Info("session bound",
		slog.String("username", acct.Username),
		slog.String("device_id", deviceID),
		slog.String("address", addr),
	)

	if c.watchSession != nil {
		// The watcher has no live transport address to observe; it
		// re-checks against the address the session was bound from.
		c.watchSession(ValidateInput{
			Username:  acct.Username,
			DeviceID:  deviceID,
			SessionID: sessionID,
			Address:   addr,
		})
	}

	return &LoginResult{
		SessionID: sessionID,
		Message:   "signed in",
	}, nil
}

// invalidate force-ends the session identified by input. The conditional
// clear only tears down that exact session, so a freshly bound successor
// is never collateral damage. Always returns false for the caller's verdict.
func (c *Coordinator) invalidate(ctx context.Context, input ValidateInput, reason string) bool {
	if err := c.accounts.ClearSessionIf(ctx, input.Username, input.SessionID); err != nil {
		slog.Warn("forced session clear failed",
			slog.String("username", input.Username),
			slog.Any("error", err),
		)
	}
	if err := c.identity.Invalidate(ctx, input.Username); err != nil {
		slog.Warn("identity invalidation failed",
			slog.String("username", input.Username),
			slog.Any("error", err),
		)
	}
	c.trail.Record(ctx, input.Username, audit.ActionSessionInvalidated, "", input.DeviceID, reason)
	slog.Info("session invalidated",
		slog.String("username", input.Username),
		slog.String("reason", reason),
	)
	return false
}

// resolveAddress determines the caller's network address. The transport
// layer's observed peer address takes precedence; the lookup resolver is
// the fallback for deployments where no reverse proxy sees the client.
// Failure degrades to "" (unknown): the trust policy classifies an unknown
// address as suspicious, never as trusted.
func (c *Coordinator) resolveAddress(ctx context.Context, observed string) string {
	if ip := net.ParseIP(observed); ip != nil {
		return ip.String()
	}
	addr, err := c.resolver.Resolve(ctx)
	if err != nil {
		if !errors.Is(err, origin.ErrUnavailable) {
			slog.Warn("origin resolution failed", slog.Any("error", err))
		}
		return ""
	}
	return addr
}
