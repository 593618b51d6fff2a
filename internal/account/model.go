// Package account defines the durable per-username record and the Store
// contract the coordinator mutates it through. The store is the source of
// serialization truth for the single-session guarantee: session binding is
// a compare-and-swap, never a read-then-write.
package account

import (
	"context"
	"errors"
	"time"
)

// ErrSessionHeld is returned by BindSession when the compare-and-swap
// found an active session already in place. The coordinator re-reads the
// account to phrase the refusal (same device vs. elsewhere).
var ErrSessionHeld = errors.New("account: active session already held")

// ActiveSession is the (deviceID, sessionID) pair plus the address the
// session was bound from. It exists as a whole or not at all; partial
// combinations never touch storage. Address is "" when the origin could
// not be observed at bind time.
type ActiveSession struct {
	DeviceID  string
	SessionID string
	Address   string
}

// Account is the durable record for one username.
type Account struct {
	// Username is the immutable unique key.
	Username string

	// Email receives out-of-band verification messages.
	Email string

	// EmailVerified mirrors the identity provider's assertion.
	EmailVerified bool

	// RegistrationAddress is the network address observed at registration,
	// or nil when none could be observed.
	RegistrationAddress *string

	// TrustedAddresses grows by accretion on each address newly authorized
	// via step-up or first login. Never auto-shrinks.
	TrustedAddresses []string

	// StepUpSecret is the shared secret for one-time codes, nil until
	// provisioned. Never crosses the client boundary after provisioning.
	StepUpSecret *string

	// StepUpEnabled is flipped only after a caller proves possession of a
	// valid code derived from StepUpSecret.
	StepUpEnabled bool

	// Session is the single active session, or nil.
	Session *ActiveSession

	CreatedAt time.Time
}

// HasTrusted reports whether addr is already a member of the account's
// trusted address set.
func (a *Account) HasTrusted(addr string) bool {
	for _, t := range a.TrustedAddresses {
		if t == addr {
			return true
		}
	}
	return false
}

// Store is the Account Store collaborator: a durable record keyed by
// username with create-if-absent and field-level conditional updates.
type Store interface {
	// Get returns the account with its trusted address set loaded.
	// Returns apperror.NotFound when the username is unknown.
	Get(ctx context.Context, username string) (*Account, error)

	// Exists reports whether a row exists for the username.
	Exists(ctx context.Context, username string) (bool, error)

	// Create inserts a new account row. Returns apperror.UsernameTaken on
	// a duplicate username.
	Create(ctx context.Context, acct *Account) error

	// BindSession atomically sets the session triple if and only if no
	// session is currently held. Returns ErrSessionHeld when the CAS loses.
	BindSession(ctx context.Context, username string, sess ActiveSession) error

	// ClearSessionIf removes the session triple only when the stored
	// session ID matches, so a freshly bound successor session is never
	// torn down by a stale logout or revalidation. Idempotent: a missing
	// or already changed session is a no-op, not an error.
	ClearSessionIf(ctx context.Context, username, sessionID string) error

	// AddTrustedAddress appends an address to the trusted set. Concurrent
	// appends merge as a set union; re-adding is a no-op.
	AddTrustedAddress(ctx context.Context, username, address string) error

	// SetStepUpSecret stores a freshly provisioned secret with step-up
	// disabled, replacing any previous unconfirmed secret.
	SetStepUpSecret(ctx context.Context, username, secret string) error

	// EnableStepUp flips step_up_enabled if and only if the stored secret
	// still equals the one possession was proven against. Returns
	// apperror.NotFound when no such secret is stored, including when it
	// was rotated since the caller read it.
	EnableStepUp(ctx context.Context, username, secret string) error

	// SetEmailVerified syncs the identity provider's email assertion.
	SetEmailVerified(ctx context.Context, username string, verified bool) error
}
