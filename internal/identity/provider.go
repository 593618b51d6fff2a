// Package identity is the Identity Provider collaborator: it owns
// credential verification, the email-verification challenge, and sign-out
// of the authenticated principal. The coordinator never sees raw passwords
// beyond passing them through to this boundary, and never stores them.
package identity

import "context"

// Principal is the opaque authenticated-principal handle returned by a
// successful credential verification.
type Principal struct {
	Username      string
	Email         string
	EmailVerified bool
}

// Provider is the identity collaborator contract.
type Provider interface {
	// CreateCredential registers a new (username, password) pair bound to
	// an email. Fails with apperror.EmailConflict when the email is bound
	// elsewhere and apperror.WeakCredential when the password fails policy.
	CreateCredential(ctx context.Context, username, email, password string) error

	// VerifyCredential checks the pair and returns the principal. A missing
	// username and a wrong password both fail with the same
	// apperror.InvalidCredential - callers cannot enumerate accounts.
	VerifyCredential(ctx context.Context, username, password string) (*Principal, error)

	// CheckPrincipal re-asserts that the provider still recognizes the
	// username; used by periodic session re-validation.
	CheckPrincipal(ctx context.Context, username string) (*Principal, error)

	// SendEmailVerification issues (or re-issues) the out-of-band email
	// challenge for the username.
	SendEmailVerification(ctx context.Context, username, email string) error

	// DeleteCredential removes the credential for the username. Used to
	// compensate a registration whose account row could not be created, so
	// the username stays available for a retry. Idempotent.
	DeleteCredential(ctx context.Context, username string) error

	// ConfirmEmail consumes a verification token and marks the owning
	// credential's email as verified. Returns the username it belonged to.
	ConfirmEmail(ctx context.Context, token string) (string, error)

	// Invalidate terminates the provider-side credential session for the
	// username, if any. Idempotent.
	Invalidate(ctx context.Context, username string) error
}
