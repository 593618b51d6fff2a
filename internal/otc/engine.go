// Package otc implements the one-time-code engine: provisioning a
// per-account TOTP secret and validating time-windowed numeric codes
// derived from it (RFC 6238: SHA-1, 6 digits, 30-second period).
//
// The engine is stateless; persistence of the secret is the caller's
// responsibility. A malformed secret or code is a validation failure,
// never an error.
package otc

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// period is the TOTP time step. Fixed at the RFC default; authenticator
// apps assume it.
const period = 30 * time.Second

// secretSize is the raw secret length in bytes. 20 bytes = 160 bits,
// comfortably above the 128-bit floor for provisioned secrets.
const secretSize = 20

// Engine provisions secrets and validates codes. The issuer is embedded in
// provisioning URIs so authenticator apps label the entry.
type Engine struct {
	issuer string
}

// NewEngine creates an engine that issues provisioning URIs under the given
// issuer label.
func NewEngine(issuer string) *Engine {
	return &Engine{issuer: issuer}
}

// Period returns the code rotation interval.
func (e *Engine) Period() time.Duration {
	return period
}

// Provisioned is the one-time output of provisioning: the raw shared secret
// and the otpauth:// URI for enrollment in an authenticator app. Neither is
// ever returned again after this.
type Provisioned struct {
	// Secret is the base32-encoded shared secret.
	Secret string

	// URI is the otpauth:// enrollment URI encoding issuer, account label,
	// algorithm, digit count, and period.
	URI string
}

// Provision generates a fresh random secret for the given account label and
// returns it with its enrollment URI. No side effects; the caller persists
// the secret (disabled) and displays the URI exactly once.
func (e *Engine) Provision(accountLabel string) (*Provisioned, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: accountLabel,
		Period:      uint(period.Seconds()),
		SecretSize:  secretSize,
		Algorithm:   otp.AlgorithmSHA1,
		Digits:      otp.DigitsSix,
	})
	if err != nil {
		return nil, err
	}
	return &Provisioned{Secret: key.Secret(), URI: key.URL()}, nil
}

// CurrentCode returns the 6-digit code for the secret at the given time.
// Used for enrollment verification displays and tests; returns "" for a
// malformed secret.
func (e *Engine) CurrentCode(secret string, at time.Time) string {
	code, err := totp.GenerateCode(secret, at)
	if err != nil {
		return ""
	}
	return code
}

// Validate reports whether the submitted code matches the code for the
// current time step or either adjacent step (±1 period, tolerating clock
// drift). Exactly one step of skew: widening it is a security/usability
// trade-off that belongs in a review, not a config knob.
func (e *Engine) Validate(secret, submitted string, at time.Time) bool {
	ok, err := totp.ValidateCustom(submitted, secret, at, totp.ValidateOpts{
		Period:    uint(period.Seconds()),
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		// Malformed secret or code format is a failed validation, not a fault.
		return false
	}
	return ok
}
