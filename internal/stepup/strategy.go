// Package stepup implements the additional-factor verification demanded
// when a login originates from an address the account does not trust yet.
//
// Two strategies exist behind one interface: time-based one-time codes
// from an enrolled authenticator app, and single-use codes delivered to
// the account's verified email. Which one a deployment runs is a config
// choice; the session coordinator only sees the Strategy contract.
package stepup

import "context"

// Provisioning is the one-time output of enrolling the factor. Secret and
// URI are set by the authenticator strategy and shown to the caller exactly
// once; Delivered is set by strategies that push a code out-of-band instead.
type Provisioning struct {
	Secret    string `json:"secret,omitempty"`
	URI       string `json:"uri,omitempty"`
	Delivered bool   `json:"delivered,omitempty"`
}

// Strategy is the step-up verification contract.
type Strategy interface {
	// Provision prepares the second factor for the account. The factor is
	// not usable until Confirm succeeds.
	Provision(ctx context.Context, username, email string) (*Provisioning, error)

	// Confirm proves possession of the provisioned factor and enables it.
	Confirm(ctx context.Context, username, code string) error

	// Enabled reports whether the account can answer a step-up challenge.
	// A suspicious login against a disabled factor is refused outright.
	Enabled(ctx context.Context, username string) (bool, error)

	// Challenge starts a verification round for a login attempt from the
	// given device. Strategies that deliver codes send one here; strategies
	// backed by an authenticator app have nothing to do.
	Challenge(ctx context.Context, username, email, deviceID string) error

	// Validate checks a submitted code for the device. Single-use codes are
	// consumed on success.
	Validate(ctx context.Context, username, deviceID, code string) error
}
