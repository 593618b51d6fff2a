// Package session is the session/trust coordinator: the state machine that
// composes credential verification, email verification, address trust,
// step-up, and session binding into the login flow, and enforces the
// single-active-session guarantee.
//
// A login attempt passes gates strictly in order: credential check, email
// verification check, address trust check, step-up check (conditional),
// session binding. Failure exits at the first failing gate with a typed
// reason; no later gate's side effects run before every earlier gate has
// passed.
package session

// RegisterInput carries the registration request fields. Address is the
// transport-observed client address, filled in by the handler and never
// read from the request body.
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Address  string `json:"-"`
}

// LoginInput carries the login request fields. DeviceID is the caller's
// durable per-client identifier, created once and never regenerated.
// Address is the transport-observed client address.
type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	DeviceID string `json:"deviceId"`
	Address  string `json:"-"`
}

// LoginResult is returned on a successful bind. SessionID is the opaque
// bearer credential the client caches next to its username and device ID.
type LoginResult struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// VerifyInput carries the step-up verification fields for a paused login.
type VerifyInput struct {
	Username string `json:"username"`
	Code     string `json:"code"`
	DeviceID string `json:"deviceId"`
	Address  string `json:"-"`
}

// ValidateInput identifies the session to re-check. Address is the
// current transport-observed address of the probing client; the
// background revalidator supplies the address the session was bound
// from instead.
type ValidateInput struct {
	Username  string `json:"username"`
	DeviceID  string `json:"deviceId"`
	SessionID string `json:"sessionId"`
	Address   string `json:"-"`
}
