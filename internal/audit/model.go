// Package audit records the authentication event trail. Every decision the
// session coordinator makes (grants, refusals, step-up rounds, forced
// invalidations) is captured as an Entry in the audit_log table. The
// per-account activity feed gives users visibility into where and when
// their account was used.
//
// Recording is advisory: a failed audit write never blocks the operation
// it describes.
package audit

import "time"

// --- Action Constants ---
// Each action string follows the pattern "resource.verb" for consistent
// filtering and display grouping.

const (
	// ActionRegistered is logged when an account is created.
	ActionRegistered = "account.registered"

	// ActionEmailVerified is logged when the email challenge completes.
	ActionEmailVerified = "account.email_verified"

	// ActionLoginGranted is logged when a login ends with a bound session.
	ActionLoginGranted = "login.granted"

	// ActionLoginDenied is logged when a login is refused. The detail field
	// carries the refusal class.
	ActionLoginDenied = "login.denied"

	// ActionStepUpRequired is logged when a login is paused pending a code.
	ActionStepUpRequired = "stepup.required"

	// ActionStepUpProvisioned is logged when a second factor is enrolled.
	ActionStepUpProvisioned = "stepup.provisioned"

	// ActionStepUpConfirmed is logged when enrollment is proven and enabled.
	ActionStepUpConfirmed = "stepup.confirmed"

	// ActionStepUpDenied is logged when a submitted code is rejected.
	ActionStepUpDenied = "stepup.denied"

	// ActionLogout is logged when a session ends by request.
	ActionLogout = "session.logout"

	// ActionSessionInvalidated is logged when re-validation force-ends a
	// session.
	ActionSessionInvalidated = "session.invalidated"
)

// Entry is one recorded authentication event. Address and DeviceID are
// empty when the event had no observed origin or device.
type Entry struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Action    string    `json:"action"`
	Address   string    `json:"address,omitempty"`
	DeviceID  string    `json:"deviceId,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
