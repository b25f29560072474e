// Package session bootstraps and tracks the signed-in user. A Manager
// resolves the stored credential against the backend at startup, racing a
// timer so the host app is never blocked from rendering, and keeps a
// snapshot of the outcome that survives connectivity loss.
package session

import (
	"github.com/spinr-app/appcore/api"
	"github.com/spinr-app/appcore/credential"
)

// State is the lifecycle position of the session.
type State int

const (
	// StateIdle means Initialize has not run.
	StateIdle State = iota

	// StateResolving means bootstrap is in flight.
	StateResolving

	// StateHydrated means the credential was validated and the profile is
	// fresh from the backend.
	StateHydrated

	// StateDegraded means the backend was unreachable; the session carries
	// cached data when any exists.
	StateDegraded

	// StateAnonymous means no usable credential exists.
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateHydrated:
		return "hydrated"
	case StateDegraded:
		return "degraded"
	case StateAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Session is a point-in-time snapshot of the signed-in user. Profile and
// DriverProfile are copies; nested contents (such as the driver document
// map) are shared and must be treated as read-only.
type Session struct {
	State      State
	Credential credential.Kind

	// Profile is the account, fresh or cached depending on State.
	Profile *api.UserProfile

	// DriverProfile is set for driver accounts when available.
	DriverProfile *api.DriverProfile

	// Token is the credential value requests are sent with.
	Token string

	// Initialized reports that bootstrap reached a decision, including the
	// forced one when the timer expires first.
	Initialized bool

	// Loading reports that bootstrap is still in flight.
	Loading bool

	// Err is the failure that degraded the session, when one did.
	Err error
}
