// Package credential resolves what the SDK puts in the Authorization header:
// a token minted by a federated identity provider when the host app wires
// one in, or the bearer token persisted at sign-in otherwise.
package credential

import "time"

// Kind tags how a credential was obtained.
type Kind int

const (
	// KindNone means no credential could be resolved; requests go out bare.
	KindNone Kind = iota

	// KindFederated tokens are minted per-resolution by the host app's
	// identity provider session.
	KindFederated

	// KindBearer tokens were issued by the Spinr backend at sign-in and
	// persisted locally.
	KindBearer
)

func (k Kind) String() string {
	switch k {
	case KindFederated:
		return "federated"
	case KindBearer:
		return "bearer"
	default:
		return "none"
	}
}

// Credential is a resolved token plus its provenance. Expiry is zero when
// the token carries no readable expiry.
type Credential struct {
	Kind   Kind
	Token  string
	Expiry time.Time
}

// Present reports whether the credential can be attached to a request.
func (c Credential) Present() bool {
	return c.Kind != KindNone && c.Token != ""
}
