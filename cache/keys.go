package cache

import "strings"

// KeyPrefix namespaces every entry this module writes, keeping it clear of
// anything else sharing the backend.
const KeyPrefix = "cache:"

// Well-known keys. Profile entries are user-scoped: their logical name
// starts with "user_" or "driver_", which is what ClearUserScope keys off.
const (
	UserProfileKey   = KeyPrefix + "user_profile"
	DriverProfileKey = KeyPrefix + "driver_profile"

	// userKeyIndexKey records every user-scoped key ever written, so a
	// logout purges entries left by previous process lifetimes too. It is
	// not user-scoped itself: a purge must not delete its own bookkeeping.
	userKeyIndexKey = KeyPrefix + "index:user_keys"
)

// UserScoped reports whether key holds per-user data that a logout must
// purge. Reference data (vehicle types, service areas, fares) is not
// user-scoped and survives.
func UserScoped(key string) bool {
	name := strings.TrimPrefix(key, KeyPrefix)
	return strings.HasPrefix(name, "user_") || strings.HasPrefix(name, "driver_")
}

// DeriveKey builds a cache key from a request path and query, normalizing
// both into the flat logical naming the policy table uses: "/vehicle-types"
// becomes "cache:vehicle_types".
func DeriveKey(pathWithQuery string) string {
	return KeyPrefix + sanitize(pathWithQuery)
}

// sanitize flattens a path (and optional query) into a key segment:
// lower-cased, with every run of non-alphanumeric characters collapsed to a
// single underscore.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	pendingSep := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		default:
			pendingSep = true
		}
	}

	return b.String()
}
