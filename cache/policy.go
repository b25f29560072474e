package cache

import (
	"strings"
	"time"
)

// TTLs for the well-known Spinr resources. Reference data changes through
// ops tooling on a daily cadence at most; fares move with surge updates.
const (
	ReferenceTTL = 24 * time.Hour
	FareTTL      = 6 * time.Hour
	DocumentsTTL = 30 * time.Minute
)

// Rule maps a request path prefix to a cache lifetime and, optionally, the
// logical key the response is stored under. An empty Key derives the key
// from the full path and query.
type Rule struct {
	PathPrefix string
	Key        string
	TTL        time.Duration
}

// Policy is the ordered TTL table consulted for every cacheable request.
// The first matching rule wins; order is part of the contract, so more
// specific prefixes must come before shorter ones.
type Policy struct {
	rules      []Rule
	defaultTTL time.Duration
}

// NewPolicy builds the standard Spinr policy table. profileTTL covers the
// user and driver profile entries; defaultTTL covers paths with no rule.
func NewPolicy(profileTTL, defaultTTL time.Duration) *Policy {
	return &Policy{
		defaultTTL: defaultTTL,
		rules: []Rule{
			{PathPrefix: "/auth/me", Key: UserProfileKey, TTL: profileTTL},
			{PathPrefix: "/drivers/me", Key: DriverProfileKey, TTL: profileTTL},
			{PathPrefix: "/drivers/requirements", Key: KeyPrefix + "document_requirements", TTL: ReferenceTTL},
			{PathPrefix: "/drivers/documents", Key: KeyPrefix + "driver_documents", TTL: DocumentsTTL},
			{PathPrefix: "/vehicle-types", Key: KeyPrefix + "vehicle_types", TTL: ReferenceTTL},
			{PathPrefix: "/service-areas", Key: KeyPrefix + "service_areas", TTL: ReferenceTTL},
			{PathPrefix: "/pricing", Key: KeyPrefix + "pricing_rules", TTL: ReferenceTTL},
			{PathPrefix: "/fares", Key: KeyPrefix + "fare_estimate", TTL: FareTTL},
		},
	}
}

// Resolve returns the cache key and TTL for a request path. The query
// string distinguishes parameterized lookups (fare estimates for different
// coordinates must not collide), so it is folded into the key.
func (p *Policy) Resolve(pathWithQuery string) (string, time.Duration) {
	path, query, _ := strings.Cut(pathWithQuery, "?")

	for _, rule := range p.rules {
		if !strings.HasPrefix(path, rule.PathPrefix) {
			continue
		}

		key := rule.Key
		if key == "" {
			key = DeriveKey(path)
		}
		if query != "" {
			key += "_" + sanitize(query)
		}

		return key, rule.TTL
	}

	key := DeriveKey(path)
	if query != "" {
		key += "_" + sanitize(query)
	}
	return key, p.defaultTTL
}
