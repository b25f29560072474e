// Package cache implements the tiered response cache: a bounded in-process
// tier in front of the durable kvstore backend. Every entry travels with its
// own TTL, so freshness decisions survive process restarts.
package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration that marshals as integer milliseconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).Milliseconds())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var ms int64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("ttl must be integer milliseconds: %w", err)
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

// Entry is the envelope stored in both tiers. Data stays raw until a typed
// read decodes it, so the tiers never depend on response schemas.
type Entry struct {
	Data     json.RawMessage `json:"data"`
	StoredAt time.Time       `json:"storedAt"`
	TTL      Duration        `json:"ttlMs"`
}

// Expired reports whether the entry is stale at the given instant. An entry
// is fresh strictly before StoredAt+TTL.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.StoredAt.Add(time.Duration(e.TTL)))
}
