package kv

import (
	"encoding/json"
	"fmt"
	"time"
)

// envelope is the on-disk record of a FileStore entry. Times are seconds
// since the epoch with fractional precision.
type envelope struct {
	Value          string   `json:"value"`
	ExpiresAt      float64  `json:"expires_at"`
	CreatedAt      float64  `json:"created_at"`
	LastAccessedAt *float64 `json:"last_accessed_at,omitempty"`
}

// rawEnvelope distinguishes a missing field from a zero one.
type rawEnvelope struct {
	Value          *string  `json:"value"`
	ExpiresAt      *float64 `json:"expires_at"`
	CreatedAt      *float64 `json:"created_at"`
	LastAccessedAt *float64 `json:"last_accessed_at"`
}

func newEnvelope(value string, now time.Time, ttl time.Duration) envelope {
	return envelope{
		Value:     value,
		ExpiresAt: epochSeconds(now.Add(ttl)),
		CreatedAt: epochSeconds(now),
	}
}

// liveAt reports whether the entry is visible at now.
func (e envelope) liveAt(now time.Time) bool {
	return epochSeconds(now) < e.ExpiresAt
}

// extend applies a sliding TTL extension.
func (e *envelope) extend(now time.Time, ttl time.Duration) {
	at := epochSeconds(now)
	e.ExpiresAt = epochSeconds(now.Add(ttl))
	e.LastAccessedAt = &at
}

func (e envelope) encode() ([]byte, error) {
	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("kv: encode record: %w", err)
	}
	return b, nil
}

// decodeEnvelope parses a record. Malformed JSON and a missing value or
// expires_at field are both reported as errCorrupt.
func decodeEnvelope(b []byte) (envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(b, &raw); err != nil {
		return envelope{}, fmt.Errorf("%w: %v", errCorrupt, err)
	}
	if raw.Value == nil || raw.ExpiresAt == nil {
		return envelope{}, fmt.Errorf("%w: missing value or expires_at", errCorrupt)
	}
	env := envelope{
		Value:          *raw.Value,
		ExpiresAt:      *raw.ExpiresAt,
		LastAccessedAt: raw.LastAccessedAt,
	}
	if raw.CreatedAt != nil {
		env.CreatedAt = *raw.CreatedAt
	}
	return env, nil
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromEpochSeconds(s float64) time.Time {
	return time.Unix(0, int64(s*float64(time.Second)))
}
