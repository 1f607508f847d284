package cache

import (
	"encoding/json"
	"time"
)

// Entry is a stored snapshot envelope.
type Entry struct {
	// Key is the Redis key the entry was read from or written to.
	Key string `json:"-"`

	// Data is the JSON encoded payload.
	Data json.RawMessage `json:"data"`

	// WrittenAt is when the payload was stored.
	WrittenAt time.Time `json:"writtenAt"`

	// TTL is how long the entry stays valid after WrittenAt.
	TTL time.Duration `json:"ttl"`
}

// IsExpired reports whether the entry is no longer valid at now.
func (e *Entry) IsExpired(now time.Time) bool {
	return now.Sub(e.WrittenAt) >= e.TTL
}

// Age returns how long ago the entry was written.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.WrittenAt)
}

// Remaining returns the time until expiry, or 0 if already expired.
func (e *Entry) Remaining(now time.Time) time.Duration {
	left := e.WrittenAt.Add(e.TTL).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
