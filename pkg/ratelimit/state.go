// Package ratelimit gates outbound requests to the remote collection
// service. A token bucket bounds the request rate of this process, and a
// cooldown shared through Redis stops every process once the service
// answers 429 Too Many Requests, until its Retry-After window has passed.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Redis keys for shared limiter state.
const (
	RedisKeyBlockedUntil = "fleetstat:rate_limit:blocked_until"
)

// DefaultCooldown applies when a 429 response carries no usable
// Retry-After header.
const DefaultCooldown = 60 * time.Second

// State is the upstream throttling state shared by all limiters.
type State struct {
	// BlockedUntil is when the upstream cooldown ends. Zero when none.
	BlockedUntil time.Time `json:"blocked_until"`

	// LastUpdate is when the state was last read or written.
	LastUpdate time.Time `json:"last_update"`
}

// Blocked reports whether requests must not be sent at now.
func (s State) Blocked(now time.Time) bool {
	return now.Before(s.BlockedUntil)
}

// Remaining returns the time left in the cooldown at now.
func (s State) Remaining(now time.Time) time.Duration {
	if !s.Blocked(now) {
		return 0
	}
	return s.BlockedUntil.Sub(now)
}

// ParseRetryAfter interprets a Retry-After header value relative to now.
// Both delay-seconds and HTTP-date forms are accepted; anything else yields
// DefaultCooldown.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return DefaultCooldown
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return DefaultCooldown
		}
		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return DefaultCooldown
}
