package ratelimit

import (
	"net/http"
	"testing"
	"time"
)

func TestState_Blocked(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		state         State
		wantBlocked   bool
		wantRemaining time.Duration
	}{
		{name: "no cooldown", state: State{}, wantBlocked: false},
		{name: "active cooldown", state: State{BlockedUntil: now.Add(30 * time.Second)}, wantBlocked: true, wantRemaining: 30 * time.Second},
		{name: "expired cooldown", state: State{BlockedUntil: now.Add(-time.Second)}, wantBlocked: false},
		{name: "ends exactly now", state: State{BlockedUntil: now}, wantBlocked: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Blocked(now); got != tt.wantBlocked {
				t.Errorf("Blocked() = %v, want %v", got, tt.wantBlocked)
			}
			if got := tt.state.Remaining(now); got != tt.wantRemaining {
				t.Errorf("Remaining() = %v, want %v", got, tt.wantRemaining)
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"seconds", "120", 120 * time.Second},
		{"padded seconds", " 5 ", 5 * time.Second},
		{"empty", "", DefaultCooldown},
		{"zero", "0", DefaultCooldown},
		{"negative", "-3", DefaultCooldown},
		{"http date", now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{"past date", now.Add(-time.Minute).Format(http.TimeFormat), DefaultCooldown},
		{"garbage", "soon", DefaultCooldown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseRetryAfter(tt.value, now); got != tt.want {
				t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}
