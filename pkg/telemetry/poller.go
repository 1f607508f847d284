// Package telemetry polls the latest aggregated energy snapshot of a group.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chargee-energy/chargee-developer-playground/pkg/model"
)

// DefaultInterval is the polling period.
const DefaultInterval = time.Second

var pollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fleetstat_telemetry_polls_total",
	Help: "Telemetry polls by outcome",
}, []string{"outcome"})

// Reading is the latest poll outcome. Telemetry keeps the last successful
// value when a later poll fails.
type Reading struct {
	GroupID   string          `json:"groupId"`
	Telemetry model.Telemetry `json:"telemetry"`
	FetchedAt time.Time       `json:"fetchedAt,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Valid reports whether at least one poll succeeded.
func (r Reading) Valid() bool {
	return !r.FetchedAt.IsZero()
}

// Config holds poller configuration.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
	Logger   zerolog.Logger
}

// DefaultConfig returns the default poller configuration.
func DefaultConfig() Config {
	return Config{
		Interval: DefaultInterval,
		Timeout:  5 * time.Second,
		Logger:   log.With().Str("component", "telemetry").Logger(),
	}
}

// Poller fetches the telemetry of one group on a fixed interval.
type Poller struct {
	source   model.TelemetrySource
	groupID  string
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger
	now      func() time.Time

	mu     sync.RWMutex
	latest Reading
}

// NewPoller creates a poller for groupID.
func NewPoller(source model.TelemetrySource, groupID string, cfg Config) *Poller {
	if source == nil {
		panic("telemetry source cannot be nil")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Poller{
		source:   source,
		groupID:  groupID,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger.With().Str("group_id", groupID).Logger(),
		now:      time.Now,
		latest:   Reading{GroupID: groupID},
	}
}

// Latest returns the latest reading.
func (p *Poller) Latest() Reading {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// Run polls immediately and then every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Debug().Msg("Telemetry polling stopped")
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll fetches one reading.
func (p *Poller) Poll(ctx context.Context) Reading {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	t, err := p.source.GetLatestTelemetry(ctx, p.groupID)

	p.mu.Lock()
	if err != nil {
		p.latest.Error = err.Error()
		pollsTotal.WithLabelValues("error").Inc()
		p.logger.Warn().Err(err).Msg("Telemetry poll failed")
	} else {
		p.latest = Reading{GroupID: p.groupID, Telemetry: t, FetchedAt: p.now()}
		pollsTotal.WithLabelValues("ok").Inc()
	}
	reading := p.latest
	p.mu.Unlock()
	return reading
}
