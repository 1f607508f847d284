package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chargee-energy/chargee-developer-playground/internal/testutil"
	"github.com/chargee-energy/chargee-developer-playground/pkg/model"
)

func testConfig(interval time.Duration) Config {
	return Config{Interval: interval, Timeout: time.Second, Logger: zerolog.Nop()}
}

func TestPoller_Poll(t *testing.T) {
	backend := testutil.NewBackend()
	backend.SetTelemetry("g1", model.Telemetry{Production: 4.2, Delivery: 1.1})
	p := NewPoller(backend, "g1", testConfig(time.Second))

	if p.Latest().Valid() {
		t.Fatal("reading should be invalid before the first poll")
	}

	r := p.Poll(context.Background())
	if !r.Valid() || r.Telemetry.Production != 4.2 || r.Error != "" {
		t.Errorf("unexpected reading %+v", r)
	}
}

func TestPoller_KeepsLastGoodValue(t *testing.T) {
	backend := testutil.NewBackend()
	backend.SetTelemetry("g1", model.Telemetry{Production: 7})
	p := NewPoller(backend, "g1", testConfig(time.Second))
	ctx := context.Background()

	p.Poll(ctx)
	backend.FailTelemetry(errors.New("upstream down"))
	r := p.Poll(ctx)

	if r.Telemetry.Production != 7 {
		t.Errorf("production = %v, want last good value 7", r.Telemetry.Production)
	}
	if r.Error == "" {
		t.Error("error should be reported")
	}

	backend.FailTelemetry(nil)
	if r := p.Poll(ctx); r.Error != "" {
		t.Errorf("error not cleared after recovery: %q", r.Error)
	}
}

func TestPoller_Run(t *testing.T) {
	backend := testutil.NewBackend()
	p := NewPoller(backend, "g1", testConfig(10*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}

	if got := backend.Calls("GetLatestTelemetry"); got < 3 {
		t.Errorf("got %d polls, want at least 3", got)
	}
	if r := p.Latest(); !r.Valid() || r.Error != "" {
		t.Errorf("latest reading = %+v", r)
	}
}
