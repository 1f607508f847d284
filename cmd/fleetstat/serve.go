package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/chargee-energy/chargee-developer-playground/pkg/engine"
	"github.com/chargee-energy/chargee-developer-playground/pkg/logging"
	"github.com/chargee-energy/chargee-developer-playground/pkg/metrics"
	"github.com/chargee-energy/chargee-developer-playground/pkg/model"
	"github.com/chargee-energy/chargee-developer-playground/pkg/progress"
	"github.com/chargee-energy/chargee-developer-playground/pkg/session"
	"github.com/chargee-energy/chargee-developer-playground/pkg/telemetry"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, _ []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			ping := func() error { return a.redis.Ping(ctx).Err() }
			srv := newServer(ctx, a.engine, a.client, ping, a.cfg.Telemetry.Interval)
			defer srv.Close()

			httpServer := &http.Server{
				Addr:              addr,
				Handler:           srv.routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info().Str("addr", addr).Msg("Starting fleetstat server")
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			a.logger.Info().Msg("Shutting down fleetstat server")
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancelShutdown()
			return httpServer.Shutdown(shutdownCtx)
		}),
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")

	return cmd
}

// server exposes analytics sessions and telemetry pollers over HTTP. One
// session and one poller are kept per group requested.
type server struct {
	ctx      context.Context
	engine   *engine.Engine
	source   model.TelemetrySource
	ping     func() error
	interval time.Duration
	logger   zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session.Session
	pollers  map[string]*telemetry.Poller
	cancels  []context.CancelFunc
}

func newServer(ctx context.Context, eng *engine.Engine, source model.TelemetrySource, ping func() error, interval time.Duration) *server {
	return &server{
		ctx:      ctx,
		engine:   eng,
		source:   source,
		ping:     ping,
		interval: interval,
		logger:   logging.NewLogger("server"),
		sessions: make(map[string]*session.Session),
		pollers:  make(map[string]*telemetry.Poller),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler(s.ping))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /groups/{id}/analytics", s.handleAnalytics)
	mux.HandleFunc("POST /groups/{id}/analytics/refresh", s.handleRefresh)
	mux.HandleFunc("GET /groups/{id}/progress", s.handleProgress)
	mux.HandleFunc("GET /groups/{id}/telemetry", s.handleTelemetry)
	return mux
}

// Close stops the pollers and waits for running aggregations.
func (s *server) Close() {
	s.mu.Lock()
	cancels := s.cancels
	sessions := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	for _, sess := range sessions {
		sess.Close()
		sess.Wait()
	}
}

func (s *server) session(groupID string) *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[groupID]
	if !ok {
		sess = session.New(s.ctx, s.engine, session.WithLogger(logging.NewLogger("session")))
		s.sessions[groupID] = sess
	}
	return sess
}

// poller returns the group's poller and whether it was just created.
func (s *server) poller(groupID string) (*telemetry.Poller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pollers[groupID]
	if ok {
		return p, false
	}

	cfg := telemetry.DefaultConfig()
	cfg.Interval = s.interval
	cfg.Logger = logging.NewLogger("telemetry")
	p = telemetry.NewPoller(s.source, groupID, cfg)
	s.pollers[groupID] = p

	ctx, cancel := context.WithCancel(s.ctx)
	s.cancels = append(s.cancels, cancel)
	go p.Run(ctx)

	return p, true
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(ping func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := ping(); err != nil {
			http.Error(w, fmt.Sprintf("Redis unavailable: %v", err), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

func (s *server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")
	respond(w, http.StatusOK, s.session(groupID).Select(groupID))
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")
	sess := s.session(groupID)
	sess.Select(groupID)
	respond(w, http.StatusAccepted, sess.Refresh())
}

// progressResponse is the progress view of a group's session.
type progressResponse struct {
	GroupID  string          `json:"groupId"`
	Running  bool            `json:"running"`
	Progress *progress.State `json:"progress,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func (s *server) handleProgress(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")

	s.mu.Lock()
	sess, ok := s.sessions[groupID]
	s.mu.Unlock()
	if !ok {
		respond(w, http.StatusOK, progressResponse{GroupID: groupID})
		return
	}

	snap := sess.Snapshot()
	respond(w, http.StatusOK, progressResponse{
		GroupID:  groupID,
		Running:  snap.Running,
		Progress: snap.Progress,
		Error:    snap.Error,
	})
}

func (s *server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")

	p, created := s.poller(groupID)
	reading := p.Latest()
	if created || !reading.Valid() {
		reading = p.Poll(r.Context())
	}

	status := http.StatusOK
	if !reading.Valid() {
		status = http.StatusBadGateway
	}
	respond(w, status, reading)
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := writeJSON(w, v); err != nil {
		logging.NewLogger("server").Warn().Err(err).Msg("Failed to write response")
	}
}
