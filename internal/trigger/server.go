// Package trigger serves the HTTP API that queues reconcile runs.
package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vibe-io/cdk-extensions-sub001/internal/eventbus"
	"github.com/vibe-io/cdk-extensions-sub001/internal/metrics"
	"github.com/vibe-io/cdk-extensions-sub001/internal/resource"
	"github.com/vibe-io/cdk-extensions-sub001/internal/runner"
)

// IdempotencyHeader carries a client key; a key whose run already succeeded is not run again.
const IdempotencyHeader = "Idempotency-Key"

// Targets resolves configured targets.
type Targets interface {
	FindTarget(name string) (resource.Target, bool)
	ResourceTargets() []resource.Target
}

// Deduper reports whether an idempotency key already has a successful run.
type Deduper interface {
	HasSucceeded(ctx context.Context, idempotencyKey string) bool
}

// Server is an HTTP server that turns trigger requests into bus events.
type Server struct {
	addr       string
	bus        *eventbus.Bus
	targets    Targets
	dedupe     Deduper
	httpServer *http.Server
}

// NewServer creates a new trigger server. dedupe may be nil.
func NewServer(host string, port int, bus *eventbus.Bus, targets Targets, dedupe Deduper) *Server {
	return &Server{
		addr:    fmt.Sprintf("%s:%d", host, port),
		bus:     bus,
		targets: targets,
		dedupe:  dedupe,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /targets/{name}/{action}", s.handleTrigger)
	mux.HandleFunc("GET /targets", s.handleList)
	return mux
}

// Run starts the trigger server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting trigger server")

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Trigger server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

type triggerResponse struct {
	Status string `json:"status"`
	RunID  string `json:"run_id,omitempty"`
	Target string `json:"target,omitempty"`
	Action string `json:"action,omitempty"`
	Error  string `json:"error,omitempty"`
}

type targetView struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	ID      string `json:"id"`
	Cluster string `json:"cluster,omitempty"`
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	target, ok := s.targets.FindTarget(name)
	if !ok {
		metrics.TriggerRequest("not_found")
		writeJSON(w, http.StatusNotFound, triggerResponse{Status: "error", Target: name, Error: "unknown target"})
		return
	}

	action, err := resource.ParseAction(r.PathValue("action"))
	if err != nil {
		metrics.TriggerRequest("bad_request")
		writeJSON(w, http.StatusBadRequest, triggerResponse{Status: "error", Target: name, Error: err.Error()})
		return
	}

	key := r.Header.Get(IdempotencyHeader)
	if key != "" && s.dedupe != nil && s.dedupe.HasSucceeded(r.Context(), key) {
		metrics.TriggerRequest("duplicate")
		writeJSON(w, http.StatusOK, triggerResponse{Status: "already_succeeded", Target: name, Action: string(action)})
		return
	}

	req := runner.Request{
		Target:         target,
		Action:         action,
		RunID:          uuid.NewString(),
		IdempotencyKey: key,
	}

	log.Debug().
		Str("target", name).
		Str("action", string(action)).
		Str("run_id", req.RunID).
		Str("idempotency_key", key).
		Msg("Received trigger request")

	if !s.bus.Publish(eventbus.Event{Type: eventbus.EventTypeRunRequested, ID: req.RunID, Payload: req}) {
		metrics.TriggerRequest("queue_full")
		writeJSON(w, http.StatusServiceUnavailable, triggerResponse{Status: "error", Target: name, Error: "run queue is full"})
		return
	}

	metrics.TriggerRequest("accepted")
	writeJSON(w, http.StatusAccepted, triggerResponse{
		Status: "accepted",
		RunID:  req.RunID,
		Target: name,
		Action: string(action),
	})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	targets := s.targets.ResourceTargets()
	views := make([]targetView, 0, len(targets))
	for _, t := range targets {
		views = append(views, targetView{Name: t.Name, Kind: string(t.Kind), ID: t.ID, Cluster: t.Cluster})
	}
	writeJSON(w, http.StatusOK, views)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}
