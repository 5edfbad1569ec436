package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/manager"

	"github.com/AMDEPYC/cpu-boost/internal/boost"
)

const (
	KickPath    = "/kick"
	MaxKickPath = "/max-kick"
	StatusPath  = "/status"
	MetricsPath = "/metrics"
	HealthzPath = "/healthz"

	durationParam = "duration"

	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// BoostControl is the part of the boost controller exposed over HTTP.
type BoostControl interface {
	Kick() bool
	MaxKick(duration time.Duration)
	Status() boost.Status
	Stats() boost.Stats
}

var _ manager.Runnable = &Server{}

type KickResponse struct {
	Accepted bool `json:"accepted"`
}

type FloorStatus struct {
	CPU   int    `json:"cpu"`
	Floor string `json:"floor"`
}

type StatusResponse struct {
	Kind            string        `json:"kind"`
	BiasActive      bool          `json:"biasActive"`
	ApplyPending    bool          `json:"applyPending"`
	LastTrigger     *time.Time    `json:"lastTrigger,omitempty"`
	RemovalDeadline *time.Time    `json:"removalDeadline,omitempty"`
	Floors          []FloorStatus `json:"floors"`
	Stats           boost.Stats   `json:"stats"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server serves the control API next to the metrics and health endpoints.
type Server struct {
	addr    string
	control BoostControl
	handler http.Handler
	logger  logr.Logger
}

// NewServer builds the API for control. Metrics are served from gatherer.
func NewServer(addr string, control BoostControl, gatherer prom.Gatherer) *Server {
	s := &Server{
		addr:    addr,
		control: control,
		logger:  ctrl.Log.WithName("ControlServer"),
	}

	health := &healthz.Handler{Checks: map[string]healthz.Checker{"ping": healthz.Ping}}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+KickPath, s.handleKick)
	mux.HandleFunc("POST "+MaxKickPath, s.handleMaxKick)
	mux.HandleFunc("GET "+StatusPath, s.handleStatus)
	mux.Handle(MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle(HealthzPath, http.StripPrefix(HealthzPath, health))
	mux.Handle(HealthzPath+"/", http.StripPrefix(HealthzPath, health))
	s.handler = mux

	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is done and then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving control API", "address", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("control API failed on %s: %w", s.addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down control API: %w", err)
	}
	return nil
}

func (s *Server) handleKick(w http.ResponseWriter, _ *http.Request) {
	accepted := s.control.Kick()
	s.logger.V(4).Info("kick requested", "accepted", accepted)
	s.writeJSON(w, http.StatusOK, KickResponse{Accepted: accepted})
}

func (s *Server) handleMaxKick(w http.ResponseWriter, req *http.Request) {
	raw := req.URL.Query().Get(durationParam)
	if raw == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "duration is required"})
		return
	}
	duration, err := time.ParseDuration(raw)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if duration <= 0 {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "duration must be positive"})
		return
	}

	s.control.MaxKick(duration)
	s.logger.V(4).Info("max kick applied", "duration", duration)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := s.control.Status()

	resp := StatusResponse{
		Kind:         status.Kind.String(),
		BiasActive:   status.BiasActive,
		ApplyPending: status.ApplyPending,
		Floors: lo.Map(status.Floors, func(floor boost.Floor, cpu int) FloorStatus {
			return FloorStatus{CPU: cpu, Floor: floor.String()}
		}),
		Stats: s.control.Stats(),
	}
	if !status.LastTrigger.IsZero() {
		resp.LastTrigger = &status.LastTrigger
	}
	if !status.RemovalDeadline.IsZero() {
		resp.RemovalDeadline = &status.RemovalDeadline
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error(err, "failed to write response")
	}
}
