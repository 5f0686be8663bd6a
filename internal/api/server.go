// Package api serves the capture controls and packet stream over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"netrisk/internal/analysis"
	"netrisk/internal/discovery"
	"netrisk/internal/metrics"
	"netrisk/internal/models"
	"netrisk/internal/reporting"
	"netrisk/internal/session"
)

const (
	defaultLimit = 50
	defaultTop   = 10
)

// Controller is the capture session the server drives.
type Controller interface {
	Start(iface string) session.StartResult
	Stop() session.StopResult
	Reset()
	Snapshot(limit int) []models.PacketRecord
	Status() models.Status
	Summary(top int) analysis.Summary
}

// ActionResponse answers start, stop and reset.
type ActionResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// LatestResponse answers /latest.
type LatestResponse struct {
	Count   int                   `json:"count"`
	Packets []models.PacketRecord `json:"packets"`
}

// ErrorResponse carries a request error.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// HealthResponse answers /healthz.
type HealthResponse struct {
	Status     string `json:"status"`
	Classifier string `json:"classifier"`
	Capturing  bool   `json:"isCapturing"`
}

// Options configures a Server.
type Options struct {
	Controller  Controller
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
	CORSOrigins []string
	// Classifier names the risk classifier variant for /healthz.
	Classifier string
	// Interfaces lists capture devices; defaults to discovery.FindInterfaces.
	Interfaces func() ([]discovery.Interface, error)
}

// Server is the HTTP control surface.
type Server struct {
	ctl        Controller
	metrics    *metrics.Metrics
	log        *zap.Logger
	origins    map[string]bool
	classifier string
	interfaces func() ([]discovery.Interface, error)
	mux        *http.ServeMux
}

// NewServer wires the routes.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Interfaces == nil {
		opts.Interfaces = discovery.FindInterfaces
	}
	s := &Server{
		ctl:        opts.Controller,
		metrics:    opts.Metrics,
		log:        opts.Logger,
		origins:    make(map[string]bool),
		classifier: opts.Classifier,
		interfaces: opts.Interfaces,
		mux:        http.NewServeMux(),
	}
	for _, o := range opts.CORSOrigins {
		s.origins[o] = true
	}

	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/interfaces", s.handleInterfaces)
	s.mux.HandleFunc("POST /api/packets/start", s.handleStart)
	s.mux.HandleFunc("POST /api/packets/stop", s.handleStop)
	s.mux.HandleFunc("GET /api/packets/latest", s.handleLatest)
	s.mux.HandleFunc("DELETE /api/packets/reset", s.handleReset)
	s.mux.HandleFunc("GET /api/packets/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/packets/summary", s.handleSummary)
	s.mux.HandleFunc("GET /api/packets/report", s.handleReport)
	if opts.Metrics != nil {
		s.mux.Handle("GET /metrics", opts.Metrics.Handler())
	}
	return s
}

// Handler returns the routes wrapped in CORS and request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.cors(s.mux))
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http shutdown")
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "netrisk backend is running."})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Classifier: s.classifier,
		Capturing:  s.ctl.Status().Capturing,
	})
}

func (s *Server) handleInterfaces(w http.ResponseWriter, r *http.Request) {
	ifaces, err := s.interfaces()
	if err != nil {
		s.log.Warn("interface discovery failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Detail: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ifaces)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if s.ctl.Start(r.URL.Query().Get("iface")) == session.AlreadyRunning {
		writeJSON(w, http.StatusOK, ActionResponse{
			Status: string(session.AlreadyRunning),
			Detail: "Packet capture session is already active.",
		})
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{
		Status: string(session.Started),
		Detail: "Packet capture initiated successfully.",
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if s.ctl.Stop() == session.NotRunning {
		writeJSON(w, http.StatusOK, ActionResponse{
			Status: string(session.NotRunning),
			Detail: "No active capture session found.",
		})
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{
		Status: string(session.Stopped),
		Detail: "Packet capture stopped successfully.",
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultLimit)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Detail: err.Error()})
		return
	}
	packets := s.ctl.Snapshot(limit)
	writeJSON(w, http.StatusOK, LatestResponse{Count: len(packets), Packets: packets})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.ctl.Reset()
	writeJSON(w, http.StatusOK, ActionResponse{
		Status: "reset",
		Detail: "Capture session and ID counter cleared.",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctl.Status())
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	top, err := queryInt(r, "top", defaultTop)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Detail: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.ctl.Summary(top))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultLimit)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Detail: err.Error()})
		return
	}
	rep := reporting.Report{
		Status:  s.ctl.Status(),
		Summary: s.ctl.Summary(defaultTop),
		Packets: s.ctl.Snapshot(limit),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := reporting.Render(w, rep); err != nil {
		s.log.Error("report rendering failed", zap.Error(err))
	}
}

// queryInt reads a non-negative integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Errorf("query parameter %s must be an integer, got %q", name, raw)
	}
	if n < 0 {
		return 0, errors.Errorf("query parameter %s must not be negative, got %d", name, n)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
