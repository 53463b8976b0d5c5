package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loginguard/internal/config"
	"loginguard/internal/detector"
	"loginguard/internal/engine"
	"loginguard/internal/ingest"
	"loginguard/internal/model"
	"loginguard/internal/normalize"
)

const maxBody = 2 << 20

// Engine is the part of *engine.Engine the API drives.
type Engine interface {
	Score(ev model.LoginEvent) (model.Assessment, error)
	Reload(ctx context.Context, name string) error
	Status() engine.Status
}

type Server struct {
	cfg      *config.Manager
	engine   Engine
	source   ingest.Source
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	version  string
}

type statusResponse struct {
	Status     string        `json:"status"`
	Time       string        `json:"time"`
	Version    string        `json:"version"`
	ConfigPath string        `json:"config_path"`
	Engine     engine.Status `json:"engine"`
	Ingest     ingestStatus  `json:"ingest"`
	Storage    bool          `json:"storage"`
}

type ingestStatus struct {
	FileTail bool `json:"file_tail"`
	Kafka    bool `json:"kafka"`
}

type errorResponse struct {
	Error    string   `json:"error"`
	Problems []string `json:"problems,omitempty"`
}

func NewServer(cfg *config.Manager, eng Engine, source ingest.Source, gatherer prometheus.Gatherer, logger *slog.Logger, version string) *Server {
	return &Server{
		cfg:      cfg,
		engine:   eng,
		source:   source,
		gatherer: gatherer,
		logger:   logger,
		version:  version,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/score", s.handleScore)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/admin/reload", s.handleReload)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

func Start(ctx context.Context, server *Server) *http.Server {
	if server == nil || server.cfg == nil {
		return nil
	}
	logger := server.logger
	current := server.cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	httpServer := &http.Server{
		Addr:              current.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		Ingest: ingestStatus{
			FileTail: cfg.Ingest.FileTail.Enabled,
			Kafka:    cfg.Ingest.Kafka.Enabled,
		},
		Storage: cfg.Storage.Enabled,
	}
	if s.engine != nil {
		resp.Engine = s.engine.Status()
	}
	if !resp.Engine.Ready {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleScore scores one event synchronously.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil || len(strings.TrimSpace(string(body))) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "request body required"})
		return
	}
	ev, err := s.source.Decode(body)
	if err != nil {
		resp := errorResponse{Error: err.Error()}
		var verr *normalize.ValidationError
		if errors.As(err, &verr) {
			resp = errorResponse{Error: "invalid login event", Problems: verr.Problems}
		}
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}
	a, err := s.engine.Score(ev)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, a)
	case errors.Is(err, engine.ErrNotReady):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	case errors.Is(err, detector.ErrFeatureMismatch):
		if s.logger != nil {
			s.logger.Error("model and extractor disagree on features", "err", err)
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

// handleEvents queues one event or an array of events for asynchronous
// scoring.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	list, err := ingest.ParseJSONArray(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	accepted, failed, dropped := 0, 0, 0
	for _, obj := range list {
		switch err := s.source.AcceptMap(r.Context(), obj, "api"); {
		case err == nil:
			accepted++
		case errors.Is(err, ingest.ErrDropped):
			dropped++
		default:
			failed++
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]int{
		"accepted": accepted,
		"failed":   failed,
		"dropped":  dropped,
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	var req struct {
		Name string `json:"name"`
	}
	_ = json.Unmarshal(body, &req)
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = s.cfg.Get().Model.Name
	}
	if err := s.engine.Reload(r.Context(), name); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrShutdown) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{
			"status": "error",
			"error":  err.Error(),
			"engine": s.engine.Status(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"engine": s.engine.Status(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
