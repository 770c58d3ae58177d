// Package server implements the HTTP server that exposes the course
// assistant via a REST API: knowledge base initialization, extension, and
// question answering, plus health, readiness, and metrics endpoints.
// The server is started by the `lectio serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/courseai/lectio-go/internal/assistant"
	"github.com/courseai/lectio-go/internal/logging"
)

// New constructs a Server from the provided assistant and config.
func New(a *assistant.Assistant, cfg *Config) (*Server, error) {
	if a == nil {
		return nil, fmt.Errorf("server: assistant must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover a full index build over a large lecture set.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		rag:     a,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	if cfg.APIKey == "" {
		s.log.Warn("server: no API key configured — authentication is disabled")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	// Rate limiting and auth apply only to the RAG operations; health,
	// readiness, and metrics stay open for orchestrators and scrapers.
	protect := func(h http.Handler) http.Handler {
		return rl.middleware(authMiddleware(cfg.APIKey, cfg.Identities, h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/rag/init", protect(http.HandlerFunc(s.handleInit)))
	mux.Handle("POST /api/rag/add", protect(http.HandlerFunc(s.handleAdd)))
	mux.Handle("POST /api/rag/ask", protect(http.HandlerFunc(s.handleAsk)))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, s.metricsMiddleware(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("lectio server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleInit handles POST /api/rag/init. It rebuilds the knowledge base from
// scratch out of the given lecture files, replacing any previous index.
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req initRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.PDFPaths) == 0 {
		writeError(w, http.StatusBadRequest, "pdf_paths is required")
		return
	}

	start := time.Now()
	chunks, err := s.rag.InitializeKnowledgeBase(r.Context(), req.PDFPaths)
	if err != nil {
		s.writeRAGError(w, r, "init", err)
		return
	}

	s.metrics.chunksIndexedTotal.WithLabelValues("init").Add(float64(chunks))
	log.Info("knowledge base initialized",
		slog.Int("files", len(req.PDFPaths)),
		slog.Int("chunks", chunks),
		slog.Duration("duration", time.Since(start)),
	)

	writeJSON(w, http.StatusCreated, initResponse{
		Status:             "ok",
		Message:            "knowledge base initialized",
		DocumentsProcessed: len(req.PDFPaths),
		ChunksCreated:      chunks,
	})
}

// handleAdd handles POST /api/rag/add. It appends the given lecture files to
// the existing knowledge base.
func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req initRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.PDFPaths) == 0 {
		writeError(w, http.StatusBadRequest, "pdf_paths is required")
		return
	}

	added, err := s.rag.ExtendKnowledgeBase(r.Context(), req.PDFPaths)
	if err != nil {
		s.writeRAGError(w, r, "add", err)
		return
	}

	total := added
	if status, err := s.rag.Status(r.Context()); err == nil {
		total = status.Chunks
	} else {
		log.Warn("status after add failed", slog.Any("error", err))
	}

	s.metrics.chunksIndexedTotal.WithLabelValues("add").Add(float64(added))
	log.Info("knowledge base extended",
		slog.Int("files", len(req.PDFPaths)),
		slog.Int("added", added),
		slog.Int("total", total),
	)

	writeJSON(w, http.StatusOK, addResponse{
		Status:            "ok",
		Message:           "documents added to knowledge base",
		NewDocumentsAdded: added,
		TotalDocuments:    total,
	})
}

// handleAsk handles POST /api/rag/ask. It answers a student question within
// the named session's conversation and reports the sources used.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start := time.Now()
	result, err := s.rag.Answer(r.Context(), req.SessionID, req.Question)
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		if isClientError(err) {
			outcome = "rejected"
		}
	}
	s.metrics.askRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.askDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())

	if err != nil {
		s.writeRAGError(w, r, "ask", err)
		return
	}

	log.Info("question answered",
		slog.String("session", req.SessionID),
		slog.Int("sources", len(result.Sources)),
		slog.Duration("duration", elapsed),
	)

	writeJSON(w, http.StatusOK, result)
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeRAGError maps assistant errors onto HTTP responses. Precondition and
// validation failures are the caller's fault and return 400 with the reason;
// everything else is an internal failure — the cause is logged but the
// client only sees a generic message.
func (s *Server) writeRAGError(w http.ResponseWriter, r *http.Request, op string, err error) {
	log := logging.FromContext(r.Context())

	if isClientError(err) {
		log.Warn("rejected request",
			slog.String("op", op),
			slog.Any("error", err),
		)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log.Error("operation failed",
		slog.String("op", op),
		slog.Any("error", err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// isClientError reports whether err is one of the assistant's precondition
// sentinels — failures the client can fix by changing the request.
func isClientError(err error) bool {
	return errors.Is(err, assistant.ErrNoContent) ||
		errors.Is(err, assistant.ErrNoIndex) ||
		errors.Is(err, assistant.ErrEmptyQuestion)
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("response encode error", slog.Any("error", err))
	}
}

// writeError writes a JSON error body with the given status code.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
