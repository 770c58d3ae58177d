package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/courseai/lectio-go/internal/answer"
	"github.com/courseai/lectio-go/internal/assistant"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	// Must be long enough for index builds over large lecture sets.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all /api/rag/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Identities gates authenticated principals on an active flag.
	// Nil disables the gate; see [IdentityLookup].
	Identities IdentityLookup
	// MetricsRegistry receives the server's Prometheus metric registrations.
	// If nil, prometheus.DefaultRegisterer is used.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs the GET /metrics endpoint.
	// If nil, prometheus.DefaultGatherer is used.
	MetricsGatherer prometheus.Gatherer
}

// ragService is the interface the handlers call to operate on the knowledge
// base. *assistant.Assistant satisfies it; tests inject a fake.
type ragService interface {
	InitializeKnowledgeBase(ctx context.Context, paths []string) (int, error)
	ExtendKnowledgeBase(ctx context.Context, paths []string) (int, error)
	Answer(ctx context.Context, session, question string) (*answer.Result, error)
	Status(ctx context.Context) (*assistant.Status, error)
}

// Server is the HTTP server that exposes the course assistant.
type Server struct {
	// rag is the assistant the handlers delegate to; set to the real
	// *assistant.Assistant in production, overridden by a fake in tests.
	rag ragService
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds this server's Prometheus instruments.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// initRequest is the JSON body for POST /api/rag/init and /api/rag/add.
type initRequest struct {
	// PDFPaths lists the lecture files to ingest. Non-PDF files are read
	// as plain text.
	PDFPaths []string `json:"pdf_paths"`
}

// initResponse is the JSON response for POST /api/rag/init.
type initResponse struct {
	Status string `json:"status"`
	Message string `json:"message"`
	// DocumentsProcessed is the number of lecture files that were read.
	DocumentsProcessed int `json:"documents_processed"`
	// ChunksCreated is the number of chunks indexed into the collection.
	ChunksCreated int `json:"chunks_created"`
}

// addResponse is the JSON response for POST /api/rag/add.
type addResponse struct {
	Status string `json:"status"`
	Message string `json:"message"`
	// NewDocumentsAdded is the number of chunks appended by this request.
	NewDocumentsAdded int `json:"new_documents_added"`
	// TotalDocuments is the collection size after the append.
	TotalDocuments int `json:"total_documents"`
}

// askRequest is the JSON body for POST /api/rag/ask.
type askRequest struct {
	// Question is the student's natural language question.
	Question string `json:"question"`
	// SessionID names the conversation the exchange belongs to.
	// Empty selects the default shared conversation.
	SessionID string `json:"session_id,omitempty"`
}

// errorResponse is the JSON body for all non-2xx responses.
type errorResponse struct {
	Error string `json:"error"`
}
