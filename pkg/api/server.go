package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/psaab/iproute2/pkg/grammar"
	"github.com/psaab/iproute2/pkg/routetable"
)

// TableSource is the read side of the table store.
type TableSource interface {
	ListTables(ctx context.Context) ([]routetable.TableInfo, error)
	LoadTable(ctx context.Context, name string) (*routetable.Table, error)
}

// Config configures the API server.
type Config struct {
	Addr     string
	Parser   *grammar.Parser // nil = default options
	Tables   TableSource     // nil = table endpoints answer 503
	Recorder *Recorder       // nil = a private recorder
	Auth     *Auth           // nil = no authentication
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	parser     *grammar.Parser
	tables     TableSource
	recorder   *Recorder
	auth       *Auth
	startTime  time.Time
}

// NewServer creates a new API server.
func NewServer(cfg Config) *Server {
	s := &Server{
		parser:    cfg.Parser,
		tables:    cfg.Tables,
		recorder:  cfg.Recorder,
		auth:      cfg.Auth,
		startTime: time.Now(),
	}
	if s.parser == nil {
		s.parser = grammar.NewParser(grammar.Options{})
	}
	if s.recorder == nil {
		s.recorder = NewRecorder()
	}

	mux := http.NewServeMux()
	handle := func(pattern string, h http.Handler) {
		mux.Handle(pattern, s.auth.protect(pattern, h))
	}

	handle("GET /health", http.HandlerFunc(s.healthHandler))

	// Prometheus metrics with isolated registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(newCollector(s))
	handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	handle("GET /api/v1/status", http.HandlerFunc(s.statusHandler))
	handle("POST /api/v1/parse", http.HandlerFunc(s.parseHandler))
	handle("GET /api/v1/parse/stream", http.HandlerFunc(s.parseStreamHandler))
	handle("GET /api/v1/tables", http.HandlerFunc(s.tablesHandler))
	handle("GET /api/v1/tables/{name}", http.HandlerFunc(s.tableHandler))

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Run listens on the configured address and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP API server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
