package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/netutil"

	"github.com/cometadata/preprint-affiliations/internal/observability/metrics"
)

const (
	opsService         = "affiliations-ops"
	defaultMaxConns    = 16
	opsShutdownTimeout = 5 * time.Second
)

// OpsOptions configures the health and metrics endpoint of a batch run.
type OpsOptions struct {
	Logger *slog.Logger
	// Metrics serves /metrics; a nil handler answers 404.
	Metrics     http.Handler
	HTTPMetrics *metrics.HTTPServerMetrics
	MaxConns    int
}

// NewOpsHandler serves /healthz and /metrics.
func NewOpsHandler(opts OpsOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthz)
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}

	var handler http.Handler = mux
	if opts.HTTPMetrics != nil {
		handler = opts.HTTPMetrics.Middleware(opsService, handler)
	}
	handler = accessLogMiddleware(logger, handler)
	return requestIDMiddleware(handler)
}

func healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// OpsServer runs the ops handler next to a batch command.
type OpsServer struct {
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger
}

// ListenOps binds addr immediately so a port conflict fails the command
// before any work starts.
func ListenOps(addr string, opts OpsOptions) (*OpsServer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxConns := opts.MaxConns
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen ops server on %s: %w", addr, err)
	}

	return &OpsServer{
		server: &http.Server{
			Handler:           NewOpsHandler(opts),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		listener: netutil.LimitListener(ln, maxConns),
		logger:   logger,
	}, nil
}

func (s *OpsServer) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until ctx is done, then shuts the server down.
func (s *OpsServer) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("ops_server_listening", "addr", s.Addr())
		errCh <- s.server.Serve(s.listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("ops server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opsShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ops server shutdown: %w", err)
	}
	return nil
}
