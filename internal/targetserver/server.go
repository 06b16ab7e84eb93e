// Package targetserver is a stub of the system under test. It answers
// GET /user so a run can be pointed at a local address.
package targetserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config controls the stub's responses.
type Config struct {
	// Status returned by GET /user. Zero means 200.
	Status int

	// Delay applied before every /user response
	Delay time.Duration
}

// User is the account served by GET /user.
type User struct {
	ID      uint            `json:"id"`
	Name    string          `json:"name"`
	Email   string          `json:"email"`
	Balance decimal.Decimal `json:"balance"`
}

// GetUserResp wraps the user the way the API under test does.
type GetUserResp struct {
	Data *User `json:"data"`
}

// HealthResponse is served by /health.
type HealthResponse struct {
	Status string `json:"status"`
	Hits   int64  `json:"hits"`
}

// Server serves the stub endpoints.
type Server struct {
	cfg    Config
	logger *zap.Logger
	hits   atomic.Int64
}

// New returns a Server. A nil logger disables request logging.
func New(cfg Config, logger *zap.Logger) *Server {
	if cfg.Status == 0 {
		cfg.Status = http.StatusOK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{cfg: cfg, logger: logger}
}

// Hits returns how many /user requests were served.
func (s *Server) Hits() int64 {
	return s.hits.Load()
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/user", s.handleUser).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Use(s.logRequests)
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
// ready, when non-nil, receives the bound address once listening.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready chan<- string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("Target server listening",
		zap.String("addr", ln.Addr().String()),
		zap.Int("status", s.cfg.Status),
		zap.Duration("delay", s.cfg.Delay))
	if ready != nil {
		ready <- ln.Addr().String()
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down target server: %w", err)
	}
	s.logger.Info("Target server stopped", zap.Int64("hits", s.Hits()))
	return nil
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	s.hits.Add(1)

	if s.cfg.Delay > 0 {
		select {
		case <-time.After(s.cfg.Delay):
		case <-r.Context().Done():
			return
		}
	}

	if s.cfg.Status != http.StatusOK {
		writeJSON(w, s.cfg.Status, map[string]string{"error": http.StatusText(s.cfg.Status)})
		return
	}
	writeJSON(w, http.StatusOK, GetUserResp{Data: &User{
		ID:      1,
		Name:    "Test User",
		Email:   "test@example.com",
		Balance: decimal.RequireFromString("100.50"),
	}})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Hits: s.Hits()})
}

// logRequests logs every request at debug level.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("Request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
