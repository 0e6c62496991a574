// Package server assembles the HTTP API: routes, middleware chain and the
// WebSocket hub.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tippinbit/tippind/internal/domain"
	"github.com/tippinbit/tippind/internal/server/handler"
	"github.com/tippinbit/tippind/internal/server/middleware"
	"github.com/tippinbit/tippind/internal/server/ws"
)

// Claim attempts per client IP, per window.
const (
	claimRateLimit  = 20
	claimRateWindow = time.Minute
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Price     *handler.PriceHandler
	Usernames *handler.UsernameHandler
	Borrow    *handler.BorrowHandler
	Balance   *handler.BalanceHandler
	Tips      *handler.TipsHandler
}

// Server is the headless HTTP + WebSocket API server for the tipping daemon.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, rate limiting) and attaches the
// WebSocket hub. limiter may be nil, which disables rate limiting on the
// claim endpoint.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Price endpoint.
	mux.HandleFunc("GET /api/price", handlers.Price.GetPrice)

	// Username endpoints. Claims are rate limited per client IP.
	mux.HandleFunc("GET /api/username", handlers.Usernames.LookupUsername)
	claim := http.Handler(http.HandlerFunc(handlers.Usernames.ClaimUsername))
	if limiter != nil {
		claim = middleware.RateLimit(limiter, "claim", claimRateLimit, claimRateWindow)(claim)
	}
	mux.Handle("POST /api/username", claim)

	// Borrow flow endpoints.
	mux.HandleFunc("GET /api/borrow/capacity", handlers.Borrow.BorrowCapacity)
	mux.HandleFunc("POST /api/borrow", handlers.Borrow.StartBorrow)
	mux.HandleFunc("GET /api/borrow/{id}", handlers.Borrow.GetBorrow)
	mux.HandleFunc("POST /api/borrow/{id}/retry", handlers.Borrow.RetryBorrow)
	mux.HandleFunc("POST /api/borrow/{id}/cancel", handlers.Borrow.CancelBorrow)

	// Balance endpoints.
	mux.HandleFunc("GET /api/balance", handlers.Balance.GetBalance)
	mux.HandleFunc("POST /api/balance/refresh", handlers.Balance.RefreshBalance)

	// Tip journal endpoints.
	mux.HandleFunc("GET /api/tips", handlers.Tips.ListTips)
	mux.HandleFunc("GET /api/tips/{id}", handlers.Tips.GetTip)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = corsMiddleware(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// corsMiddleware returns middleware that sets CORS headers for the allowed
// origins. If no origins are specified, it defaults to allowing all origins.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" {
				allowed := len(allowedOrigins) == 0
				for _, o := range allowedOrigins {
					if strings.EqualFold(o, "*") || strings.EqualFold(o, origin) {
						allowed = true
						break
					}
				}

				if allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
					w.Header().Set("Access-Control-Max-Age", "86400")
				}
			}

			// Handle preflight requests.
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
