package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"bingot/api/handlers"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 5 * time.Second

type Config struct {
	Addr string
	// TxRate limits submitted transactions per second across all clients.
	// Zero disables the limit.
	TxRate  float64
	TxBurst int
}

func DefaultConfig() Config {
	return Config{
		Addr:    ":8080",
		TxRate:  50,
		TxBurst: 100,
	}
}

// Server represents the HTTP API server
type Server struct {
	cfg     Config
	router  *mux.Router
	hub     *Hub
	limiter *rate.Limiter
	logger  zerolog.Logger
	http    *http.Server
}

// NewServer creates the HTTP API server. hub and gatherer are optional; a
// nil hub disables /ws and a nil gatherer disables /metrics.
func NewServer(cfg Config, backend handlers.Backend, hub *Hub, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		router: mux.NewRouter(),
		hub:    hub,
		logger: logger.With().Str("component", "http").Logger(),
	}
	if cfg.TxRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.TxRate), max(cfg.TxBurst, 1))
	}

	s.setupRoutes(handlers.New(backend, logger), gatherer)
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// setupRoutes configures all HTTP endpoints
func (s *Server) setupRoutes(h *handlers.Handlers, gatherer prometheus.Gatherer) {
	s.router.Use(s.logRequests)
	r := s.router.PathPrefix("/api").Subrouter()

	// Block endpoints
	r.HandleFunc("/blocks", h.PostBlock).Methods(http.MethodPost)
	r.HandleFunc("/blocks/height/{height:[0-9]+}", h.GetBlockByHeight).Methods(http.MethodGet)
	r.HandleFunc("/blocks/{hash}", h.GetBlockByHash).Methods(http.MethodGet)

	// Chain endpoints
	r.HandleFunc("/chain", h.ChainBlocks).Methods(http.MethodGet)
	r.HandleFunc("/chain/height", h.ChainHeight).Methods(http.MethodGet)
	r.HandleFunc("/chain/head", h.ChainHead).Methods(http.MethodGet)
	r.HandleFunc("/chain/verify", h.VerifyChain).Methods(http.MethodGet)

	// Transaction endpoints
	r.HandleFunc("/transactions", s.rateLimit(h.PostTransaction)).Methods(http.MethodPost)
	r.HandleFunc("/transfers", s.rateLimit(h.PostTransfer)).Methods(http.MethodPost)
	r.HandleFunc("/mempool", h.GetMempool).Methods(http.MethodGet)

	// Node endpoints
	r.HandleFunc("/node", h.NodeStatus).Methods(http.MethodGet)
	r.HandleFunc("/addresses/validate", h.ValidateAddress).Methods(http.MethodGet)

	if s.hub != nil {
		s.router.Handle("/ws", s.hub)
	}
	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Server) rateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded"}` + "\n"))
			return
		}
		next(w, r)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("Request served")
	})
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("Starting HTTP API server")
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if s.hub != nil {
		s.hub.Close()
	}
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
