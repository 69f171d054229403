// Package server exposes the engine operations over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"options-analytics/internal/engine"
	"options-analytics/internal/logging"
	"options-analytics/internal/marketdata"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server handles engine requests.
type Server struct {
	engine  *engine.Engine
	logger  zerolog.Logger
	timeout time.Duration
}

// New creates a Server. A zero timeout leaves requests unbounded.
func New(e *engine.Engine, timeout time.Duration, logger zerolog.Logger) *Server {
	return &Server{
		engine:  e,
		logger:  logger.With().Str("component", "server").Logger(),
		timeout: timeout,
	}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	if s.timeout > 0 {
		r.Use(middleware.Timeout(s.timeout))
	}

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/price", s.handlePrice)
		r.Post("/greeks", s.handleGreeks)
		r.Post("/implied-volatility", s.handleImpliedVolatility)
		r.Get("/chain/{symbol}", s.handleChain)
		r.Get("/templates", s.handleTemplates)
		r.Post("/strategy", s.handleStrategy)
		r.Post("/strategy/build", s.handleBuildStrategy)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		logger := s.logger.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
		next.ServeHTTP(ww, r.WithContext(logging.WithLogger(r.Context(), logger)))
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting server")
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("Server stopped")
	return nil
}

type healthResponse struct {
	Status   string `json:"status"`
	Provider bool   `json:"market_data"`
	Breaker  string `json:"breaker,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Provider: s.engine.Provider() != nil}
	if rp, ok := s.engine.Provider().(*marketdata.ResilientProvider); ok {
		resp.Breaker = string(rp.Breaker().State())
		if rp.Breaker().State() == marketdata.BreakerOpen {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
