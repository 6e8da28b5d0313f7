package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"settlers/internal/config"
	"settlers/internal/logging"
	"settlers/internal/store"
)

// Server ties together HTTP serving and WebSocket handling.
type Server struct {
	handlers *Handlers
	cfg      config.ServerConfig
	log      zerolog.Logger
}

// New builds a server. store may be nil to run without persistence.
func New(cfg config.Config, store Persister) *Server {
	return &Server{
		handlers: NewHandlers(cfg, store),
		cfg:      cfg.Server,
		log:      logging.For("server"),
	}
}

// Handlers exposes the handler set, mainly to restore stored games.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Prepare reopens stored games and starts a default one when none is
// current. It returns how many games were restored.
func (s *Server) Prepare(ctx context.Context, records []store.Record) (int, error) {
	n := s.handlers.Restore(records)
	if err := s.handlers.EnsureGame(ctx); err != nil {
		return n, fmt.Errorf("start default game: %w", err)
	}
	return n, nil
}

// Routes returns the HTTP handler for every endpoint.
func (s *Server) Routes() http.Handler {
	h := s.handlers
	api := http.NewServeMux()
	api.HandleFunc("GET /api/state", h.HandleState)
	api.HandleFunc("POST /api/new_game", h.HandleNewGame)
	api.HandleFunc("POST /api/roll", h.HandleRoll)
	api.HandleFunc("POST /api/build", h.HandleBuild)
	api.HandleFunc("POST /api/robber", h.HandleRobber)
	api.HandleFunc("POST /api/trade", h.HandleTrade)
	api.HandleFunc("POST /api/end_turn", h.HandleEndTurn)
	api.HandleFunc("GET /api/legal", h.HandleLegal)
	api.HandleFunc("GET /api/board", h.HandleBoard)
	api.HandleFunc("GET /api/games", h.HandleGames)
	api.HandleFunc("GET /api/events", h.HandleEvents)
	api.HandleFunc("GET /api/qr", h.HandleQR)

	mux := http.NewServeMux()
	mux.Handle("/api/", withTimeout(api))
	mux.HandleFunc("GET /ws", h.HandleWS)
	mux.HandleFunc("GET /healthz", h.HandleHealth)
	if s.cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}
	return logRequests(s.log, mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("settlers server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeoutDuration())
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.handlers.Close()
		return err
	})
	return g.Wait()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func logRequests(log zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}
