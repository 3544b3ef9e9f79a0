package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ReilBleem13/HelloChat/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

type Option func(*Server)

// WithChatRoutes mounts the chat API and the websocket gateway.
func WithChatRoutes(h *Handler) Option {
	return func(s *Server) {
		s.chat = h
	}
}

func WithMailRoutes(h *MailHandler) Option {
	return func(s *Server) {
		s.mail = h
	}
}

// WithReadiness sets the check behind /readyz.
func WithReadiness(check func() ReadinessResponse) Option {
	return func(s *Server) {
		s.ready = check
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

type Server struct {
	router *http.ServeMux
	chat   *Handler
	mail   *MailHandler
	ready  func() ReadinessResponse
	log    *slog.Logger
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		router: http.NewServeMux(),
		log:    slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handle(pattern string, h http.Handler) {
	s.router.Handle(pattern, metrics.Instrument(pattern, h))
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, &StatusResponse{Message: "ok"})
	})
	s.router.HandleFunc("GET /readyz", s.handleReady)
	s.router.Handle("GET /metrics", promhttp.Handler())

	if h := s.chat; h != nil {
		auth := AuthMiddleware(h.secret)

		s.router.HandleFunc("GET /ws", h.handleWS)

		s.handle("POST /api/v1/chat/new", auth(http.HandlerFunc(h.handleNewChat)))
		s.handle("GET /api/v1/chat/all", auth(http.HandlerFunc(h.handleGetAllChats)))
		s.handle("POST /api/v1/message", auth(http.HandlerFunc(h.handleSendMessage)))
		s.handle("POST /api/v1/message/queue", auth(http.HandlerFunc(h.handleQueueMessage)))
		s.handle("POST /api/v1/message/media", auth(http.HandlerFunc(h.handleUpdateMedia)))
		s.handle("GET /api/v1/message/{chatId}", auth(http.HandlerFunc(h.handleGetMessages)))
	}

	if h := s.mail; h != nil {
		s.handle("POST /api/v1/otp", http.HandlerFunc(h.handleSendOTP))
	}
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.ready == nil {
		writeJSON(w, http.StatusOK, &ReadinessResponse{Status: "ok"})
		return
	}
	writeJSON(w, http.StatusOK, s.ready())
}

// Run serves addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("Server is running", "addr", addr)

	select {
	case err := <-errCh:
		if err != nil {
			s.log.Error("Failed to start server", "error", err)
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := server.Shutdown(shutdownCtx)
	s.log.Info("Server exited")
	return err
}
