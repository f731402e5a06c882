package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market-chat/internal/chat"

	"go.uber.org/zap"
)

// Server defines fields used in HTTP processing
type Server struct {
	logger        *zap.SugaredLogger
	httpServer    *http.Server
	h             *handler
	afterShutdown []func()
}

// NewServer returns new Server struct with provided zap.SugaredLogger, Store and TokenService
func NewServer(logger *zap.SugaredLogger, store Store, tokens TokenService, opts ...Option) (*Server, error) {
	if store == nil || tokens == nil {
		return nil, fmt.Errorf("server needs both a store and a token service")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	h := &handler{
		logger:   logger,
		store:    store,
		tokens:   tokens,
		resolver: chat.NewResolver(logger, store, store, cfg.chatOpts...),
		ledger:   chat.NewLedger(logger, store, store, store, store, cfg.chatOpts...),
		objects:  cfg.objects,
		limiter:  cfg.limiter,
		maxImage: cfg.maxImage,
	}

	var root http.Handler = h.routes(cfg.maxBody)
	if cfg.handlerTimeout > 0 {
		msg := cfg.timeoutMsg
		if msg == "" {
			msg = `{"error":"Request timed out"}`
		}
		root = http.TimeoutHandler(root, cfg.handlerTimeout, msg)
	}
	cfg.httpServer.Handler = logRequests(root, logger.Desugar())

	return &Server{
		logger:        logger,
		httpServer:    cfg.httpServer,
		h:             h,
		afterShutdown: cfg.afterShutdown,
	}, nil
}

// routes registers every endpoint on a new http.ServeMux
func (h *handler) routes(maxBody int64) *http.ServeMux {
	jsonBody := func(f http.HandlerFunc) http.Handler { return enforceJSON(f, maxBody) }
	authed := func(next http.Handler) http.Handler { return h.authenticate(next) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.health)

	mux.Handle("POST /api/auth/register", jsonBody(h.register))
	mux.Handle("POST /api/auth/login", jsonBody(h.login))
	mux.Handle("POST /api/auth/logout", authed(http.HandlerFunc(h.logout)))

	mux.Handle("GET /api/users/me", authed(http.HandlerFunc(h.me)))
	mux.Handle("GET /api/users/me/products", authed(http.HandlerFunc(h.myProducts)))
	mux.Handle("GET /api/users/me/wishlist", authed(http.HandlerFunc(h.myWishlist)))

	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.Handle("POST /api/products", authed(jsonBody(h.createProduct)))
	mux.HandleFunc("GET /api/products/{product_id}", h.getProduct)
	mux.Handle("PUT /api/products/{product_id}", authed(jsonBody(h.updateProduct)))
	mux.Handle("DELETE /api/products/{product_id}", authed(http.HandlerFunc(h.deleteProduct)))
	mux.Handle("POST /api/products/{product_id}/image", authed(http.HandlerFunc(h.uploadImage)))
	mux.Handle("POST /api/products/{product_id}/wishlist", authed(http.HandlerFunc(h.toggleWishlist)))
	mux.HandleFunc("GET /uploads/{key...}", h.serveUpload)

	mux.Handle("POST /api/chat/room/{product_id}", authed(http.HandlerFunc(h.openRoom)))
	mux.Handle("GET /api/chat/room/{room_id}", authed(http.HandlerFunc(h.getRoom)))
	mux.Handle("GET /api/chat/rooms", authed(http.HandlerFunc(h.listRooms)))
	mux.Handle("POST /api/chat/room/{room_id}/messages", authed(jsonBody(h.createMessage)))
	mux.Handle("GET /api/chat/room/{room_id}/messages", authed(http.HandlerFunc(h.listMessages)))

	return mux
}

// Handler returns the fully wrapped http.Handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start calls ListenAndServe on http.Server instance inside Server struct
// and implements graceful shutdown via goroutine waiting for signals
func (s *Server) Start() error {
	idleConnsClosed := make(chan struct{})

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		s.logger.Info("Shutting down HTTP server")

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Errorf("srv.Shutdown: %v", err)
		}
		s.logger.Info("HTTP server is stopped")

		close(idleConnsClosed)
	}()

	s.logger.Infof("Starting HTTP server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("s.httpServer.ListenAndServe: %w", err)
	}

	<-idleConnsClosed

	for _, f := range s.afterShutdown {
		f()
	}

	s.logger.Info("Closing store")
	s.h.store.Close()
	s.logger.Info("Store is closed")

	return nil
}
