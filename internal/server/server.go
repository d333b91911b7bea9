// Package server is the taskboard backend: a REST API over the embedded
// store plus a realtime websocket feed of row changes.
//
// Every data route requires a bearer access token and is scoped to the
// token's user. Successful writes are published to that user's realtime
// sockets so other clients can invalidate their caches.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mschirtzinger/taskboard/internal/store"
)

// Server serves the REST API and realtime feed.
type Server struct {
	db     *store.DB
	ttl    time.Duration
	router *gin.Engine
	hub    *Hub

	addr     string
	listener net.Listener
	server   *http.Server
	wg       sync.WaitGroup

	logger *log.Logger
}

// Config holds server configuration
type Config struct {
	// Addr to listen on (default: 127.0.0.1:8787). Port 0 picks a free port.
	Addr string

	// SessionTTL is the lifetime of issued access tokens (default: store default)
	SessionTTL time.Duration

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Addr: "127.0.0.1:8787",
	}
}

// New creates a server over db. The store schema must already be
// initialized.
func New(db *store.DB, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[server] ", log.LstdFlags)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery())

	s := &Server{
		db:     db,
		ttl:    config.SessionTTL,
		router: router,
		hub:    newHub(logger),
		addr:   config.Addr,
		logger: logger,
	}

	router.GET("/health", s.handleHealth)

	auth := router.Group("/auth/v1")
	{
		auth.POST("/signup", s.handleSignUp)
		auth.POST("/token", s.handleToken)
		auth.POST("/logout", s.requireSession, s.handleLogout)
		auth.GET("/user", s.requireSession, s.handleUser)
	}

	rest := router.Group("/rest/v1", s.requireSession)
	{
		rest.GET("/:collection", s.handleSelect)
		rest.POST("/:collection", s.handleInsert)
		rest.PATCH("/:collection/:id", s.handleUpdate)
		rest.DELETE("/:collection/:id", s.handleDelete)
	}

	router.GET("/realtime/v1", s.handleRealtime)

	return s
}

// Handler returns the HTTP handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the realtime hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.hub.start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Server listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Run starts the server and blocks until ctx is done, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop()
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	s.logger.Println("Stopping server")

	s.hub.stop()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()

	s.logger.Println("Server stopped")
	return nil
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// URL returns the base URL clients should use.
func (s *Server) URL() string {
	return "http://" + s.GetAddr()
}
