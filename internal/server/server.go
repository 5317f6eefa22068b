// Package server exposes the conversation store over a REST API, a WebSocket
// change feed and a Prometheus endpoint.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wethinkt/go-threadview/internal/store"
	"github.com/wethinkt/go-threadview/internal/thread"
	"github.com/wethinkt/go-threadview/internal/tuilog"
)

// Default server settings.
const (
	DefaultHost   = "127.0.0.1"
	DefaultPort   = 8790
	DefaultUserID = "local"
)

// Backend is the persistence the API serves from.
type Backend interface {
	thread.PageFetcher
	thread.ConversationLister
	thread.MessageDeleter
	CreateConversation(ctx context.Context, title, model, initialMessage string) (thread.ConversationSummary, error)
	RenameConversation(ctx context.Context, id, title string) error
	AppendMessage(ctx context.Context, conversationID string, m thread.Message) (thread.Message, error)
	UpdateMessage(ctx context.Context, conversationID, messageID string, p thread.Patch) (thread.Message, error)
	SetBookmark(ctx context.Context, userID, conversationID, messageID string, on bool) error
	Bookmarks(ctx context.Context, userID, conversationID string, messageIDs []string) (map[string]bool, error)
	Changes() *store.Hub
}

// Config holds server settings.
type Config struct {
	Host   string
	Port   int
	Token  string // bearer token; empty disables auth
	UserID string // acting user when the request carries no X-User-ID
	Quiet  bool   // disable access logs

	// RequestsPerSecond and Burst bound each client address. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int
}

// Server is the threadview HTTP backend.
type Server struct {
	config  Config
	backend Backend
	router  chi.Router
}

// New creates a server over backend.
func New(backend Backend, cfg Config) *Server {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.UserID == "" {
		cfg.UserID = DefaultUserID
	}
	s := &Server{config: cfg, backend: backend}
	s.router = s.setupRouter()
	return s
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(corsMiddleware)
	if !s.config.Quiet {
		r.Use(middleware.RequestLogger(&redactingLogFormatter{
			base: &middleware.DefaultLogFormatter{Logger: tuilog.Log.StdLogger(), NoColor: true},
		}))
	}
	r.Use(metricsMiddleware)

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/api/v1/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		if s.config.Token != "" {
			tuilog.Log.Info("Server.setupRouter: authentication enabled")
			r.Use(bearerAuth(s.config.Token))
		} else {
			tuilog.Log.Warn("Server.setupRouter: running without authentication")
		}
		if s.config.RequestsPerSecond > 0 {
			r.Use(newRateLimiter(s.config.RequestsPerSecond, s.config.Burst).middleware)
		}

		r.Get("/conversations", s.handleListConversations)
		r.Post("/conversations", s.handleCreateConversation)
		r.Patch("/conversations/{conversationID}", s.handleRenameConversation)
		r.Get("/conversations/{conversationID}/messages", s.handleGetMessages)
		r.Post("/conversations/{conversationID}/messages", s.handleAppendMessage)
		r.Patch("/conversations/{conversationID}/messages/{messageID}", s.handleUpdateMessage)
		r.Post("/conversations/{conversationID}/messages/delete", s.handleDeleteMessages)
		r.Get("/conversations/{conversationID}/bookmarks", s.handleGetBookmarks)
		r.Post("/conversations/{conversationID}/bookmarks", s.handleSetBookmark)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler { return s.router }

// Addr returns the server address string.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if s.config.Port == 0 {
		s.config.Port = ln.Addr().(*net.TCPAddr).Port
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("threadview server running at http://%s\n", s.Addr())
	tuilog.Log.Info("Server.ListenAndServe: listening", "addr", s.Addr())
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"subscribers": s.backend.Changes().Len(),
	})
}

// corsMiddleware adds CORS headers for cross-origin requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}
