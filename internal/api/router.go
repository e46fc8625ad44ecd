package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/shsh-chat/internal/middleware"
	"github.com/ashureev/shsh-chat/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Server bundles the development backend's dependencies.
type Server struct {
	Responder      Responder
	Registry       *ConnRegistry
	Repo           store.Repository
	AllowedOrigins []string
	Logger         *slog.Logger
	// RequestLogging enables chi's access log.
	RequestLogging bool
}

// NewRouter builds the backend routes: /ws/chat, /health and, when a
// repository is configured, /api/transcripts.
func NewRouter(s Server) http.Handler {
	if s.Responder == nil {
		s.Responder = EchoResponder{}
	}
	if s.Registry == nil {
		s.Registry = NewConnRegistry()
	}

	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	if s.RequestLogging {
		r.Use(chiMiddleware.Logger)
	}
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(s.AllowedOrigins))

	NewHealthHandler(s.Repo, s.Registry).RegisterHealth(r)
	if s.Repo != nil {
		NewTranscriptHandler(s.Repo).RegisterRoutes(r)
	}

	// The socket accepts the same origins as CORS.
	chat := NewChatHandler(s.Responder, s.Registry, originPatterns(s.AllowedOrigins), s.Logger)
	r.Get("/ws/chat", chat.ServeHTTP)

	return r
}

// originPatterns converts allowed origins into websocket host patterns.
func originPatterns(allowed []string) []string {
	if len(allowed) == 0 {
		return []string{"*"}
	}
	patterns := make([]string, 0, len(allowed))
	for _, o := range allowed {
		patterns = append(patterns, strings.TrimPrefix(strings.TrimPrefix(o, "https://"), "http://"))
	}
	return patterns
}
