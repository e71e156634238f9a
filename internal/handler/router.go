package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/zhouzirui/docchat/backend/internal/handler/chat"
	"github.com/zhouzirui/docchat/backend/internal/handler/document"
	"github.com/zhouzirui/docchat/backend/internal/handler/speech"
	"github.com/zhouzirui/docchat/backend/internal/handler/stream"
	chatService "github.com/zhouzirui/docchat/backend/internal/service/chat"
	"github.com/zhouzirui/docchat/backend/pkg/utils"
)

// Dependencies are the services the HTTP surface is built on. Speech,
// Documents and Search may be nil; the matching routes then report 503 or
// are not mounted.
type Dependencies struct {
	Chat           *chatService.Service
	Notifier       chat.Notifier
	Speech         speech.SpeechService
	Documents      document.Ingester
	Search         document.Searcher
	AllowedOrigins []string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	chatHandler := chat.New(deps.Chat, deps.Notifier, deps.Speech)
	streamHandler := stream.New(deps.Chat)
	speechHandler := speech.New(deps.Speech)
	wsHandler := speech.NewWebSocketHandler(deps.Speech, deps.Chat, deps.Notifier)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]any{
				"status":    "ok",
				"speech":    deps.Speech != nil,
				"documents": deps.Documents != nil,
				"time":      time.Now().UTC().Format(time.RFC3339),
			})
		})

		chatHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
		wsHandler.RegisterWebSocketRoutes(api)
		speechHandler.RegisterRoutes(api)

		if deps.Documents != nil && deps.Search != nil {
			document.New(deps.Documents, deps.Search).RegisterRoutes(api)
		}
	})

	return r
}
