package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ledgermate-backend/internal/config"
	"ledgermate-backend/internal/handlers"
)

// RouterDependencies holds everything the router mounts, primarily handlers
// and configuration.
type RouterDependencies struct {
	AuthHandler         *handlers.AuthHandler
	AssistantHandler    *handlers.AssistantHandler
	SettingsHandler     *handlers.SettingsHandler
	CredentialsHandler  *handlers.CredentialsHandler
	SlackWebhookHandler *handlers.SlackWebhookHandler
	Config              *config.Config
}

// NewRouter creates and configures the main Chi router for the application.
func NewRouter(deps RouterDependencies) *chi.Mux {
	if deps.AuthHandler == nil || deps.AssistantHandler == nil {
		panic("router needs at least the auth and assistant handlers")
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173", "https://*.vercel.app"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Requested-With"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- Public routes ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1/auth", func(r chi.Router) {
		r.Post("/signup", deps.AuthHandler.HandleSignup)
		r.Post("/login", deps.AuthHandler.HandleLogin)
	})

	// Slack must reach this without a JWT; the handler verifies the request
	// signature against the org's stored signing secret instead.
	if deps.SlackWebhookHandler != nil {
		r.Post("/slack-events/{orgID}", deps.SlackWebhookHandler.HandleSlackEvent)
	}

	// --- Authenticated routes ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(JwtAuthMiddleware(deps.Config.JWTSecret))

		r.Route("/assistant", func(r chi.Router) {
			r.Use(AssistantRateLimit(deps.Config.AssistantRatePerSec, deps.Config.AssistantRateBurst))

			r.Post("/chat", deps.AssistantHandler.HandleChat)
			r.Get("/sessions", deps.AssistantHandler.HandleListSessions)
			r.Get("/sessions/{sessionID}/messages", deps.AssistantHandler.HandleGetSessionMessages)
			r.Delete("/sessions/{sessionID}", deps.AssistantHandler.HandleDeleteSession)

			if deps.SettingsHandler != nil {
				r.Get("/settings", deps.SettingsHandler.HandleGetSettings)
				r.Put("/settings", deps.SettingsHandler.HandleUpdateSettings)
			}
		})

		if deps.CredentialsHandler != nil {
			r.Route("/credentials", func(r chi.Router) {
				r.Post("/", deps.CredentialsHandler.HandleCreateCredential)
				r.Get("/", deps.CredentialsHandler.HandleListCredentials)
				r.Get("/{credentialID}", deps.CredentialsHandler.HandleGetCredential)
				r.Delete("/{credentialID}", deps.CredentialsHandler.HandleDeleteCredential)
				r.Post("/{credentialID}/test", deps.CredentialsHandler.HandleTestCredential)
			})
		}
	})

	return r
}
