package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/linksaver/linksaver/internal/auth"
	"github.com/linksaver/linksaver/internal/config"
	"github.com/linksaver/linksaver/internal/links"
	"github.com/linksaver/linksaver/internal/websocket"
)

// NewRouter creates a new HTTP router
func NewRouter(cfg *config.Config, db *gorm.DB, tokens *auth.TokenManager, authService *auth.Service, linkService *links.Service, hub *websocket.Hub) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(SecurityHeadersMiddleware(cfg))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// General limiter for the whole API, a stricter one for credential
	// endpoints
	generalLimiter := NewRateLimiter(rate.Limit(20), 40)
	generalLimiter.CleanupOldLimiters()
	authLimiter := NewRateLimiter(rate.Limit(1), 5)
	authLimiter.CleanupOldLimiters()

	transport := newTokenTransport(cfg)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(RateLimitMiddleware(generalLimiter))

		// Auth routes
		r.Group(func(r chi.Router) {
			r.Use(StrictRateLimitMiddleware(authLimiter))
			r.Post("/auth/signup", HandleSignup(authService, transport))
			r.Post("/auth/login", HandleLogin(authService, transport))
			r.Post("/auth/google", HandleGoogleLogin(authService, transport))
			r.Post("/auth/refresh", HandleRefresh(authService, transport))
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(tokens, db))

			// User routes
			r.Post("/auth/logout", HandleLogout(authService, transport))
			r.Get("/auth/me", HandleGetCurrentUser())
			r.Put("/auth/profile", HandleUpdateProfile(authService))
			r.Put("/auth/password", HandleUpdatePassword(authService))

			// Link routes
			r.Get("/links", HandleGetLinks(linkService))
			r.Post("/links", HandleCreateLink(linkService))
			r.Get("/links/{id}", HandleGetLink(linkService))
			r.Delete("/links/{id}", HandleDeleteLink(linkService))
		})
	})

	// WebSocket endpoint
	r.Get("/ws", hub.HandleWebSocket)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
