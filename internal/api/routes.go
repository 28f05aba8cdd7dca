package api

import (
	"net/http"
	"time"

	"image.gen/config"
	"image.gen/web"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func SetupRouter(h *Handler, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(Logger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	// CORS
	r.Use(CORS(CORSConfig{
		AllowedOrigins: []string{"http://127.0.0.1", "http://localhost"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		MaxAge:         86400,
	}))

	if cfg.RateLimit.Enabled {
		r.Use(NewRateLimiter(cfg.RateLimit.RequestsPerMin, time.Minute).Middleware)
	}

	// Health
	r.Get("/health", h.Health)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(web.StaticFS())))

	generateLimit := passthrough
	gateLimit := passthrough
	if cfg.RateLimit.Enabled {
		generateLimit = NewRateLimiter(cfg.RateLimit.GeneratePerMin, time.Minute).Middleware
		gateLimit = NewRateLimiter(cfg.RateLimit.GateAttemptsPerMin, time.Minute).Middleware
	}

	r.Group(func(r chi.Router) {
		if cfg.Gate.Enabled {
			r.Use(h.Session)

			r.Get("/gate", h.GatePage)
			r.With(gateLimit).Post("/gate", h.GateLogin)
			r.Post("/logout", h.Logout)
		}

		r.Group(func(r chi.Router) {
			if cfg.Gate.Enabled {
				r.Use(h.RequireGate)
			}

			// Frontend
			r.Get("/", h.Index)
			r.With(generateLimit).Post("/generate", h.Generate)

			// API routes
			r.Route("/api", func(r chi.Router) {
				r.Use(JSONOnly)
				r.With(generateLimit).Post("/generations", h.CreateGeneration)
			})
		})
	})

	return r
}

func passthrough(next http.Handler) http.Handler { return next }
