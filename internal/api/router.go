// Package api provides the HTTP API for NutriPlan.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/nutriplan/nutriplan/internal/api/handler"
	"github.com/nutriplan/nutriplan/internal/api/middleware"
	"github.com/nutriplan/nutriplan/internal/diet"
	"github.com/nutriplan/nutriplan/internal/provider/resilience"
	"github.com/nutriplan/nutriplan/internal/user"
)

// SupportedLocales are the response languages, fallback first.
var SupportedLocales = []string{diet.DefaultLocale, "en"}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	Verifier    middleware.TokenVerifier
	UserService *user.Service
	DietService *diet.Service
	Tracker     *diet.Tracker

	// Publisher enables ?async=true generation. Optional.
	Publisher handler.JobPublisher

	// Registry feeds provider status into /ops/status. Optional.
	Registry   *resilience.Registry
	Subsystems map[string]handler.Pinger

	// Per-user request budgets per minute. Zero uses the defaults.
	RateLimitPerMin     int
	GenerateLimitPerMin int
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "nutriplan-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:    cfg.Version,
		BuildTime:  cfg.BuildTime,
		Registry:   cfg.Registry,
		Subsystems: cfg.Subsystems,
	})
	profileHandler := handler.NewProfileHandler(cfg.UserService)
	dietHandler := handler.NewDietPlanHandler(cfg.DietService, cfg.Tracker, cfg.Publisher, cfg.Logger)

	authMiddleware := middleware.Auth(cfg.Verifier)
	standardRateLimit := middleware.RateLimitByUser(middleware.PerMinute(cfg.RateLimitPerMin, middleware.StandardRateLimit))
	generateRateLimit := middleware.RateLimitByUser(middleware.PerMinute(cfg.GenerateLimitPerMin, middleware.GenerateRateLimit))

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		// Me endpoints (authenticated) - user-based rate limiting
		r.Route("/me", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.Locale(SupportedLocales...))
			r.Use(middleware.RequireJSON)
			r.Use(standardRateLimit)

			r.Route("/profile", func(r chi.Router) {
				r.Get("/", profileHandler.GetProfile)
				r.Put("/", profileHandler.UpsertProfile)
				r.Delete("/", profileHandler.DeleteProfile)
				r.Post("/food-feedback", profileHandler.RecordFoodFeedback)
				r.Post("/favorite-meals", profileHandler.SaveFavoriteMeal)
			})

			r.Get("/targets", dietHandler.GetTargets)

			// Generation calls the model; it gets its own tighter budget.
			r.With(generateRateLimit).Post("/diet-plan:generate", dietHandler.GeneratePlan)

			r.Route("/diet-plan", func(r chi.Router) {
				r.Get("/", dietHandler.GetCurrentPlan)
				r.Get("/history", dietHandler.GetHistory)
				r.Get("/stats", dietHandler.GetStats)
				r.Post("/meals/{mealId}/complete", dietHandler.CompleteMeal)
			})

			r.Post("/water", dietHandler.LogWater)
		})
	})

	return r
}
