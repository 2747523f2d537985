package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/safety-control-plane/app"
	"github.com/upb/safety-control-plane/handlers"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	operations := handlers.NewOperationHandler(deps.Controller, deps.Logger)
	policies := handlers.NewPolicyHandler(deps.Controller, deps.Logger)
	audit := handlers.NewAuditHandler(deps.Audit, deps.Logger)
	safetyState := handlers.NewSafetyHandler(deps.Controller, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", handlers.HealthCheck())
	r.Get("/readyz", handlers.ReadinessCheck(deps.ReadinessChecker(), deps.Logger))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public status endpoint
		r.Get("/status", safetyState.HandleStatus)

		// Operation lifecycle
		r.Route("/operations", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Post("/", operations.HandleRequestOperation)
			r.Get("/pending", operations.HandleListPending)
			r.Get("/active", operations.HandleListActive)
			r.Post("/{id}/complete", operations.HandleCompleteOperation)

			// resolving a parked operation requires the approver role
			r.With(deps.AuthMiddleware.RequireRole("approver")).
				Post("/{id}/approve", operations.HandleApproveOperation)
			r.With(deps.AuthMiddleware.RequireRole("approver")).
				Post("/{id}/deny", operations.HandleDenyOperation)
		})

		// Policy management (require admin role)
		r.Route("/policies", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Get("/", policies.HandleListPolicies)
			r.Get("/{name}", policies.HandleGetPolicy)

			r.Group(func(r chi.Router) {
				r.Use(deps.AuthMiddleware.RequireRole("admin"))
				r.Post("/", policies.HandleCreatePolicy)
				r.Patch("/{name}", policies.HandleUpdatePolicy)
				r.Post("/{name}/activate", policies.HandleActivatePolicy)
			})
		})

		// Audit trail (require admin role)
		r.Route("/audit", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Use(deps.AuthMiddleware.RequireRole("admin"))
			r.Get("/logs", audit.HandleListEntries)
			r.Get("/stats", audit.HandleStats)
		})

		// Monitoring state
		r.Route("/resources", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Get("/", safetyState.HandleResourceUsage)
		})
		r.Route("/downloads", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Get("/verdicts", safetyState.HandleFileVerdicts)
		})

		// Emergency controls (require admin role)
		r.Route("/emergency", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Use(deps.AuthMiddleware.RequireRole("admin"))
			r.Post("/stop", safetyState.HandleEmergencyStop)
			r.Post("/resume", safetyState.HandleEmergencyResume)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
