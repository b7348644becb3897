package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/upb/inventory-authz/app"
	"github.com/upb/inventory-authz/handlers"
	"github.com/upb/inventory-authz/internal/auth"
)

// resources are the inventory routes answered behind the gate
var resources = []string{"productos", "proveedores", "clientes", "usuarios"}

// SetupRoutes configures all application routes and middleware. Every route
// goes through RequireAuth; public ones are let through by the route table.
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS middleware; preflight is answered here before the gate
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.Config.CORS.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type",
			deps.Config.Auth.InternalHeader, deps.Config.Auth.GatewayTokenHeader,
		},
		ExposedHeaders: []string{"X-Request-ID", "WWW-Authenticate"},
		MaxAge:         300,
	}))

	r.Use(deps.AuthMiddleware.RequireAuth)

	// Health check endpoints
	var auditStore handlers.Pinger
	var auditReader handlers.AuditReader
	if deps.Audit != nil {
		auditStore = deps.Audit
		auditReader = deps.Audit
	}
	health := handlers.NewHealthHandler(auditStore, deps.Logger)
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	// Token introspection and the decision audit trail
	authHandler := handlers.NewAuthHandler(deps.Authz, auditReader, deps.Logger)
	r.Route("/auth", func(r chi.Router) {
		r.Get("/me", authHandler.HandleMe)
		r.Get("/check", authHandler.HandleCheck)

		r.Route("/audit", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireRole(auth.RoleAdmin))
			r.Get("/", authHandler.HandleAuditList)
			r.Get("/summary", authHandler.HandleAuditSummary)
		})
	})

	// Inventory resources
	for _, resource := range resources {
		h := handlers.ResourceHandler(resource, deps.Logger)
		r.Route("/"+resource, func(r chi.Router) {
			r.HandleFunc("/", h)
			r.HandleFunc("/*", h)
		})
	}

	// 404 handler
	r.NotFound(handlers.NotFoundHandler)

	return r
}
