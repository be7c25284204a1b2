package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/traindeck/traindeck-api/internal/api"
	"github.com/traindeck/traindeck-api/internal/api/middleware"
)

type routerDeps struct {
	auth           *middleware.AuthMiddleware
	trigger        *middleware.TriggerAuth
	jobHandler     *api.JobHandler
	processHandler *api.ProcessHandler
	healthHandler  *api.HealthHandler
}

// newRouter assembles the HTTP surface: a public health check, the
// JWT-guarded client endpoints and the shared-secret internal trigger.
func newRouter(deps routerDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Trace)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", deps.healthHandler.Check)

	r.Route("/api/jobs", func(r chi.Router) {
		r.Use(deps.auth.Authenticate)
		r.Post("/", deps.jobHandler.Create)
		r.Get("/", deps.jobHandler.List)
		r.Get("/{id}", deps.jobHandler.Get)
		r.Delete("/{id}", deps.jobHandler.Cancel)
	})

	r.Route("/internal/jobs", func(r chi.Router) {
		r.Use(deps.trigger.Authenticate)
		r.Post("/process", deps.processHandler.Process)
		r.Post("/cleanup", deps.processHandler.Cleanup)
	})

	return r
}
