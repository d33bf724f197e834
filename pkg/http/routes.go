package http

import (
	"onelink/pkg/logging"
	"onelink/pkg/middleware"
	"onelink/pkg/security"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

func SetupRoutes(r *chi.Mux, handler *Handler, auth middleware.Authenticator) {
	r.Use(chimiddleware.Recoverer)
	r.Use(logging.Middleware(handler.logger))
	r.Use(handler.gate.EdgeMiddleware)

	r.Get("/health", handler.HealthCheck)
	r.Get("/s/{slug}", handler.ResolveSlug)
	r.Get("/browse", handler.Browse)
	r.Get("/u/{username}", handler.Profile)

	r.Route("/api", func(r chi.Router) {
		r.Get("/file/{slug}", handler.ServeFile)
		r.Get("/cron/cleanup", handler.CronCleanup)
		r.Get("/admin/rls-status", handler.SecurityStatus)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(auth, handler.logger))
			r.Use(security.CSRFMiddleware)

			r.Get("/links", handler.ListLinks)
			r.Post("/links", handler.CreateLink)
			r.Post("/links/cleanup", handler.CleanupLinks)
			r.Get("/links/{id}", handler.GetLink)
			r.Patch("/links/{id}", handler.EditLink)
			r.Delete("/links/{id}", handler.DeleteLink)

			r.Post("/upload", handler.RequestUpload)
			r.Post("/upload/complete", handler.CompleteUpload)

			r.Put("/account/username", handler.UpdateUsername)
			r.Get("/account/username/available", handler.UsernameAvailable)
			r.Delete("/account", handler.DeleteAccount)
		})
	})
}
