package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/application"
)

// Handler is the HTTP adapter entrypoint for affiliation use-cases.
type Handler struct {
	service *application.Service
	ready   func() error
}

// NewHandler binds the adapter to the application service. ready, when set,
// backs /readyz.
func NewHandler(service *application.Service, ready func() error) *Handler {
	return &Handler{service: service, ready: ready}
}

// NewRouter registers every route and the shared middleware stack.
// trustProxy installs chi's RealIP so forwarding headers set the client address.
func NewRouter(handler *Handler, trustProxy bool) http.Handler {
	r := chi.NewRouter()
	if trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.StripSlashes)
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)
	r.Use(metricsMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/admin/login", handler.adminLogin)
		r.Post("/influenceur/login", handler.influencerLogin)
		r.Post("/refresh", handler.refresh)
		r.Post("/register", handler.register)

		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)
			r.Post("/logout", handler.logout)
			r.Post("/change-password", handler.changePassword)
			r.Get("/profile", handler.profile)
		})
	})

	r.Route("/affiliation/{code}", func(r chi.Router) {
		r.Get("/", handler.affiliationForm)
		r.Post("/", handler.submitProspect)
	})

	r.Group(func(r chi.Router) {
		r.Use(handler.authMiddleware)

		r.Route("/influenceurs", func(r chi.Router) {
			r.Get("/", handler.listInfluencers)
			r.Post("/", handler.createInfluencer)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", handler.getInfluencer)
				r.Put("/", handler.updateInfluencer)
				r.Patch("/", handler.updateInfluencer)
				r.Delete("/", handler.deleteInfluencer)
				r.Get("/dashboard", handler.influencerDashboard)
			})
		})

		r.Get("/dashboard/global", handler.globalDashboard)

		r.Route("/prospects", func(r chi.Router) {
			r.Get("/", handler.listProspects)
			r.Post("/", handler.createProspect)
			r.Get("/sans-remise", handler.listProspectsWithoutRemise)
			r.Get("/statistiques", handler.prospectStatistics)
			r.Get("/{id}", handler.getProspect)
			r.Post("/{id}/valider", handler.validateProspect)
			r.Post("/{id}/rejeter", handler.rejectProspect)
		})

		r.Route("/remises", func(r chi.Router) {
			r.Get("/", handler.listRemises)
			r.Post("/", handler.createRemise)
			r.Get("/statistiques", handler.remiseStatistics)
			r.Post("/calculer-automatiques", handler.computeRemisesForAll)
			r.Post("/calculer-influenceur/{id}", handler.computeRemisesFor)
			r.Get("/{id}", handler.getRemise)
			r.Post("/{id}/payer", handler.markRemisePaid)
		})
	})

	return r
}
