package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/900f/Phantom/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса Phantom.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(custommiddleware.CORS)

	r.Get("/health", h.Health)

	if h.realtime != nil {
		r.Handle("/ws", h.realtime)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(custommiddleware.GzipMiddleware)

		r.Get("/boosters", h.GetBoosters)

		r.Group(func(r chi.Router) {
			r.Use(h.adminAuth.Middleware)

			r.Post("/boosters/add", h.AddBooster)
			r.Post("/boosters/update", h.UpdateBooster)
			r.Get("/orders/{id}", h.GetOrder)
			r.Post("/orders/{id}/notify", h.ResendOrderNotification)
		})

		r.With(custommiddleware.RateLimit(h.rateLimit, h.logger)).Post("/submit", h.Submit)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
