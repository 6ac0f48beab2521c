package httpapi

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the read and conversion endpoints.
func NewRouter(h *Handler) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Heartbeat("/healthz"))

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/readings", h.GetReadings)
		r.Get("/spread", h.GetSpread)
		r.Get("/flows", h.GetFlows)
		r.Get("/history/{quantity}", h.GetHistory)
		r.Get("/history/{quantity}/chart.png", h.GetHistoryChart)
		r.Post("/convert", h.PostConvert)
	})
	return router
}
