package apihttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"plant-console/internal/auth"
	"plant-console/internal/export"
)

// Routes builds the console router. Auth and RBAC come from mw's policy.
func Routes(h *Handler, mw *auth.Middleware, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.Wrap)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/login", h.Login)
		api.Post("/logout", h.Logout)

		api.Get("/views", h.ListViews)
		api.Get("/views/{screen}", h.View)
		api.Delete("/views/{screen}", h.UnmountView)
		api.Post("/views/{screen}/refresh", h.RefreshView)

		api.Post("/users/{id}/notification-flags", h.NotificationFlags)
		api.Put("/users/{id}/company-code", h.CompanyCode)
		api.Get("/users/{id}/plants", h.UserPlants)
		api.Post("/inverters/sync", h.SyncInverters)

		api.Get("/exports/faults.xlsx", h.ExportFaults(export.FormatXLSX))
		api.Get("/exports/faults.pdf", h.ExportFaults(export.FormatPDF))
		api.Get("/exports/stations.xlsx", h.ExportStations)

		api.Get("/plants/statistics/{period}", h.Statistics)
		api.Get("/plants/{id}/inverters", h.PlantInverters)
		api.Get("/plants/{plantNo}", h.PlantDetail)
	})
	return r
}
