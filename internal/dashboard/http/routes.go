// Package dashboardhttp exposes the dashboard views over a JSON API.
package dashboardhttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes registers dashboard endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Get("/orders/items", h.handleOrderItems)
	r.Get("/production/monthly", h.handleProductionMonthly)
	r.Get("/production/compare", h.handleProductionCompare)
	r.Get("/sales/compare", h.handleSalesCompare)
	r.Get("/sales/monthly", h.handleSalesMonthly)
	r.Get("/departments/top", h.handleTopDepartments)
	r.Get("/statuses", h.handleStatuses)
	r.Get("/snapshots", h.handleSnapshots)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/sales/export.csv", h.handleSalesCSV)
		gr.Post("/cache/bump", h.handleCacheBump)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
