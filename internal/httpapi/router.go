// Package httpapi is the synchronous front door. Handlers are closures
// over the database handle; the store layer owns all transactional
// semantics, so a handler's job is shape translation and error mapping.
package httpapi

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mkurbatov/go-shop/internal/cache"
	"github.com/mkurbatov/go-shop/internal/metrics"
)

func NewRouter(db *sql.DB, c *cache.Cache, m *metrics.StoreMetrics) *chi.Mux {
	if c == nil {
		c = cache.Disabled()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/users", func(r chi.Router) {
		r.Post("/", createUserHandler(db))
		r.Get("/", listUsersHandler(db))
		r.Get("/{id}", getUserHandler(db, c))
		r.Post("/{id}/addresses", createAddressHandler(db))
	})

	r.Route("/products", func(r chi.Router) {
		r.Post("/", createProductHandler(db))
		r.Get("/", listProductsHandler(db))
		r.Get("/{id}", getProductHandler(db, c))
		r.Patch("/{id}", updateProductHandler(db, c))
	})

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", createOrderHandler(db, m))
		r.Get("/", listOrdersHandler(db))
		r.Get("/{id}", getOrderHandler(db, c))
		r.Patch("/{id}/status", updateOrderStatusHandler(db, c))
	})

	return r
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func pageParams(r *http.Request) (page, pageSize int) {
	page, pageSize = 1, 50
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil && v > 0 && v <= 200 {
		pageSize = v
	}
	return page, pageSize
}
