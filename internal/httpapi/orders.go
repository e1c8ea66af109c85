package httpapi

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mkurbatov/go-shop/internal/cache"
	"github.com/mkurbatov/go-shop/internal/metrics"
	"github.com/mkurbatov/go-shop/internal/models"
	"github.com/mkurbatov/go-shop/internal/store"
)

type createOrderRequest struct {
	UserID    int64 `json:"user_id"`
	AddressID int64 `json:"address_id"`
	Items     []struct {
		ProductID int64 `json:"product_id"`
		Quantity  int   `json:"quantity"`
	} `json:"items"`
}

func createOrderHandler(db *sql.DB, m *metrics.StoreMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, KindValidation, "invalid request body")
			return
		}
		if req.UserID <= 0 || req.AddressID <= 0 {
			respondError(w, http.StatusBadRequest, KindValidation, "user_id and address_id are required")
			return
		}
		for _, it := range req.Items {
			if it.ProductID <= 0 || it.Quantity < 1 {
				respondError(w, http.StatusBadRequest, KindValidation, "each item needs a product_id and a quantity of at least 1")
				return
			}
		}

		items := make([]store.OrderItemRequest, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, store.OrderItemRequest{ProductID: it.ProductID, Quantity: it.Quantity})
		}

		order, err := store.CreateOrder(r.Context(), db, store.CreateOrderRequest{
			UserID:    req.UserID,
			AddressID: req.AddressID,
			Items:     items,
		})
		if err != nil {
			m.OrderRejected(metrics.RejectionReason(err))
			respondStoreError(w, err)
			return
		}

		m.OrderCreated()
		respondJSON(w, http.StatusCreated, order)
	}
}

func getOrderHandler(db *sql.DB, c *cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			respondError(w, http.StatusBadRequest, KindValidation, "invalid order id")
			return
		}

		key := fmt.Sprintf(cache.KeyOrder, id)
		var cached models.Order
		if c.Get(r.Context(), key, &cached) {
			respondJSON(w, http.StatusOK, &cached)
			return
		}

		order, err := store.GetOrder(r.Context(), db, id)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		c.Set(r.Context(), key, order, cache.TTLOrder)
		respondJSON(w, http.StatusOK, order)
	}
}

func listOrdersHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, pageSize := pageParams(r)

		result, err := store.ListOrders(r.Context(), db, page, pageSize)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, result)
	}
}

func updateOrderStatusHandler(db *sql.DB, c *cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			respondError(w, http.StatusBadRequest, KindValidation, "invalid order id")
			return
		}

		var req struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, KindValidation, "invalid request body")
			return
		}
		if req.Status == "" {
			respondError(w, http.StatusBadRequest, KindValidation, "status is required")
			return
		}

		order, err := store.UpdateOrderStatus(r.Context(), db, id, req.Status)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		c.Delete(r.Context(), fmt.Sprintf(cache.KeyOrder, id))
		respondJSON(w, http.StatusOK, order)
	}
}
