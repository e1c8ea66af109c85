package httpapi

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/mkurbatov/go-shop/internal/cache"
	"github.com/mkurbatov/go-shop/internal/models"
	"github.com/mkurbatov/go-shop/internal/store"
)

func createProductHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SKU           string          `json:"sku"`
			Name          string          `json:"name"`
			Description   string          `json:"description"`
			Price         decimal.Decimal `json:"price"`
			StockQuantity int             `json:"stock_quantity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, KindValidation, "invalid request body")
			return
		}
		if req.SKU == "" || req.Name == "" {
			respondError(w, http.StatusBadRequest, KindValidation, "sku and name are required")
			return
		}
		if req.Price.IsNegative() || req.StockQuantity < 0 {
			respondError(w, http.StatusBadRequest, KindValidation, "price and stock_quantity must not be negative")
			return
		}

		product, err := store.CreateProduct(r.Context(), db, req.SKU, req.Name, req.Description, req.Price, req.StockQuantity)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusCreated, product)
	}
}

func getProductHandler(db *sql.DB, c *cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			respondError(w, http.StatusBadRequest, KindValidation, "invalid product id")
			return
		}

		key := fmt.Sprintf(cache.KeyProduct, id)
		var cached models.Product
		if c.Get(r.Context(), key, &cached) {
			respondJSON(w, http.StatusOK, &cached)
			return
		}

		product, err := store.GetProduct(r.Context(), db, id)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		c.Set(r.Context(), key, product, cache.TTLProduct)
		respondJSON(w, http.StatusOK, product)
	}
}

func listProductsHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, pageSize := pageParams(r)

		result, err := store.ListProducts(r.Context(), db, page, pageSize)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, result)
	}
}

func updateProductHandler(db *sql.DB, c *cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			respondError(w, http.StatusBadRequest, KindValidation, "invalid product id")
			return
		}

		var upd models.ProductUpdate
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			respondError(w, http.StatusBadRequest, KindValidation, "invalid request body")
			return
		}
		if upd.Price != nil && upd.Price.IsNegative() {
			respondError(w, http.StatusBadRequest, KindValidation, "price must not be negative")
			return
		}

		product, err := store.UpdateProduct(r.Context(), db, id, upd)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		c.Delete(r.Context(), fmt.Sprintf(cache.KeyProduct, id))
		respondJSON(w, http.StatusOK, product)
	}
}
