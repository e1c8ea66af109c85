package httpapi

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mkurbatov/go-shop/internal/cache"
	"github.com/mkurbatov/go-shop/internal/models"
	"github.com/mkurbatov/go-shop/internal/store"
)

func createUserHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, KindValidation, "invalid request body")
			return
		}
		if req.Email == "" || req.Name == "" {
			respondError(w, http.StatusBadRequest, KindValidation, "email and name are required")
			return
		}

		user, err := store.CreateUser(r.Context(), db, req.Email, req.Name)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusCreated, user)
	}
}

func getUserHandler(db *sql.DB, c *cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			respondError(w, http.StatusBadRequest, KindValidation, "invalid user id")
			return
		}

		key := fmt.Sprintf(cache.KeyUser, id)
		var cached models.User
		if c.Get(r.Context(), key, &cached) {
			respondJSON(w, http.StatusOK, &cached)
			return
		}

		user, err := store.GetUser(r.Context(), db, id)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		c.Set(r.Context(), key, user, cache.TTLUser)
		respondJSON(w, http.StatusOK, user)
	}
}

func listUsersHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, pageSize := pageParams(r)

		result, err := store.ListUsers(r.Context(), db, page, pageSize)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, result)
	}
}

func createAddressHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := pathID(r)
		if !ok {
			respondError(w, http.StatusBadRequest, KindValidation, "invalid user id")
			return
		}

		var req struct {
			Street  string `json:"street"`
			City    string `json:"city"`
			Country string `json:"country"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, KindValidation, "invalid request body")
			return
		}
		if req.Street == "" || req.City == "" {
			respondError(w, http.StatusBadRequest, KindValidation, "street and city are required")
			return
		}

		if _, err := store.GetUser(r.Context(), db, userID); err != nil {
			respondStoreError(w, err)
			return
		}

		address, err := store.CreateAddress(r.Context(), db, userID, req.Street, req.City, req.Country)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusCreated, address)
	}
}
