package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mkurbatov/go-shop/internal/database"
)

// APIError is the structured error body: a machine-readable kind plus a
// human-readable message.
type APIError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

const (
	KindUserNotFound      = "UserNotFound"
	KindAddressNotFound   = "AddressNotFound"
	KindProductNotFound   = "ProductNotFound"
	KindOrderNotFound     = "OrderNotFound"
	KindInsufficientStock = "InsufficientStock"
	KindInvalidStatus     = "InvalidStatus"
	KindValidation        = "Validation"
	KindInternal          = "Internal"
)

func respondJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, code int, kind, message string) {
	respondJSON(w, code, APIError{Kind: kind, Message: message})
}

// mapStoreError translates the closed error set into a status code and
// error kind. Business-rule failures are client errors; everything
// unrecognized is an internal error.
func mapStoreError(err error) (int, string) {
	switch {
	case errors.Is(err, database.ErrUserNotFound):
		return http.StatusNotFound, KindUserNotFound
	case errors.Is(err, database.ErrAddressNotFound):
		return http.StatusNotFound, KindAddressNotFound
	case errors.Is(err, database.ErrProductNotFound):
		return http.StatusNotFound, KindProductNotFound
	case errors.Is(err, database.ErrOrderNotFound):
		return http.StatusNotFound, KindOrderNotFound
	case errors.Is(err, database.ErrInsufficientStock):
		return http.StatusConflict, KindInsufficientStock
	case errors.Is(err, database.ErrInvalidStatus):
		return http.StatusBadRequest, KindInvalidStatus
	default:
		return http.StatusInternalServerError, KindInternal
	}
}

func respondStoreError(w http.ResponseWriter, err error) {
	code, kind := mapStoreError(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		// don't leak driver details to clients
		msg = "internal error"
	}
	respondError(w, code, kind, msg)
}
