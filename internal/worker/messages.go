package worker

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Message actions, matching the producers on the product and order
// channels.
const (
	ActionCreate       = "create"
	ActionUpdate       = "update"
	ActionOutOfStock   = "out_of_stock"
	ActionUpdateStatus = "update_status"
)

type ProductMessage struct {
	Action        string           `json:"action"`
	ID            *int64           `json:"id,omitempty"`
	SKU           string           `json:"sku,omitempty"`
	Name          *string          `json:"name,omitempty"`
	Description   *string          `json:"description,omitempty"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	StockQuantity *int             `json:"stock_quantity,omitempty"`
}

type OrderMessage struct {
	Action    string             `json:"action"`
	UserID    *int64             `json:"user_id,omitempty"`
	AddressID *int64             `json:"address_id,omitempty"`
	Items     []OrderItemMessage `json:"items,omitempty"`
	OrderID   *int64             `json:"order_id,omitempty"`
	Status    string             `json:"status,omitempty"`
}

type OrderItemMessage struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// ValidationError marks a message that can never succeed: malformed
// JSON or missing required fields. These are dead-lettered, not
// retried.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationErrf(format string, args ...interface{}) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

func decodeProductMessage(raw []byte) (*ProductMessage, error) {
	var m ProductMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, validationErrf("malformed product message: %v", err)
	}
	if m.Action == "" {
		return nil, validationErrf("product message missing action")
	}
	return &m, nil
}

func decodeOrderMessage(raw []byte) (*OrderMessage, error) {
	var m OrderMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, validationErrf("malformed order message: %v", err)
	}
	if m.Action == "" {
		return nil, validationErrf("order message missing action")
	}
	return &m, nil
}
