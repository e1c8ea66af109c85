// Package worker is the asynchronous front door: it translates queue
// messages into the same store operations the HTTP API uses, so both
// entry points leave identical state behind for identical input.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"github.com/mkurbatov/go-shop/internal/cache"
	"github.com/mkurbatov/go-shop/internal/database"
	"github.com/mkurbatov/go-shop/internal/metrics"
	"github.com/mkurbatov/go-shop/internal/models"
	"github.com/mkurbatov/go-shop/internal/store"
)

type Worker struct {
	db      *sql.DB
	cache   *cache.Cache
	metrics *metrics.StoreMetrics
	logger  *log.Entry
}

func New(db *sql.DB, c *cache.Cache, m *metrics.StoreMetrics) *Worker {
	if c == nil {
		c = cache.Disabled()
	}
	return &Worker{
		db:      db,
		cache:   c,
		metrics: m,
		logger:  log.WithField("component", "worker"),
	}
}

// HandleProductMessage applies a product lifecycle command. Unknown
// actions are logged and acknowledged without effect.
func (w *Worker) HandleProductMessage(ctx context.Context, m kafka.Message) error {
	msg, err := decodeProductMessage(m.Value)
	if err != nil {
		return err
	}

	switch strings.ToLower(msg.Action) {
	case ActionCreate:
		if err := w.createProduct(ctx, msg); err != nil {
			return err
		}
	case ActionUpdate:
		if msg.ID == nil {
			return validationErrf("product update requires id")
		}
		if msg.StockQuantity != nil && *msg.StockQuantity < 0 {
			return validationErrf("stock_quantity must not be negative")
		}
		upd := models.ProductUpdate{
			Name:        msg.Name,
			Description: msg.Description,
			Price:       msg.Price,
		}
		if _, err := store.UpdateProduct(ctx, w.db, *msg.ID, upd); err != nil {
			return err
		}
		// restocks arrive on this channel as an absolute stock level
		if msg.StockQuantity != nil {
			if _, err := store.SetStockQuantity(ctx, w.db, *msg.ID, *msg.StockQuantity); err != nil {
				return err
			}
		}
		w.cache.Delete(ctx, fmt.Sprintf(cache.KeyProduct, *msg.ID))
	case ActionOutOfStock:
		if msg.ID == nil {
			return validationErrf("out_of_stock requires id")
		}
		if _, err := store.MarkOutOfStock(ctx, w.db, *msg.ID); err != nil {
			return err
		}
		w.cache.Delete(ctx, fmt.Sprintf(cache.KeyProduct, *msg.ID))
	default:
		w.logger.WithField("action", msg.Action).Warn("unknown product action, acknowledging")
		return nil
	}

	w.metrics.MessageProcessed(m.Topic)
	w.logger.WithFields(log.Fields{"action": msg.Action, "topic": m.Topic}).Info("processed product message")
	return nil
}

func (w *Worker) createProduct(ctx context.Context, msg *ProductMessage) error {
	if msg.Name == nil || *msg.Name == "" {
		return validationErrf("product create requires name")
	}
	if msg.Price == nil {
		return validationErrf("product create requires price")
	}

	sku := msg.SKU
	if sku == "" {
		sku = "SKU-" + strings.ToUpper(uuid.NewString()[:8])
	}
	description := ""
	if msg.Description != nil {
		description = *msg.Description
	}
	stock := 0
	if msg.StockQuantity != nil {
		stock = *msg.StockQuantity
	}

	_, err := store.CreateProduct(ctx, w.db, sku, *msg.Name, description, *msg.Price, stock)
	return err
}

// HandleOrderMessage applies an order command. Order creation runs the
// same single-transaction path as the HTTP handler, so a failed message
// leaves no partial order and no stock movement behind.
func (w *Worker) HandleOrderMessage(ctx context.Context, m kafka.Message) error {
	msg, err := decodeOrderMessage(m.Value)
	if err != nil {
		return err
	}

	switch strings.ToLower(msg.Action) {
	case ActionCreate:
		if msg.UserID == nil || msg.AddressID == nil {
			return validationErrf("order create requires user_id and address_id")
		}

		items := make([]store.OrderItemRequest, 0, len(msg.Items))
		for _, it := range msg.Items {
			items = append(items, store.OrderItemRequest{ProductID: it.ProductID, Quantity: it.Quantity})
		}

		order, err := store.CreateOrder(ctx, w.db, store.CreateOrderRequest{
			UserID:    *msg.UserID,
			AddressID: *msg.AddressID,
			Items:     items,
		})
		if err != nil {
			w.metrics.OrderRejected(metrics.RejectionReason(err))
			return err
		}
		w.metrics.OrderCreated()
		w.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"total":    order.TotalAmount.String(),
			"items":    len(order.Items),
		}).Info("order created from queue")

	case ActionUpdateStatus:
		if msg.OrderID == nil || msg.Status == "" {
			return validationErrf("update_status requires order_id and status")
		}
		if _, err := store.UpdateOrderStatus(ctx, w.db, *msg.OrderID, msg.Status); err != nil {
			return err
		}
		w.cache.Delete(ctx, fmt.Sprintf(cache.KeyOrder, *msg.OrderID))

	default:
		w.logger.WithField("action", msg.Action).Warn("unknown order action, acknowledging")
		return nil
	}

	w.metrics.MessageProcessed(m.Topic)
	return nil
}

// Retryable decides whether a failed message should be redelivered
// (transient storage trouble, cancelled context) or parked on the
// dead-letter topic (validation and business-rule failures).
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return false
	}
	return database.IsRetryable(err)
}
