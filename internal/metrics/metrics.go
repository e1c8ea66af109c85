package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mkurbatov/go-shop/internal/database"
)

// RejectionReason maps an order-creation failure to its counter label.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, database.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, database.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, database.ErrUserNotFound), errors.Is(err, database.ErrAddressNotFound):
		return "bad_reference"
	default:
		return "other"
	}
}

// StoreMetrics counts order-flow and queue outcomes.
type StoreMetrics struct {
	ordersCreated  prometheus.Counter
	ordersRejected *prometheus.CounterVec

	messagesProcessed  *prometheus.CounterVec
	messagesDeadLetter *prometheus.CounterVec
}

func New() *StoreMetrics {
	return newWithRegisterer(prometheus.DefaultRegisterer)
}

func newWithRegisterer(registerer prometheus.Registerer) *StoreMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &StoreMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_orders_created_total",
			Help: "Total number of orders committed",
		}),
		ordersRejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_orders_rejected_total",
			Help: "Total number of order requests rejected",
		}, []string{"reason"}),
		messagesProcessed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_queue_messages_processed_total",
			Help: "Total number of queue messages processed successfully",
		}, []string{"topic"}),
		messagesDeadLetter: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_queue_messages_dead_letter_total",
			Help: "Total number of queue messages routed to the dead-letter topic",
		}, []string{"topic"}),
	}
}

func (m *StoreMetrics) OrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

func (m *StoreMetrics) OrderRejected(reason string) {
	if m == nil {
		return
	}
	m.ordersRejected.WithLabelValues(reason).Inc()
}

func (m *StoreMetrics) MessageProcessed(topic string) {
	if m == nil {
		return
	}
	m.messagesProcessed.WithLabelValues(topic).Inc()
}

func (m *StoreMetrics) MessageDeadLettered(topic string) {
	if m == nil {
		return
	}
	m.messagesDeadLetter.WithLabelValues(topic).Inc()
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	c := prometheus.NewCounter(opts)
	if err := registerer.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(prometheus.Counter)
		}
		panic(err)
	}
	return c
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.CounterVec)
		}
		panic(err)
	}
	return c
}
