package ports

import (
	"context"
	"errors"

	"order-fulfillment/internal/features/orders/domain"
)

// ErrOrderNotFound is returned when the order does not exist.
var ErrOrderNotFound = errors.New("order not found")

// ErrVersionConflict is returned when a save races a concurrent write.
var ErrVersionConflict = errors.New("order version conflict")

// OrderRepository defines persistence for the order aggregate.
// This is a Secondary Port (Driven Port).
type OrderRepository interface {
	// GetOrder retrieves the full aggregate, including both audit logs.
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// SaveOrder persists the aggregate. The stored version must match the
	// in-memory one or ErrVersionConflict is returned; on success the version
	// is bumped both in storage and on the passed order.
	SaveOrder(ctx context.Context, order *domain.Order) error

	// CreateOrder inserts a new order produced by checkout.
	CreateOrder(ctx context.Context, order *domain.Order) error
}
