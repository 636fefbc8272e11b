package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"order-fulfillment/internal/features/orders/domain"
	"order-fulfillment/internal/features/orders/ports"
)

// MemoryOrderRepository implements ports.OrderRepository in memory. Used for
// local development and tests; it mirrors the Postgres adapter's version
// semantics so service behavior is identical against either.
type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
}

// NewMemoryOrderRepository creates an empty in-memory repository.
func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders: make(map[string]*domain.Order),
	}
}

// GetOrder returns a deep copy so callers cannot mutate stored state directly.
func (r *MemoryOrderRepository) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[orderID]
	if !ok {
		return nil, ports.ErrOrderNotFound
	}
	return cloneOrder(order)
}

// SaveOrder stores the aggregate after an optimistic version check.
func (r *MemoryOrderRepository) SaveOrder(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[order.ID]
	if !ok {
		return ports.ErrOrderNotFound
	}
	if stored.Version != order.Version {
		return ports.ErrVersionConflict
	}

	order.Version++
	clone, err := cloneOrder(order)
	if err != nil {
		order.Version--
		return err
	}
	r.orders[order.ID] = clone
	return nil
}

// CreateOrder inserts a new order, enforcing the pricing invariant at creation.
func (r *MemoryOrderRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	if err := order.Pricing.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.ID]; ok {
		return fmt.Errorf("order already exists: %s", order.ID)
	}

	clone, err := cloneOrder(order)
	if err != nil {
		return err
	}
	r.orders[order.ID] = clone
	return nil
}

func cloneOrder(order *domain.Order) (*domain.Order, error) {
	data, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("failed to clone order: %w", err)
	}
	var clone domain.Order
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, fmt.Errorf("failed to clone order: %w", err)
	}
	return &clone, nil
}
