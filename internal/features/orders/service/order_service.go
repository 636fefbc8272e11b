package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"order-fulfillment/internal/core/cache"
	"order-fulfillment/internal/core/keylock"
	"order-fulfillment/internal/core/logger"
	"order-fulfillment/internal/features/orders/domain"
	"order-fulfillment/internal/features/orders/ports"

	"go.uber.org/zap"
)

// ErrUnknownStatus is returned when the requested status is not a known value.
var ErrUnknownStatus = errors.New("unknown order status")

const orderCacheKeyPrefix = "order:"

// OrderService handles order reads and order-status transitions. It owns the
// order lifecycle dimension only; payment is settled upstream and the shipping
// dimension belongs to the shipment service.
type OrderService struct {
	repo     ports.OrderRepository
	cache    cache.Cache
	cacheTTL time.Duration
	locks    *keylock.KeyLock
	logger   *zap.Logger
}

// NewOrderService creates a new OrderService. cache may be nil to disable the
// read cache; locks must be the instance shared with the shipment service so
// per-order serialization covers both controllers.
func NewOrderService(repo ports.OrderRepository, c cache.Cache, cacheTTL time.Duration, locks *keylock.KeyLock) *OrderService {
	return &OrderService{
		repo:     repo,
		cache:    c,
		cacheTTL: cacheTTL,
		locks:    locks,
		logger:   logger.Get(),
	}
}

// GetOrder retrieves the full aggregate, reading through the cache when one is
// configured. Cache failures are logged and fall back to the repository.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, orderCacheKeyPrefix+orderID); err == nil {
			var order domain.Order
			if err := json.Unmarshal(data, &order); err == nil {
				return &order, nil
			}
			s.logger.Warn("Discarding malformed cached order", zap.String("order_id", orderID))
		}
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	s.cacheOrder(ctx, order)
	return order, nil
}

// UpdateStatus applies an order-status transition and appends it to the audit
// trail. Payment and shipping fields are never touched here. Notification
// dispatch on the status change is a collaborator's concern; the attempt is
// only logged.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, newStatus domain.OrderStatus, note string) (*domain.Order, error) {
	if !newStatus.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, newStatus)
	}

	s.locks.Lock(orderID)
	defer s.locks.Unlock(orderID)

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := order.ApplyStatus(newStatus, note, time.Now().UTC()); err != nil {
		return nil, err
	}

	if err := s.repo.SaveOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to save order: %w", err)
	}

	s.invalidateCache(ctx, orderID)
	s.logger.Info("Order status updated",
		zap.String("order_id", orderID),
		zap.String("status", string(newStatus)),
	)

	return order, nil
}

// cacheOrder best-effort writes the aggregate to the read cache.
func (s *OrderService) cacheOrder(ctx context.Context, order *domain.Order) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(order)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, orderCacheKeyPrefix+order.ID, data, s.cacheTTL); err != nil {
		s.logger.Warn("Failed to cache order", zap.String("order_id", order.ID), zap.Error(err))
	}
}

// InvalidateCache drops the cached copy after a mutation. Exposed so the
// shipment service can reuse the same keying.
func (s *OrderService) InvalidateCache(ctx context.Context, orderID string) {
	s.invalidateCache(ctx, orderID)
}

func (s *OrderService) invalidateCache(ctx context.Context, orderID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, orderCacheKeyPrefix+orderID); err != nil {
		s.logger.Warn("Failed to invalidate cached order", zap.String("order_id", orderID), zap.Error(err))
	}
}
