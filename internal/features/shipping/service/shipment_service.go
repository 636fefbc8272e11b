package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"order-fulfillment/internal/core/keylock"
	"order-fulfillment/internal/core/logger"
	orderdomain "order-fulfillment/internal/features/orders/domain"
	orderports "order-fulfillment/internal/features/orders/ports"
	"order-fulfillment/internal/features/shipping/domain"
	"order-fulfillment/internal/features/shipping/ports"

	"go.uber.org/zap"
)

// ErrPaymentNotCompleted is returned when a shipment is requested before payment settled.
var ErrPaymentNotCompleted = errors.New("payment not completed")

// ErrNoShipment is returned when tracking is refreshed before a shipment exists.
var ErrNoShipment = errors.New("no shipment for order")

// ShipmentService orchestrates shipment creation and tracking refresh. It is
// the only component that talks to the carrier gateway, and the only writer of
// the shipping status dimension.
type ShipmentService struct {
	repo    orderports.OrderRepository
	gateway ports.CarrierGateway
	locks   *keylock.KeyLock
	// maxTransitDays is the delivery-speed floor for rate selection.
	maxTransitDays int
	// invalidate drops a cached order after a mutation; may be nil.
	invalidate func(ctx context.Context, orderID string)
	logger     *zap.Logger
}

// NewShipmentService creates a new ShipmentService. locks must be the instance
// shared with the order service so per-order serialization covers both
// controllers; invalidate may be nil when no read cache is configured.
func NewShipmentService(
	repo orderports.OrderRepository,
	gateway ports.CarrierGateway,
	locks *keylock.KeyLock,
	maxTransitDays int,
	invalidate func(ctx context.Context, orderID string),
) *ShipmentService {
	return &ShipmentService{
		repo:           repo,
		gateway:        gateway,
		locks:          locks,
		maxTransitDays: maxTransitDays,
		invalidate:     invalidate,
		logger:         logger.Get(),
	}
}

// CreateShipment quotes, purchases a label and persists the carrier artifacts.
// The whole operation is atomic against the order: a gateway failure at any
// step leaves no partial shipment fields behind, so the admin can retry. A
// successful attempt can never be repeated; the tracking number is write-once.
// Gateway calls are never retried here because a second label purchase costs
// money and must be an explicit operator decision.
func (s *ShipmentService) CreateShipment(ctx context.Context, orderID string) (*orderdomain.Order, error) {
	s.locks.Lock(orderID)
	defer s.locks.Unlock(orderID)

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Shipment.Created() {
		return nil, fmt.Errorf("%w: tracking number %s", orderdomain.ErrShipmentAlreadyExists, order.Shipment.TrackingNumber)
	}
	if order.PaymentStatus != orderdomain.PaymentStatusPaid {
		return nil, fmt.Errorf("%w: payment status is %s", ErrPaymentNotCompleted, order.PaymentStatus)
	}

	req := buildShipmentRequest(order)

	quotes, err := s.gateway.Quote(ctx, req)
	if err != nil {
		return nil, err
	}

	selected, err := domain.SelectQuote(quotes, s.maxTransitDays)
	if err != nil {
		return nil, ports.NewPermanentError("quote", err)
	}

	s.logger.Info("Rate quote selected",
		zap.String("order_id", orderID),
		zap.String("service_type", selected.ServiceType),
		zap.Float64("amount", selected.Amount),
		zap.Int("transit_days", selected.TransitDays),
	)

	label, err := s.gateway.PurchaseLabel(ctx, req, selected)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := order.AttachShipment(orderdomain.Shipment{
		TrackingNumber:    label.TrackingNumber,
		ServiceType:       label.ServiceType,
		LabelURL:          label.LabelURL,
		EstimatedDelivery: label.EstimatedDelivery,
	}, now); err != nil {
		return nil, err
	}

	if err := s.repo.SaveOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to save order after label purchase: %w", err)
	}

	if s.invalidate != nil {
		s.invalidate(ctx, orderID)
	}

	s.logger.Info("Shipment created",
		zap.String("order_id", orderID),
		zap.String("tracking_number", label.TrackingNumber),
	)
	return order, nil
}

// RefreshTracking pulls carrier events, merges them into the tracking log and
// re-derives the shipping status from the most recent event. The merge is
// idempotent: an identical carrier response adds nothing. A gateway failure
// leaves all persisted state untouched.
func (s *ShipmentService) RefreshTracking(ctx context.Context, orderID string) (*orderdomain.Order, error) {
	s.locks.Lock(orderID)
	defer s.locks.Unlock(orderID)

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !order.Shipment.Created() {
		return nil, fmt.Errorf("%w: %s", ErrNoShipment, orderID)
	}

	events, err := s.gateway.Track(ctx, order.Shipment.TrackingNumber)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entries := make([]orderdomain.TrackingEntry, 0, len(events))
	var estimated time.Time
	for _, event := range events {
		entries = append(entries, orderdomain.TrackingEntry{
			Status:      event.Status,
			Location:    event.Location,
			Description: event.Description,
			Timestamp:   event.Timestamp,
		})
		if !event.EstimatedDelivery.IsZero() {
			estimated = event.EstimatedDelivery
		}
	}

	added := order.MergeTrackingEvents(entries, now)

	if latest := order.LatestTrackingEvent(); latest != nil {
		s.deriveShippingStatus(order, latest, now)
	}

	// EstimatedDelivery is the one shipment field that may be refreshed.
	if !estimated.IsZero() {
		order.Shipment.EstimatedDelivery = estimated
	}

	if err := s.repo.SaveOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to save order after tracking refresh: %w", err)
	}

	if s.invalidate != nil {
		s.invalidate(ctx, orderID)
	}

	s.logger.Debug("Tracking refreshed",
		zap.String("order_id", orderID),
		zap.Int("events_added", added),
		zap.String("shipping_status", string(order.ShippingStatus)),
	)
	return order, nil
}

// deriveShippingStatus maps the most recent carrier event onto the shipping
// dimension. Unrecognized codes and backward moves leave the status
// unchanged; only exception may override a later stage. A delivered event
// is the one place the shipping dimension feeds back into the order lifecycle;
// the feedback is suppressed when the order already reached a terminal state.
func (s *ShipmentService) deriveShippingStatus(order *orderdomain.Order, latest *orderdomain.TrackingEntry, now time.Time) {
	status, ok := domain.MapCarrierStatus(latest.Status)
	if !ok {
		s.logger.Warn("Unknown carrier status code encountered",
			zap.String("order_id", order.ID),
			zap.String("code", latest.Status),
			zap.String("description", latest.Description),
		)
		return
	}

	if !order.ShippingStatus.CanProgressTo(status) {
		s.logger.Warn("Ignoring regressive carrier status",
			zap.String("order_id", order.ID),
			zap.String("current", string(order.ShippingStatus)),
			zap.String("reported", string(status)),
		)
		return
	}

	order.ShippingStatus = status

	if status != orderdomain.ShippingStatusDelivered {
		return
	}

	if order.OrderStatus.IsTerminal() {
		if order.OrderStatus != orderdomain.OrderStatusDelivered {
			s.logger.Warn("Suppressing delivered feedback on terminal order",
				zap.String("order_id", order.ID),
				zap.String("order_status", string(order.OrderStatus)),
			)
		}
		return
	}

	if err := order.ApplyStatus(orderdomain.OrderStatusDelivered, "carrier reported delivery", now); err != nil {
		// Unreachable given the terminal check above; logged for safety.
		s.logger.Warn("Failed to apply delivered status", zap.String("order_id", order.ID), zap.Error(err))
	}
}

func buildShipmentRequest(order *orderdomain.Order) domain.ShipmentRequest {
	return domain.ShipmentRequest{
		OrderID:    order.ID,
		Address:    order.ShippingAddress,
		WeightKg:   order.TotalWeightKg(),
		Dimensions: largestDimensions(order),
	}
}

// largestDimensions approximates the single-package footprint as the maximum
// item dimension along each axis.
func largestDimensions(order *orderdomain.Order) orderdomain.Dimensions {
	var dims orderdomain.Dimensions
	for _, item := range order.Items {
		if item.Dimensions.LengthCm > dims.LengthCm {
			dims.LengthCm = item.Dimensions.LengthCm
		}
		if item.Dimensions.WidthCm > dims.WidthCm {
			dims.WidthCm = item.Dimensions.WidthCm
		}
		if item.Dimensions.HeightCm > dims.HeightCm {
			dims.HeightCm = item.Dimensions.HeightCm
		}
	}
	return dims
}
