package ports

import (
	"context"
	"fmt"

	"order-fulfillment/internal/features/shipping/domain"
)

// CarrierGateway defines the narrow carrier API surface the shipment service
// consumes. This is a Secondary Port (Driven Port); production is backed by the
// FedEx REST adapter, tests by a fake.
type CarrierGateway interface {
	// Quote returns the service tiers available for the shipment.
	Quote(ctx context.Context, req domain.ShipmentRequest) ([]domain.RateQuote, error)
	// PurchaseLabel buys a label for the selected tier.
	PurchaseLabel(ctx context.Context, req domain.ShipmentRequest, quote domain.RateQuote) (*domain.LabelResult, error)
	// Track returns all carrier-reported events for a tracking number.
	Track(ctx context.Context, trackingNumber string) ([]domain.TrackingEvent, error)
}

// CarrierError wraps a gateway failure with a retryability classification.
// Transient failures (timeouts, carrier 5xx, throttling) are safe to retry
// as-is; permanent ones (rejected address, unknown tracking number) need the
// input fixed first.
type CarrierError struct {
	// Op names the gateway operation that failed (quote, purchase_label, track).
	Op string
	// Transient reports whether an immediate retry can succeed.
	Transient bool
	// Err is the underlying cause.
	Err error
}

func (e *CarrierError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("carrier gateway %s failed (%s): %v", e.Op, kind, e.Err)
}

func (e *CarrierError) Unwrap() error {
	return e.Err
}

// NewTransientError classifies a retryable gateway failure.
func NewTransientError(op string, err error) *CarrierError {
	return &CarrierError{Op: op, Transient: true, Err: err}
}

// NewPermanentError classifies a non-retryable gateway failure.
func NewPermanentError(op string, err error) *CarrierError {
	return &CarrierError{Op: op, Transient: false, Err: err}
}
