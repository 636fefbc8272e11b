package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// OrderStatus represents the business-facing fulfillment stage of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// Valid reports whether s is one of the known order statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusConfirmed,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

// IsTerminal reports whether no further order status transitions are permitted.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled || s == OrderStatusRefunded
}

// PaymentStatus represents the payment dimension, independent of the order lifecycle.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// ShippingStatus represents the carrier-facing physical-transit stage.
// It is maintained exclusively by the shipment service, never set by an admin.
type ShippingStatus string

const (
	ShippingStatusNotShipped     ShippingStatus = "not-shipped"
	ShippingStatusLabelCreated   ShippingStatus = "label-created"
	ShippingStatusInTransit      ShippingStatus = "in-transit"
	ShippingStatusOutForDelivery ShippingStatus = "out-for-delivery"
	ShippingStatusDelivered      ShippingStatus = "delivered"
	ShippingStatusException      ShippingStatus = "exception"
)

// shippingProgression ranks the physical-transit stages. Exception sits
// outside the progression: it is reachable from any stage and any stage is
// reachable from it.
var shippingProgression = map[ShippingStatus]int{
	ShippingStatusNotShipped:     0,
	ShippingStatusLabelCreated:   1,
	ShippingStatusInTransit:      2,
	ShippingStatusOutForDelivery: 3,
	ShippingStatusDelivered:      4,
}

// CanProgressTo reports whether moving the shipping dimension to next is a
// forward move. Carrier scans often arrive out of order; a stale motion scan
// after a delivered scan must not regress the status.
func (s ShippingStatus) CanProgressTo(next ShippingStatus) bool {
	if next == ShippingStatusException {
		return true
	}
	return shippingProgression[next] >= shippingProgression[s]
}

// ErrInvalidTransition is returned when the order status is terminal and cannot change.
var ErrInvalidTransition = errors.New("order status is terminal")

// ErrShipmentAlreadyExists is returned when a shipment was already created for the order.
var ErrShipmentAlreadyExists = errors.New("shipment already exists")

// ErrInvalidPricing is returned when the pricing breakdown does not add up.
var ErrInvalidPricing = errors.New("pricing total does not match breakdown")

// OrderItem is a product snapshot taken at order time. Later product edits do
// not retroactively change historical orders.
type OrderItem struct {
	// ProductID references the product this line was snapshotted from.
	ProductID string `json:"product_id"`
	// Title is the product title at purchase time.
	Title string `json:"title"`
	// Picture is the URL to a product image.
	Picture string `json:"picture,omitempty"`
	// UnitPrice is the price per unit at purchase time.
	UnitPrice float64 `json:"unit_price"`
	// Quantity is the number of units purchased.
	Quantity int `json:"quantity"`
	// WeightKg is the per-unit weight used for shipping rate requests.
	WeightKg float64 `json:"weight_kg"`
	// Dimensions are the per-unit package dimensions.
	Dimensions Dimensions `json:"dimensions"`
}

// Dimensions holds package dimensions in centimeters.
type Dimensions struct {
	LengthCm float64 `json:"length_cm"`
	WidthCm  float64 `json:"width_cm"`
	HeightCm float64 `json:"height_cm"`
}

// Pricing is the order price breakdown, fixed at creation.
type Pricing struct {
	Subtotal     float64 `json:"subtotal"`
	Discount     float64 `json:"discount"`
	ShippingCost float64 `json:"shipping_cost"`
	Tax          float64 `json:"tax"`
	Total        float64 `json:"total"`
}

// Validate checks the pricing invariant: total = subtotal - discount + shippingCost + tax.
func (p Pricing) Validate() error {
	expected := p.Subtotal - p.Discount + p.ShippingCost + p.Tax
	if diff := p.Total - expected; diff > 0.001 || diff < -0.001 {
		return fmt.Errorf("%w: expected %.2f, got %.2f", ErrInvalidPricing, expected, p.Total)
	}
	return nil
}

// Address is a structured shipping address. ValidationData is an opaque,
// carrier-specific payload from a prior address-validation call.
type Address struct {
	Name           string          `json:"name"`
	Street1        string          `json:"street1"`
	Street2        string          `json:"street2,omitempty"`
	City           string          `json:"city"`
	State          string          `json:"state"`
	PostalCode     string          `json:"postal_code"`
	Country        string          `json:"country"`
	Phone          string          `json:"phone,omitempty"`
	ValidationData json.RawMessage `json:"validation_data,omitempty"`
}

// Shipment holds the carrier artifacts from label purchase. TrackingNumber is
// write-once; only EstimatedDelivery may be refreshed afterwards.
type Shipment struct {
	TrackingNumber    string    `json:"tracking_number"`
	ServiceType       string    `json:"service_type"`
	LabelURL          string    `json:"label_url"`
	EstimatedDelivery time.Time `json:"estimated_delivery,omitempty"`
}

// Created reports whether a shipment has been purchased for the order.
func (s Shipment) Created() bool {
	return s.TrackingNumber != ""
}

// StatusEntry is one row of the order status audit trail.
type StatusEntry struct {
	// Status is the order status after this transition.
	Status OrderStatus `json:"status"`
	// Note is the optional actor note recorded with the transition.
	Note string `json:"note,omitempty"`
	// Timestamp is when the transition was applied.
	Timestamp time.Time `json:"timestamp"`
}

// TrackingEntry is one carrier-reported tracking event, as persisted on the order.
type TrackingEntry struct {
	// Status is the carrier status code for this event.
	Status string `json:"status"`
	// Location is where the event occurred, as reported by the carrier.
	Location string `json:"location,omitempty"`
	// Description is the carrier's human-readable event text.
	Description string `json:"description,omitempty"`
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
}

// Order is the persisted fulfillment aggregate: items, pricing, addresses and
// the three status dimensions plus both append-only logs.
type Order struct {
	// ID is the unique identifier for the order.
	ID string `json:"id"`
	// OrderNumber is the human-facing order number, immutable once assigned.
	OrderNumber string `json:"order_number"`
	// Items contains the product snapshots included in the order.
	Items []OrderItem `json:"items"`
	// Pricing is the price breakdown fixed at creation.
	Pricing Pricing `json:"pricing"`
	// ShippingAddress is the structured destination address.
	ShippingAddress Address `json:"shipping_address"`
	// OrderStatus is the business lifecycle dimension.
	OrderStatus OrderStatus `json:"order_status"`
	// PaymentStatus is the payment dimension, settled upstream.
	PaymentStatus PaymentStatus `json:"payment_status"`
	// ShippingStatus is the carrier-facing transit dimension.
	ShippingStatus ShippingStatus `json:"shipping_status"`
	// Shipment holds carrier artifacts, set once by shipment creation.
	Shipment Shipment `json:"shipment"`
	// StatusHistory is the append-only order status audit trail.
	StatusHistory []StatusEntry `json:"status_history"`
	// TrackingHistory is the append-only carrier event log, most recent first.
	TrackingHistory []TrackingEntry `json:"tracking_history"`
	// CreatedAt is when the order was created. Immutable.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the order was last mutated.
	UpdatedAt time.Time `json:"updated_at"`
	// Version is the optimistic concurrency stamp, bumped on every save.
	Version int64 `json:"version"`
}

// ApplyStatus sets the order status and appends the transition to the audit
// trail. A transition to the current status is accepted and still recorded,
// keeping the trail complete. Terminal states reject all further transitions.
func (o *Order) ApplyStatus(newStatus OrderStatus, note string, now time.Time) error {
	if o.OrderStatus.IsTerminal() {
		return fmt.Errorf("%w: order is %s", ErrInvalidTransition, o.OrderStatus)
	}

	o.OrderStatus = newStatus
	o.StatusHistory = append(o.StatusHistory, StatusEntry{
		Status:    newStatus,
		Note:      note,
		Timestamp: now,
	})
	o.UpdatedAt = now
	return nil
}

// AttachShipment records the purchased label on the order. The tracking number
// is write-once; a second call fails without touching the stored shipment.
func (o *Order) AttachShipment(shipment Shipment, now time.Time) error {
	if o.Shipment.Created() {
		return fmt.Errorf("%w: tracking number %s", ErrShipmentAlreadyExists, o.Shipment.TrackingNumber)
	}

	o.Shipment = shipment
	o.ShippingStatus = ShippingStatusLabelCreated
	o.UpdatedAt = now
	return nil
}

// MergeTrackingEvents merges carrier events into the tracking history. Events
// already present, matched by (status, timestamp), are skipped; new events are
// appended and the log is re-sorted descending by timestamp. Calling twice with
// the same carrier response adds nothing the second time.
func (o *Order) MergeTrackingEvents(events []TrackingEntry, now time.Time) int {
	seen := make(map[string]bool, len(o.TrackingHistory))
	for _, e := range o.TrackingHistory {
		seen[trackingKey(e.Status, e.Timestamp)] = true
	}

	added := 0
	for _, e := range events {
		key := trackingKey(e.Status, e.Timestamp)
		if seen[key] {
			continue
		}
		seen[key] = true
		o.TrackingHistory = append(o.TrackingHistory, e)
		added++
	}

	if added > 0 {
		sort.SliceStable(o.TrackingHistory, func(i, j int) bool {
			return o.TrackingHistory[i].Timestamp.After(o.TrackingHistory[j].Timestamp)
		})
		o.UpdatedAt = now
	}

	return added
}

// LatestTrackingEvent returns the most recent carrier event, or nil if none.
func (o *Order) LatestTrackingEvent() *TrackingEntry {
	if len(o.TrackingHistory) == 0 {
		return nil
	}
	return &o.TrackingHistory[0]
}

// TotalWeightKg returns the aggregate package weight across all items.
// Multi-package splitting is not supported; everything ships as one package.
func (o *Order) TotalWeightKg() float64 {
	var total float64
	for _, item := range o.Items {
		total += item.WeightKg * float64(item.Quantity)
	}
	return total
}

func trackingKey(status string, ts time.Time) string {
	return status + "|" + ts.UTC().Format(time.RFC3339Nano)
}
