package domain

import (
	"errors"
	"strings"
	"time"

	orderdomain "order-fulfillment/internal/features/orders/domain"
)

// ErrNoQuotes is returned when the carrier offers no rate for a shipment.
var ErrNoQuotes = errors.New("no rate quotes available")

// RateQuote is one service tier offered by the carrier for a shipment.
type RateQuote struct {
	// ServiceType is the carrier service identifier (e.g. FEDEX_GROUND).
	ServiceType string `json:"service_type"`
	// Amount is the quoted cost.
	Amount float64 `json:"amount"`
	// Currency is the ISO currency code of Amount.
	Currency string `json:"currency"`
	// TransitDays is the carrier's estimated delivery time in days.
	TransitDays int `json:"transit_days"`
}

// LabelResult is the outcome of a label purchase.
type LabelResult struct {
	TrackingNumber    string    `json:"tracking_number"`
	ServiceType       string    `json:"service_type"`
	LabelURL          string    `json:"label_url"`
	EstimatedDelivery time.Time `json:"estimated_delivery"`
}

// TrackingEvent is one carrier-reported scan for a tracking number.
type TrackingEvent struct {
	// Status is the carrier status code for the event.
	Status string `json:"status"`
	// Location is where the scan occurred.
	Location string `json:"location,omitempty"`
	// Description is the carrier's event text.
	Description string `json:"description,omitempty"`
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
	// EstimatedDelivery, when set, is the carrier's refreshed delivery estimate.
	EstimatedDelivery time.Time `json:"estimated_delivery,omitempty"`
}

// ShipmentRequest carries everything the carrier needs to rate or label one
// package. Item weights are aggregated; multi-package splitting is not done.
type ShipmentRequest struct {
	OrderID    string
	Address    orderdomain.Address
	WeightKg   float64
	Dimensions orderdomain.Dimensions
}

// carrierStatusMap is the fixed lookup from carrier status vocabulary to the
// shipping status dimension. Keys are normalized to lower case. FedEx two-letter
// scan codes and their spelled-out variants are both listed because the track
// API has been observed returning either.
var carrierStatusMap = map[string]orderdomain.ShippingStatus{
	// Label purchased, not yet in carrier possession.
	"oc":            orderdomain.ShippingStatusLabelCreated,
	"label_created": orderdomain.ShippingStatusLabelCreated,

	// Anything indicating motion through the network.
	"pu":         orderdomain.ShippingStatusInTransit,
	"picked_up":  orderdomain.ShippingStatusInTransit,
	"it":         orderdomain.ShippingStatusInTransit,
	"in_transit": orderdomain.ShippingStatusInTransit,
	"dp":         orderdomain.ShippingStatusInTransit,
	"departed":   orderdomain.ShippingStatusInTransit,
	"ar":         orderdomain.ShippingStatusInTransit,
	"arrived":    orderdomain.ShippingStatusInTransit,

	// Final mile.
	"od":               orderdomain.ShippingStatusOutForDelivery,
	"out_for_delivery": orderdomain.ShippingStatusOutForDelivery,

	// Terminal happy path.
	"dl":        orderdomain.ShippingStatusDelivered,
	"delivered": orderdomain.ShippingStatusDelivered,

	// Anomalies.
	"de":        orderdomain.ShippingStatusException,
	"se":        orderdomain.ShippingStatusException,
	"dy":        orderdomain.ShippingStatusException,
	"delay":     orderdomain.ShippingStatusException,
	"exception": orderdomain.ShippingStatusException,
	"rs":        orderdomain.ShippingStatusException,
}

// MapCarrierStatus translates a carrier status code into the shipping status
// dimension. ok is false for unrecognized codes so callers can tolerate carrier
// vocabulary drift by leaving the current status in place.
func MapCarrierStatus(code string) (orderdomain.ShippingStatus, bool) {
	status, ok := carrierStatusMap[strings.ToLower(strings.TrimSpace(code))]
	return status, ok
}

// SelectQuote picks the cheapest tier meeting the delivery-speed floor. When no
// tier is fast enough, the cheapest overall is used so shipping is still
// possible for remote destinations.
func SelectQuote(quotes []RateQuote, maxTransitDays int) (RateQuote, error) {
	if len(quotes) == 0 {
		return RateQuote{}, ErrNoQuotes
	}

	var best, bestAny *RateQuote
	for i := range quotes {
		q := &quotes[i]
		if bestAny == nil || q.Amount < bestAny.Amount {
			bestAny = q
		}
		if q.TransitDays > maxTransitDays {
			continue
		}
		if best == nil || q.Amount < best.Amount {
			best = q
		}
	}

	if best != nil {
		return *best, nil
	}
	return *bestAny, nil
}
