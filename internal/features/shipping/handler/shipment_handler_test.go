package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"order-fulfillment/internal/core/keylock"
	orderadapters "order-fulfillment/internal/features/orders/adapters"
	orderdomain "order-fulfillment/internal/features/orders/domain"
	"order-fulfillment/internal/features/shipping/domain"
	"order-fulfillment/internal/features/shipping/ports"
	"order-fulfillment/internal/features/shipping/service"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCarrierGateway is a configurable CarrierGateway for handler tests.
type fakeCarrierGateway struct {
	quotes   []domain.RateQuote
	quoteErr error
	label    *domain.LabelResult
	labelErr error
	events   []domain.TrackingEvent
	trackErr error
}

func (f *fakeCarrierGateway) Quote(ctx context.Context, req domain.ShipmentRequest) ([]domain.RateQuote, error) {
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return f.quotes, nil
}

func (f *fakeCarrierGateway) PurchaseLabel(ctx context.Context, req domain.ShipmentRequest, quote domain.RateQuote) (*domain.LabelResult, error) {
	if f.labelErr != nil {
		return nil, f.labelErr
	}
	return f.label, nil
}

func (f *fakeCarrierGateway) Track(ctx context.Context, trackingNumber string) ([]domain.TrackingEvent, error) {
	if f.trackErr != nil {
		return nil, f.trackErr
	}
	return f.events, nil
}

func defaultGateway() *fakeCarrierGateway {
	return &fakeCarrierGateway{
		quotes: []domain.RateQuote{
			{ServiceType: "FEDEX_GROUND", Amount: 12.40, Currency: "USD", TransitDays: 4},
		},
		label: &domain.LabelResult{
			TrackingNumber: "784918293",
			ServiceType:    "FEDEX_GROUND",
			LabelURL:       "https://labels.test/784918293.pdf",
		},
	}
}

func newTestApp(t *testing.T, gw ports.CarrierGateway, mutate func(*orderdomain.Order)) (*fiber.App, *orderadapters.MemoryOrderRepository) {
	t.Helper()

	repo := orderadapters.NewMemoryOrderRepository()
	order := &orderdomain.Order{
		ID:          "ord_1",
		OrderNumber: "ORD-1001",
		Items: []orderdomain.OrderItem{
			{ProductID: "p1", Title: "Print A", UnitPrice: 100, Quantity: 1, WeightKg: 1.5},
		},
		Pricing: orderdomain.Pricing{
			Subtotal: 100, ShippingCost: 12.4, Tax: 8, Total: 120.4,
		},
		ShippingAddress: orderdomain.Address{Name: "Jane Doe", Street1: "1 Main St", City: "Austin", State: "TX", PostalCode: "78701", Country: "US"},
		OrderStatus:     orderdomain.OrderStatusPending,
		PaymentStatus:   orderdomain.PaymentStatusPaid,
		ShippingStatus:  orderdomain.ShippingStatusNotShipped,
		CreatedAt:       time.Now().UTC(),
	}
	if mutate != nil {
		mutate(order)
	}
	require.NoError(t, repo.CreateOrder(context.Background(), order))

	svc := service.NewShipmentService(repo, gw, keylock.New(), 5, nil)
	h := NewShipmentHandler(svc)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("requestid", "test-ray-id")
		return c.Next()
	})
	app.Post("/orders/:id/ship", h.CreateShipment)
	app.Post("/orders/:id/update-tracking", h.RefreshTracking)

	return app, repo
}

// TestShipmentHandler_CreateShipment_Success verifies label fields in the response.
func TestShipmentHandler_CreateShipment_Success(t *testing.T) {
	app, _ := newTestApp(t, defaultGateway(), nil)

	req := httptest.NewRequest("POST", "/orders/ord_1/ship", nil)
	resp, err := app.Test(req)

	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var result ShipmentResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "784918293", result.TrackingNumber)
	assert.Equal(t, "https://labels.test/784918293.pdf", result.LabelURL)
}

// TestShipmentHandler_CreateShipment_PaymentRequired verifies 402 before payment.
func TestShipmentHandler_CreateShipment_PaymentRequired(t *testing.T) {
	app, _ := newTestApp(t, defaultGateway(), func(o *orderdomain.Order) {
		o.PaymentStatus = orderdomain.PaymentStatusPending
	})

	req := httptest.NewRequest("POST", "/orders/ord_1/ship", nil)
	resp, err := app.Test(req)

	require.NoError(t, err)
	assert.Equal(t, fiber.StatusPaymentRequired, resp.StatusCode)
}

// TestShipmentHandler_CreateShipment_Duplicate verifies 409 on the second call.
func TestShipmentHandler_CreateShipment_Duplicate(t *testing.T) {
	app, _ := newTestApp(t, defaultGateway(), nil)

	resp, err := app.Test(httptest.NewRequest("POST", "/orders/ord_1/ship", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/orders/ord_1/ship", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	assert.Contains(t, errResp.Message, "784918293")
}

// TestShipmentHandler_CreateShipment_TransientGateway verifies 502 with a retry hint.
func TestShipmentHandler_CreateShipment_TransientGateway(t *testing.T) {
	gw := defaultGateway()
	gw.quoteErr = ports.NewTransientError("quote", assert.AnError)
	app, _ := newTestApp(t, gw, nil)

	resp, err := app.Test(httptest.NewRequest("POST", "/orders/ord_1/ship", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	assert.True(t, errResp.Retryable)
}

// TestShipmentHandler_CreateShipment_PermanentGateway verifies 422 for data errors.
func TestShipmentHandler_CreateShipment_PermanentGateway(t *testing.T) {
	gw := defaultGateway()
	gw.labelErr = ports.NewPermanentError("purchase_label", assert.AnError)
	app, _ := newTestApp(t, gw, nil)

	resp, err := app.Test(httptest.NewRequest("POST", "/orders/ord_1/ship", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	assert.False(t, errResp.Retryable)
}

// TestShipmentHandler_RefreshTracking_NoShipment verifies 412 before shipping.
func TestShipmentHandler_RefreshTracking_NoShipment(t *testing.T) {
	app, _ := newTestApp(t, defaultGateway(), nil)

	resp, err := app.Test(httptest.NewRequest("POST", "/orders/ord_1/update-tracking", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusPreconditionFailed, resp.StatusCode)
}

// TestShipmentHandler_RefreshTracking_GatewayDown verifies 502 on carrier failure.
func TestShipmentHandler_RefreshTracking_GatewayDown(t *testing.T) {
	gw := defaultGateway()
	gw.trackErr = ports.NewTransientError("track", assert.AnError)
	app, _ := newTestApp(t, gw, func(o *orderdomain.Order) {
		o.Shipment = orderdomain.Shipment{TrackingNumber: "784918293"}
		o.ShippingStatus = orderdomain.ShippingStatusLabelCreated
	})

	resp, err := app.Test(httptest.NewRequest("POST", "/orders/ord_1/update-tracking", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
}

// TestShipmentHandler_NotFound verifies 404 for unknown orders on both routes.
func TestShipmentHandler_NotFound(t *testing.T) {
	app, _ := newTestApp(t, defaultGateway(), nil)

	resp, err := app.Test(httptest.NewRequest("POST", "/orders/missing/ship", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/orders/missing/update-tracking", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

// TestShipmentHandler_ShipThenTrack walks the full fulfillment flow: create a
// shipment for a paid order, then refresh tracking through to delivery.
func TestShipmentHandler_ShipThenTrack(t *testing.T) {
	t1 := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 8, 2, 14, 30, 0, 0, time.UTC)

	gw := defaultGateway()
	app, repo := newTestApp(t, gw, nil)

	resp, err := app.Test(httptest.NewRequest("POST", "/orders/ord_1/ship", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var shipResp ShipmentResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&shipResp))
	assert.Equal(t, "784918293", shipResp.TrackingNumber)

	stored, err := repo.GetOrder(context.Background(), "ord_1")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.ShippingStatusLabelCreated, stored.ShippingStatus)

	gw.events = []domain.TrackingEvent{
		{Status: "picked_up", Timestamp: t1},
		{Status: "delivered", Timestamp: t2},
	}

	resp, err = app.Test(httptest.NewRequest("POST", "/orders/ord_1/update-tracking", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var trackResp TrackingResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&trackResp))

	require.Len(t, trackResp.TrackingHistory, 2)
	assert.Equal(t, t2, trackResp.TrackingHistory[0].Timestamp)
	assert.Equal(t, t1, trackResp.TrackingHistory[1].Timestamp)
	assert.Equal(t, orderdomain.ShippingStatusDelivered, trackResp.ShippingStatus)
	assert.Equal(t, orderdomain.OrderStatusDelivered, trackResp.OrderStatus)
}
