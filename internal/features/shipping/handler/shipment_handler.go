package handler

import (
	"errors"
	"net/http"
	"time"

	"order-fulfillment/internal/core/logger"
	orderdomain "order-fulfillment/internal/features/orders/domain"
	orderports "order-fulfillment/internal/features/orders/ports"
	"order-fulfillment/internal/features/shipping/ports"
	"order-fulfillment/internal/features/shipping/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ShipmentHandler handles HTTP requests for shipment operations.
type ShipmentHandler struct {
	shipmentService *service.ShipmentService
}

// NewShipmentHandler creates a new ShipmentHandler.
func NewShipmentHandler(s *service.ShipmentService) *ShipmentHandler {
	return &ShipmentHandler{
		shipmentService: s,
	}
}

// ErrorResponse represents an error response with Ray ID.
type ErrorResponse struct {
	// Message is the error description.
	Message string `json:"message"`
	// RayID is the unique request identifier for tracing.
	RayID string `json:"ray_id,omitempty"`
	// Retryable indicates whether the same request can be retried as-is.
	Retryable bool `json:"retryable,omitempty"`
}

// ShipmentResponse is the body returned by a successful shipment creation.
type ShipmentResponse struct {
	TrackingNumber    string    `json:"tracking_number"`
	ServiceType       string    `json:"service_type"`
	LabelURL          string    `json:"label_url"`
	EstimatedDelivery time.Time `json:"estimated_delivery,omitempty"`
}

// TrackingResponse is the body returned by a tracking refresh.
type TrackingResponse struct {
	ShippingStatus  orderdomain.ShippingStatus  `json:"shipping_status"`
	OrderStatus     orderdomain.OrderStatus     `json:"order_status"`
	TrackingHistory []orderdomain.TrackingEntry `json:"tracking_history"`
}

func rayID(c *fiber.Ctx) string {
	id, ok := c.Locals("requestid").(string)
	if !ok {
		return "unknown"
	}
	return id
}

// CreateShipment godoc
// @Summary Create a shipment for an order
// @Description Quotes rates, purchases a label and stores the tracking number. Fails atomically on carrier errors.
// @Tags shipping
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} ShipmentResponse
// @Failure 402 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /orders/{id}/ship [post]
func (h *ShipmentHandler) CreateShipment(c *fiber.Ctx) error {
	orderID := c.Params("id")

	order, err := h.shipmentService.CreateShipment(c.Context(), orderID)
	if err != nil {
		return h.renderError(c, orderID, "Failed to create shipment", err)
	}

	return c.Status(http.StatusOK).JSON(ShipmentResponse{
		TrackingNumber:    order.Shipment.TrackingNumber,
		ServiceType:       order.Shipment.ServiceType,
		LabelURL:          order.Shipment.LabelURL,
		EstimatedDelivery: order.Shipment.EstimatedDelivery,
	})
}

// RefreshTracking godoc
// @Summary Refresh carrier tracking for an order
// @Description Pulls carrier events, merges them into the tracking log and re-derives the shipping status.
// @Tags shipping
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} TrackingResponse
// @Failure 404 {object} ErrorResponse
// @Failure 412 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /orders/{id}/update-tracking [post]
func (h *ShipmentHandler) RefreshTracking(c *fiber.Ctx) error {
	orderID := c.Params("id")

	order, err := h.shipmentService.RefreshTracking(c.Context(), orderID)
	if err != nil {
		return h.renderError(c, orderID, "Failed to refresh tracking", err)
	}

	return c.Status(http.StatusOK).JSON(TrackingResponse{
		ShippingStatus:  order.ShippingStatus,
		OrderStatus:     order.OrderStatus,
		TrackingHistory: order.TrackingHistory,
	})
}

// renderError translates service errors into the HTTP error taxonomy. Carrier
// failures carry a retryable hint so the admin UI can offer the right
// affordance: retry for transient, fix-the-data for permanent.
func (h *ShipmentHandler) renderError(c *fiber.Ctx, orderID, logMsg string, err error) error {
	var carrierErr *ports.CarrierError

	switch {
	case errors.Is(err, orderports.ErrOrderNotFound):
		return c.Status(http.StatusNotFound).JSON(ErrorResponse{
			Message: "Order not found",
			RayID:   rayID(c),
		})
	case errors.Is(err, service.ErrPaymentNotCompleted):
		return c.Status(http.StatusPaymentRequired).JSON(ErrorResponse{
			Message: err.Error(),
			RayID:   rayID(c),
		})
	case errors.Is(err, orderdomain.ErrShipmentAlreadyExists):
		return c.Status(http.StatusConflict).JSON(ErrorResponse{
			Message: err.Error(),
			RayID:   rayID(c),
		})
	case errors.Is(err, service.ErrNoShipment):
		return c.Status(http.StatusPreconditionFailed).JSON(ErrorResponse{
			Message: err.Error(),
			RayID:   rayID(c),
		})
	case errors.As(err, &carrierErr):
		logger.Get().Error(logMsg,
			zap.String("order_id", orderID),
			zap.String("ray_id", rayID(c)),
			zap.Bool("transient", carrierErr.Transient),
			zap.Error(err),
		)
		status := http.StatusUnprocessableEntity
		if carrierErr.Transient {
			status = http.StatusBadGateway
		}
		return c.Status(status).JSON(ErrorResponse{
			Message:   err.Error(),
			RayID:     rayID(c),
			Retryable: carrierErr.Transient,
		})
	}

	logger.Get().Error(logMsg,
		zap.String("order_id", orderID),
		zap.String("ray_id", rayID(c)),
		zap.Error(err),
	)
	return c.Status(http.StatusInternalServerError).JSON(ErrorResponse{
		Message: "Internal Server Error",
		RayID:   rayID(c),
	})
}
