package handler

import (
	"errors"
	"net/http"

	"order-fulfillment/internal/core/logger"
	"order-fulfillment/internal/features/orders/domain"
	"order-fulfillment/internal/features/orders/ports"
	"order-fulfillment/internal/features/orders/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// OrderHandler handles HTTP requests related to orders.
type OrderHandler struct {
	// service is the OrderService instance.
	service *service.OrderService
}

// NewOrderHandler creates a new instance of OrderHandler.
func NewOrderHandler(s *service.OrderService) *OrderHandler {
	return &OrderHandler{
		service: s,
	}
}

// ErrorResponse represents the structure of an error response.
type ErrorResponse struct {
	// Message is the error description.
	Message string `json:"message"`
	// RayID is the unique request identifier for debugging.
	RayID string `json:"ray_id"`
}

// UpdateStatusRequest is the body of PUT /orders/{id}/status.
type UpdateStatusRequest struct {
	// OrderStatus is the requested order status value.
	OrderStatus string `json:"order_status"`
	// AdminNote is an optional note recorded in the audit trail.
	AdminNote string `json:"admin_note,omitempty"`
}

func rayID(c *fiber.Ctx) string {
	id, ok := c.Locals("requestid").(string)
	if !ok {
		return "unknown"
	}
	return id
}

// GetOrder handles the request to retrieve a full order aggregate.
// @Summary Get Order by ID
// @Description Fetch the order including status history and tracking history.
// @Tags orders
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} domain.Order
// @Failure 404 {object} ErrorResponse
// @Router /orders/{id} [get]
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	orderID := c.Params("id")

	order, err := h.service.GetOrder(c.Context(), orderID)
	if err != nil {
		if errors.Is(err, ports.ErrOrderNotFound) {
			return c.Status(http.StatusNotFound).JSON(ErrorResponse{
				Message: "Order not found",
				RayID:   rayID(c),
			})
		}

		logger.Get().Error("Failed to fetch order",
			zap.String("order_id", orderID),
			zap.String("ray_id", rayID(c)),
			zap.Error(err),
		)
		return c.Status(http.StatusInternalServerError).JSON(ErrorResponse{
			Message: "Internal Server Error",
			RayID:   rayID(c),
		})
	}

	return c.Status(http.StatusOK).JSON(order)
}

// UpdateStatus handles an admin order-status transition.
// @Summary Update order status
// @Description Apply an order-status transition and append it to the audit trail.
// @Tags orders
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Param body body UpdateStatusRequest true "New status and optional note"
// @Success 200 {object} domain.Order
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /orders/{id}/status [put]
func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	orderID := c.Params("id")

	var req UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
			Message: "Invalid request body",
			RayID:   rayID(c),
		})
	}

	order, err := h.service.UpdateStatus(c.Context(), orderID, domain.OrderStatus(req.OrderStatus), req.AdminNote)
	if err != nil {
		status := http.StatusInternalServerError
		msg := "Internal Server Error"

		switch {
		case errors.Is(err, service.ErrUnknownStatus):
			status = http.StatusBadRequest
			msg = err.Error()
		case errors.Is(err, ports.ErrOrderNotFound):
			status = http.StatusNotFound
			msg = "Order not found"
		case errors.Is(err, domain.ErrInvalidTransition):
			status = http.StatusConflict
			msg = err.Error()
		default:
			logger.Get().Error("Failed to update order status",
				zap.String("order_id", orderID),
				zap.String("ray_id", rayID(c)),
				zap.Error(err),
			)
		}

		return c.Status(status).JSON(ErrorResponse{
			Message: msg,
			RayID:   rayID(c),
		})
	}

	return c.Status(http.StatusOK).JSON(order)
}
