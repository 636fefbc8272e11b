package main

import (
	"log"

	"order-fulfillment/internal/core/cache"
	"order-fulfillment/internal/core/config"
	"order-fulfillment/internal/core/keylock"
	"order-fulfillment/internal/core/logger"
	"order-fulfillment/internal/core/server"
	orderadapter "order-fulfillment/internal/features/orders/adapters"
	orderhandler "order-fulfillment/internal/features/orders/handler"
	orderservice "order-fulfillment/internal/features/orders/service"
	shippingadapter "order-fulfillment/internal/features/shipping/adapters"
	shippinghandler "order-fulfillment/internal/features/shipping/handler"
	shippingservice "order-fulfillment/internal/features/shipping/service"

	"go.uber.org/zap"
)

// @title Order Fulfillment API
// @version 1.0
// @description This API manages order status, shipment creation and carrier tracking.
// @contact.name API Support
// @contact.email support@orderfulfillment.com
// @license.name MIT
// @host localhost:8080
// @BasePath /
func main() {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Environment, cfg.LogLevel); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	l := logger.Get()
	l.Info("Application starting",
		zap.String("environment", cfg.Environment),
		zap.String("log_level", cfg.LogLevel),
	)

	// Initialize the order store
	repo, err := orderadapter.NewPostgresOrderRepository(cfg.DatabaseURL)
	if err != nil {
		l.Fatal("Postgres connection failed", zap.Error(err))
	}
	l.Info("Postgres connection verified")

	// Initialize the optional read cache
	var orderCache cache.Cache
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisAdapter(cfg.RedisURL)
		if err != nil {
			l.Fatal("Redis connection failed", zap.Error(err))
		}
		orderCache = redisCache
		l.Info("Redis connection verified")
	} else {
		l.Info("No Redis URL configured, order caching disabled")
	}

	// Shared per-order lock set so status updates and shipment operations
	// on the same order never interleave.
	locks := keylock.New()

	// Initialize Order Service & Handler
	orderService := orderservice.NewOrderService(repo, orderCache, cfg.OrderCacheTTL(), locks)
	orderHandler := orderhandler.NewOrderHandler(orderService)

	// Initialize Carrier Gateway, Shipment Service & Handler
	fedexAdapter := shippingadapter.NewFedExAdapter(cfg.FedEx)
	shipmentService := shippingservice.NewShipmentService(
		repo,
		fedexAdapter,
		locks,
		cfg.FedEx.MaxTransitDays,
		orderService.InvalidateCache,
	)
	shipmentHandler := shippinghandler.NewShipmentHandler(shipmentService)

	srv := server.New(cfg)

	// Register Routes
	srv.App.Get("/orders/:id", orderHandler.GetOrder)
	srv.App.Put("/orders/:id/status", orderHandler.UpdateStatus)
	srv.App.Post("/orders/:id/ship", shipmentHandler.CreateShipment)
	srv.App.Post("/orders/:id/update-tracking", shipmentHandler.RefreshTracking)

	if err := srv.Run(); err != nil {
		l.Fatal("Server failed to start", zap.Error(err))
	}
}
