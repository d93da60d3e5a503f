package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/markholt/go-storefront-api/internal/config"
	"github.com/markholt/go-storefront-api/internal/gateway"
	"github.com/markholt/go-storefront-api/internal/handler"
	"github.com/markholt/go-storefront-api/internal/middleware"
	"github.com/markholt/go-storefront-api/internal/repository"
	"github.com/markholt/go-storefront-api/internal/service"
	"github.com/markholt/go-storefront-api/internal/worker"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN())
	if err != nil {
		log.Error("parse db config", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = cfg.DB.MaxConns

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Error("ping database", "error", err)
		os.Exit(1)
	}
	log.Info("connected to PostgreSQL")

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Redis")

	// RabbitMQ
	amqpConn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		log.Error("connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer amqpConn.Close()

	amqpCh, err := amqpConn.Channel()
	if err != nil {
		log.Error("open RabbitMQ channel", "error", err)
		os.Exit(1)
	}
	defer amqpCh.Close()

	if err := worker.SetupRabbitMQ(amqpCh); err != nil {
		log.Error("setup RabbitMQ", "error", err)
		os.Exit(1)
	}
	log.Info("connected to RabbitMQ")

	// Repositories
	userRepo := repository.NewUserRepository(dbPool)
	productRepo := repository.NewProductRepository(dbPool)
	cartRepo := repository.NewCartRepository(dbPool)
	discountRepo := repository.NewDiscountRepository(dbPool)
	orderRepo := repository.NewOrderRepository(dbPool)
	paymentRepo := repository.NewPaymentRepository(dbPool)
	notificationRepo := repository.NewNotificationRepository(dbPool)
	reportRepo := repository.NewReportRepository(dbPool)

	// Payment gateway (simulated)
	gw := gateway.NewSimulated(cfg.Payment.SuccessRate, time.Now().UnixNano())

	// Services
	authSvc := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration)
	productSvc := service.NewProductService(productRepo, redisClient)
	cartSvc := service.NewCartService(cartRepo, productRepo)
	discountSvc := service.NewDiscountService(discountRepo)
	orderSvc := service.NewOrderService(orderRepo, cartRepo, productRepo, discountSvc, redisClient, amqpCh, cfg.Payment.CheckoutLock)
	paymentSvc := service.NewPaymentService(paymentRepo, orderRepo, gw, amqpCh)
	notificationSvc := service.NewNotificationService(notificationRepo)
	adminSvc := service.NewAdminService(reportRepo, orderRepo, productRepo, userRepo)

	// Handlers
	authH := handler.NewAuthHandler(authSvc)
	productH := handler.NewProductHandler(productSvc)
	cartH := handler.NewCartHandler(cartSvc)
	discountH := handler.NewDiscountHandler(discountSvc)
	orderH := handler.NewOrderHandler(orderSvc)
	paymentH := handler.NewPaymentHandler(paymentSvc)
	notificationH := handler.NewNotificationHandler(notificationSvc)
	adminH := handler.NewAdminHandler(adminSvc, orderSvc)
	healthH := handler.NewHealthHandler(dbPool, redisClient, amqpConn)

	// Worker
	notificationWorker := worker.NewNotificationWorker(amqpCh, notificationRepo, redisClient, log)

	// Router
	router := gin.Default()
	router.GET("/healthz", healthH.Healthz)
	router.GET("/readyz", healthH.Readyz)

	authRequired := middleware.AuthMiddleware(cfg.JWT.Secret)

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", authH.Register)
		auth.POST("/login", authH.Login)

		products := v1.Group("/products")
		products.GET("", productH.ListProducts)
		products.GET("/:id", productH.GetProduct)

		productAdmin := products.Group("", authRequired, middleware.AdminOnly())
		productAdmin.POST("", productH.CreateProduct)
		productAdmin.PUT("/:id", productH.UpdateProduct)
		productAdmin.DELETE("/:id", productH.DeleteProduct)

		cart := v1.Group("/cart", authRequired)
		cart.GET("", cartH.GetCart)
		cart.POST("/items", cartH.AddItem)
		cart.PUT("/items/:id", cartH.UpdateItem)
		cart.DELETE("/items/:id", cartH.DeleteItem)
		cart.DELETE("", cartH.ClearCart)

		discounts := v1.Group("/discounts", authRequired)
		discounts.POST("/validate", discountH.ValidateDiscount)

		discountAdmin := discounts.Group("", middleware.AdminOnly())
		discountAdmin.POST("", discountH.CreateDiscount)
		discountAdmin.GET("", discountH.ListDiscounts)
		discountAdmin.PUT("/:id", discountH.UpdateDiscount)
		discountAdmin.DELETE("/:id", discountH.DeleteDiscount)

		orders := v1.Group("/orders", authRequired)
		orders.POST("", orderH.CreateOrder)
		orders.GET("", orderH.ListOrders)
		orders.GET("/:id", orderH.GetOrder)
		orders.POST("/:id/cancel", orderH.CancelOrder)
		orders.GET("/:id/payment", paymentH.GetOrderPayment)

		payments := v1.Group("/payments", authRequired)
		payments.POST("", paymentH.CreatePayment)
		payments.POST("/:id/process", paymentH.ProcessPayment)

		paymentAdmin := payments.Group("", middleware.AdminOnly())
		paymentAdmin.POST("/:id/refund", paymentH.RefundPayment)

		notifications := v1.Group("/notifications", authRequired)
		notifications.GET("", notificationH.ListNotifications)
		notifications.PUT("/:id/read", notificationH.MarkRead)
		notifications.POST("/read-all", notificationH.MarkAllRead)

		admin := v1.Group("/admin", authRequired, middleware.AdminOnly())
		admin.GET("/dashboard", adminH.Dashboard)
		admin.GET("/reports/sales", adminH.SalesReport)
		admin.GET("/reports/top-products", adminH.TopProducts)
		admin.GET("/orders", adminH.ListAllOrders)
		admin.PUT("/orders/:id/status", adminH.UpdateOrderStatus)
		admin.GET("/users", adminH.ListUsers)
		admin.PUT("/users/:id/role", adminH.UpdateUserRole)
		admin.DELETE("/users/:id", adminH.DeactivateUser)
	}

	if err := notificationWorker.Start(ctx); err != nil {
		log.Error("start notification worker", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}

	notificationWorker.Stop()
	time.Sleep(500 * time.Millisecond)
	cancel()
	log.Info("server stopped")
}
