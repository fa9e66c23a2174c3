package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"geowatch/config"
	"geowatch/internal/api"
	"geowatch/internal/broker"
	"geowatch/internal/models"
	"geowatch/internal/redisclient"
	"geowatch/internal/scheduler"
	"geowatch/internal/service"
	"geowatch/internal/store"
	"geowatch/internal/util"
	"geowatch/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting geowatch service")

	tp, err := util.InitTracer("geowatch", cfg.Server.Env, cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	registry := service.ProviderRegistry{
		models.ProviderStripe: service.NewStripeProvider(
			cfg.Payments.StripeSecretKey,
			cfg.Payments.StripeWebhookSecret,
			cfg.Payments.ProviderClientTimeout),
		models.ProviderPaystack: service.NewPaystackProvider(
			cfg.Payments.PaystackSecretKey,
			cfg.Payments.PaystackCallbackURL,
			cfg.Payments.ProviderClientTimeout),
	}

	notifier := service.NewNotifier(db, eventPublisher)
	aoiService := service.NewAOIService(db)
	cartService := service.NewCartService(db, cfg.Pricing)
	orderService := service.NewOrderService(db, cfg.Pricing, eventPublisher, store.IsUniqueViolation)
	paymentService := service.NewPaymentService(db, registry, orderService, notifier, redisClient)

	detector := service.NewStochasticDetector(time.Now().UnixNano())
	executor := scheduler.NewExecutor(db, detector, notifier, eventPublisher, cfg.Scheduler)
	sched := scheduler.NewScheduler(db, redisClient, executor, cfg.Scheduler)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	go sched.Run(workerCtx)
	log.Println("Monitoring scheduler started")

	notificationConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications, cfg.Kafka.ConsumerGroup)
	notificationWorker := worker.NewNotificationWorker(notificationConsumer, db, worker.LogRealtimeSink{}, worker.LogSMSSink{})
	go func() {
		if err := notificationWorker.Start(workerCtx); err != nil {
			log.Printf("Notification worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(aoiService, cartService, orderService, paymentService, sched, db, cfg.Pricing)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	notificationWorker.Stop()

	log.Println("Server exited")
}
