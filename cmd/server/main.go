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

	"agrimarket/config"
	"agrimarket/internal/api"
	"agrimarket/internal/broker"
	"agrimarket/internal/cart"
	"agrimarket/internal/diagnosis"
	"agrimarket/internal/service"
	"agrimarket/internal/store"
	"agrimarket/internal/util"
	"agrimarket/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting agrimarket service")

	tp, err := util.InitTracer("agrimarket", cfg.Observ.JaegerEndpoint)
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

	cartTTL := time.Duration(cfg.Business.CartTTLHours) * time.Hour
	cartStore, err := cart.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cartTTL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer cartStore.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)
	aiClient := diagnosis.NewClient(cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.Model)

	cartService := service.NewCartService(cartStore, db)
	orderService := service.NewOrderService(db, cartStore, eventPublisher, service.OrderPolicy{
		StrictStatusTransitions: cfg.Business.StrictStatusTransitions,
		RestockOnCancel:         cfg.Business.RestockOnCancel,
		LowStockThreshold:       cfg.Business.LowStockThreshold,
	})
	catalogService := service.NewCatalogService(db)
	diagnosisService := service.NewDiagnosisService(aiClient, db)
	crmService := service.NewCRMService(db)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	crmConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	crmWorker := worker.NewCRMWorker(crmConsumer, crmService)
	go func() {
		if err := crmWorker.Start(workerCtx); err != nil {
			log.Printf("CRM worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(cartService, orderService, catalogService, diagnosisService, crmService, cfg.Auth.TokenSecret)
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
	crmWorker.Stop()

	log.Println("Server exited")
}
