package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/alamor-network/vpn-fulfillment-service/internal/client"
	"github.com/alamor-network/vpn-fulfillment-service/internal/config"
	"github.com/alamor-network/vpn-fulfillment-service/internal/db"
	"github.com/alamor-network/vpn-fulfillment-service/internal/http"
	"github.com/alamor-network/vpn-fulfillment-service/internal/repository"
	"github.com/alamor-network/vpn-fulfillment-service/internal/service"
)

func main() {
	log.Println("Starting VPN Fulfillment Service...")

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize database
	database, err := db.New(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Initialize repositories
	serverRepo := repository.NewServerRepository(database.Pool)
	purchaseRepo := repository.NewPurchaseRepository(database.Pool)
	trialRepo := repository.NewTrialRepository(database.Pool)
	logRepo := repository.NewLogRepository(database.Pool)

	// Initialize clients
	notifyClient := client.NewNotifyClient(
		cfg.Services.BotGatewayURL,
		cfg.InternalSecret,
	)

	// Initialize services
	provisionService := service.NewProvisionService(
		cfg,
		serverRepo,
		purchaseRepo,
		trialRepo,
		logRepo,
		notifyClient,
		service.DefaultPanelClientFactory,
	)

	serverService := service.NewServerService(cfg, serverRepo, service.DefaultPanelClientFactory)

	// Initialize HTTP server
	handler := http.NewHandler(provisionService, serverService)
	server := http.NewServer(cfg, handler)

	// Start server in goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		log.Printf("Server starting on %s", addr)
		if err := server.Run(addr); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	log.Println("Server exited")
}
