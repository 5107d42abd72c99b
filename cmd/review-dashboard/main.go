package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/reconcile-backend/internal/infrastructure/config"
	"github.com/eshaffer321/reconcile-backend/internal/infrastructure/logging"
	"github.com/eshaffer321/reconcile-backend/internal/infrastructure/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Configuration file path")
	port := flag.Int("port", 0, "Port to listen on (default from config)")
	flag.Parse()

	cfg := config.LoadOrEnvWithPath(*configPath)
	logger := logging.NewLoggerWithSystem(cfg.Observability.Logging, "dashboard")

	// Initialize storage
	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	server := NewDashboardServer(store, logger)

	gin.SetMode(gin.ReleaseMode)
	router := server.Router(cfg.API.AllowedOrigins)

	listenPort := cfg.API.DashboardPort
	if *port != 0 {
		listenPort = *port
	}

	logger.Info("starting review dashboard", "port", listenPort, "database", cfg.Storage.DatabasePath)
	if err := router.Run(fmt.Sprintf(":%d", listenPort)); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}
}
