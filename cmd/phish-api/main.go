package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/stoik/phishing-risk/internal/adapters/httpapi"
	"github.com/stoik/phishing-risk/internal/application"
	"github.com/stoik/phishing-risk/internal/config"
	"github.com/stoik/phishing-risk/internal/di"
	"github.com/stoik/phishing-risk/internal/metrics"
	"go.uber.org/zap"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	// A missing .env file is fine
	_ = godotenv.Load()

	cfg, err := config.New(*configFile)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Build the dependency injection container
	container, err := di.BuildContainer(cfg)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	cfg *config.Config,
	logger *zap.Logger,
	service *application.AnalysisService,
	m *metrics.Metrics,
	stack *di.WhoisStack,
) error {
	defer logger.Sync()
	defer func() {
		if err := stack.Close(); err != nil {
			logger.Error("Failed to close registration cache", zap.Error(err))
		}
	}()

	serverCfg := cfg.GetServer()
	if serverCfg.Mode != "" {
		gin.SetMode(serverCfg.Mode)
	}

	server := &http.Server{
		Addr:              serverCfg.ListenAddress,
		Handler:           httpapi.NewRouter(service, m, serverCfg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting API server", zap.String("address", serverCfg.ListenAddress))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	case <-sigCh:
	}

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Failed to shut down API server", zap.Error(err))
	}

	logger.Info("Shutdown complete")
	return nil
}
