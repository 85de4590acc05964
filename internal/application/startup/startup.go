// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fablepress/fablepress-go/internal/application/container"
	"github.com/fablepress/fablepress-go/internal/infrastructure/persistence/database"
	"github.com/fablepress/fablepress-go/internal/presentation/http/server"
	"github.com/fablepress/fablepress-go/pkg/config"
	"github.com/gin-gonic/gin"
)

// Initialize performs the complete startup sequence
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	log.Println("Initializing...")

	// Step 1: Open the project database
	log.Println("Opening project database...")
	db, err := database.NewDatabase()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	log.Printf("✓ Database connected: %s", db.GetConnectionInfo())

	// Step 2: Create dependency injection container
	log.Println("Initializing dependency injection container...")
	appContainer, err := container.NewContainer(db)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	log.Println("✓ Dependency injection container created with singleton services.")

	logger := appContainer.Logger
	logger.Startup().Info("Container initialization complete - switching to channeled logging")

	// Step 3: Ensure database schema
	schemaCtx, cancelSchema := context.WithTimeout(context.Background(), 30*time.Second)
	if err := appContainer.ProjectRepository.EnsureSchema(schemaCtx); err != nil {
		cancelSchema()
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	cancelSchema()
	logger.Startup().Info("Database schema verified")

	// Step 4: Start the progress broadcaster
	go appContainer.Broadcaster.Run()
	logger.Startup().Info("Progress broadcaster started")

	// Step 5: Start the performance tracker cleanup loop
	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				appContainer.PerfTracker.Cleanup()
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	// Step 6: Start HTTP server
	logger.Startup().Info("Starting HTTP server...")
	httpServer := server.New(config.Port, appContainer)

	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.System().Info("Starting HTTP server", "address", ":"+config.Port)
		if err := httpServer.Start(); err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
		}
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"port", config.Port)

	// Wait for shutdown signal
	<-gracefulShutdown
	logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")

	shutdownStart := time.Now()
	cancelCleanup()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Shutdown().Info("Stopping HTTP server...")
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	} else {
		logger.Shutdown().Info("HTTP server stopped successfully")
	}

	logger.Shutdown().Info("Closing database...")
	if err := db.Close(); err != nil {
		logger.Shutdown().Error("Error closing database", "error", err.Error())
	}

	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))

	return nil
}

// setupLogging configures application logging
func setupLogging() {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
}
