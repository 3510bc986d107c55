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
	"github.com/joho/godotenv"

	"github.com/shhirl/fixmybanana/config"
	"github.com/shhirl/fixmybanana/handler"
	"github.com/shhirl/fixmybanana/middleware"
	"github.com/shhirl/fixmybanana/pkg/logger"
	"github.com/shhirl/fixmybanana/service"
)

func main() {
	// A .env file is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load("config.yaml")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logLevel := cfg.Log.Level
	if cfg.Server.Dev {
		logLevel = "debug"
	}
	logger.Init(&logger.Config{
		Level:  logLevel,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded successfully")

	// Initialize services
	fileStore, err := service.NewFileStore(&cfg.Upload)
	if err != nil {
		slog.Error("failed to initialize file store", "error", err)
		os.Exit(1)
	}

	visionSvc := service.NewVisionService(&cfg.OpenAI)
	if cfg.OpenAI.APIKey == "" {
		slog.Warn("no OpenAI API key configured, uploads will resolve to error results")
	}

	uploadHandler := handler.NewUploadHandler(fileStore, visionSvc)

	// Setup Gin router
	if cfg.Server.Dev {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New() // Use New() instead of Default() to avoid default middleware

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.BodyLimit(cfg.Upload.MaxBodyBytes()))

	router.LoadHTMLGlob("templates/*.html")

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	router.GET("/", uploadHandler.Index)
	router.POST("/upload", uploadHandler.Upload)
	router.GET("/uploads/:filename", uploadHandler.ServeUpload)

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port, "upload_dir", fileStore.Dir())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited gracefully")
}
