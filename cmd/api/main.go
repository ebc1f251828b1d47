package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FilipeAphrody/sentinel-identity/internal/app"
	"github.com/FilipeAphrody/sentinel-identity/internal/config"
	delivery "github.com/FilipeAphrody/sentinel-identity/internal/delivery/http"
	"github.com/FilipeAphrody/sentinel-identity/internal/logging"
)

const version = "1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "sentinel-api",
		Short:         "Run the Sentinel Identity HTTP API",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// 1. Load Configuration (file, then SENTINEL_* environment)
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := logging.New(logging.Config{Level: cfg.Log.Level, File: cfg.Log.File})
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			return serve(cmd.Context(), cfg, logger)
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("SENTINEL_CONFIG"), "path to a YAML config file")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// 2. Initialize Infrastructure and Business Logic
	startCtx, cancelStart := context.WithTimeout(ctx, 30*time.Second)
	core, err := app.New(startCtx, cfg, logger)
	cancelStart()
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer core.Close() //nolint:errcheck

	e := newServer(cfg, core, logger)

	// 6. Start Server with Graceful Shutdown
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		logger.Info("starting sentinel identity server", zap.String("addr", addr), zap.String("version", version))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		logger.Error("shutting down the server due to error", zap.Error(err))
		return err
	case <-quit:
	}

	logger.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting")
	return nil
}

func newServer(cfg *config.Config, core *app.App, logger *zap.Logger) *echo.Echo {
	// 3. Setup Framework and Global Middlewares
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.Secure())

	// 4. Register Delivery Handlers (Routes)
	delivery.RegisterRoutes(e, delivery.Services{
		Auth:      core.Auth,
		TwoFactor: core.TwoFactor,
		Passwords: core.Passwords,
		Sessions:  core.Sessions,
		Audit:     core.Audit,
		Tokens:    core.Tokens,
		Logger:    logger,
	})

	// 5. Health Check and Metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"status":  "healthy",
			"version": version,
			"storage": cfg.Storage.Driver,
			"time":    time.Now().Format(time.RFC3339),
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return e
}
