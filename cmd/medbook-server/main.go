package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medbook/medbook/internal/config"
	"github.com/medbook/medbook/internal/domain/appointment"
	"github.com/medbook/medbook/internal/platform/db"
	"github.com/medbook/medbook/internal/platform/events"
	"github.com/medbook/medbook/internal/platform/middleware"
	"github.com/medbook/medbook/internal/platform/websocket"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "medbook-server",
		Short: "Medical appointment booking API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the appointment API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := db.NewMigrator(pool).Apply(ctx)
			if err != nil {
				return err
			}
			logger.Info().Int("applied", applied).Msg("migrations complete")
			return nil
		},
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx := context.Background()

	var repo appointment.Repository
	if cfg.InMemory {
		logger.Warn().Msg("using in-memory store; data is lost on shutdown")
		repo = appointment.NewMemRepo(events.NewBus(logger))
	} else {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return err
		}
		defer pool.Close()

		applied, err := db.NewMigrator(pool).Apply(ctx)
		if err != nil {
			return err
		}
		if applied > 0 {
			logger.Info().Int("applied", applied).Msg("migrations applied")
		}
		repo = appointment.NewRepoPG(pool, events.NewBus(logger))
	}

	svc := appointment.NewService(repo, logger)

	// Real-time fan-out: a single subscriber on the service bus forwards
	// every domain event to all connected WebSocket clients.
	hub := websocket.NewHub(logger)
	notifier := websocket.NewNotifier(hub)
	if _, err := svc.Subscribe(notifier.HandleEvent); err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.Logger(logger))
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	root := e.Group("")
	appointment.NewHandler(svc, logger).RegisterRoutes(root)
	websocket.NewHandler(hub).RegisterRoutes(root)

	// The listener error returns through runServer so deferred cleanup
	// (the pool close above) still runs.
	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	if err := awaitShutdown(serverErr, quit); err != nil {
		return err
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// awaitShutdown blocks until the listener fails or a shutdown signal
// arrives. Only a listener failure is an error.
func awaitShutdown(serverErr <-chan error, quit <-chan os.Signal) error {
	select {
	case err := <-serverErr:
		return err
	case <-quit:
		return nil
	}
}
