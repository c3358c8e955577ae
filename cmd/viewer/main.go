package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/weiawesome/wes-io-live/viewer/internal/config"
	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
	"github.com/weiawesome/wes-io-live/viewer/internal/handler"
	pkglog "github.com/weiawesome/wes-io-live/viewer/pkg/log"
)

const serviceName = "viewer-session"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "viewer",
	Short:         "Live stream viewer session manager",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session controller behind the HTTP/WebSocket UI bridge",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the lookup and presence tables, then exit",
	RunE:  runMigrate,
}

var watchTarget struct {
	username  string
	streamID  int64
	profileID string
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Open one viewer session and print snapshots as JSON lines",
	RunE:  runWatch,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".", "directory containing config.yaml (./config is also searched)")
	watchCmd.Flags().StringVar(&watchTarget.username, "username", "", "broadcaster username")
	watchCmd.Flags().Int64Var(&watchTarget.streamID, "stream-id", 0, "live stream id")
	watchCmd.Flags().StringVar(&watchTarget.profileID, "profile-id", "", "broadcaster profile id")
	rootCmd.AddCommand(serveCmd, watchCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("viewer exited")
	}
}

func setup() (*config.Config, error) {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: serviceName,
	})
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	logger := pkglog.L()

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}

	wsHandler := handler.NewWSHandler(a.controller, handler.WSConfig{
		PingInterval:   cfg.Server.PingInterval,
		PongWait:       cfg.Server.PongWait,
		WriteWait:      cfg.Server.WriteWait,
		MaxMessageSize: cfg.Server.MaxMessageSize,
	})
	httpHandler := handler.NewHandler(a.controller, wsHandler)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Register routes
	httpHandler.RegisterRoutes(r)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("addr", addr).Msg("viewer-session listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for shutdown signal
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info().Msg("shutting down viewer-session")

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		// 1. stop accepting UI requests
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}

		// 2. end the session, then close feeds, cache and database
		a.shutdown(logger)
	}()

	select {
	case <-shutdownDone:
		logger.Info().Msg("viewer-session stopped")
	case <-time.After(30 * time.Second):
		logger.Warn().Msg("shutdown timed out after 30s")
	}
	return nil
}

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	_, sqlDB, err := openDatabase(cfg, pkglog.L())
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func runWatch(cmd *cobra.Command, _ []string) error {
	partial := domain.PartialIdentity{Username: watchTarget.username, ProfileID: watchTarget.profileID}
	if watchTarget.streamID != 0 {
		partial.LiveStreamID = domain.Int64Ptr(watchTarget.streamID)
	}
	if partial.Empty() {
		return errors.New("one of --username, --stream-id or --profile-id is required")
	}

	cfg, err := setup()
	if err != nil {
		return err
	}
	logger := pkglog.L()

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.shutdown(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snapshots := a.controller.Watch(ctx)
	if _, err := a.controller.Open(ctx, partial); err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	for snap := range snapshots {
		if snap.SessionID == "" {
			continue
		}
		if err := enc.Encode(snap); err != nil {
			return err
		}
		if snap.State.Terminal() {
			if snap.Error != nil {
				return fmt.Errorf("%s: %s", snap.Error.Code, snap.Error.Message)
			}
			return nil
		}
	}
	return nil
}
