package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/roomsync/internal/config"
	"github.com/MarcoPoloResearchLab/roomsync/internal/database"
	"github.com/MarcoPoloResearchLab/roomsync/internal/ids"
	"github.com/MarcoPoloResearchLab/roomsync/internal/logging"
	"github.com/MarcoPoloResearchLab/roomsync/internal/rooms"
	"github.com/MarcoPoloResearchLab/roomsync/internal/server"
)

const shutdownTimeout = 10 * time.Second

func newRelayCommand() *cobra.Command {
	relayCmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the room relay that stores shared rooms and snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(cmd.Context())
		},
	}

	defaults := config.NewViper()
	relayCmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	relayCmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	relayCmd.PersistentFlags().String("allowed-origins", defaults.GetString("cors.allowed_origins"), "Comma separated CORS origins, * for any")
	relayCmd.PersistentFlags().Int("history-limit", defaults.GetInt("history.limit"), "Maximum snapshots returned per room")

	bindFlag(relayCmd, "http.address", "http-address")
	bindFlag(relayCmd, "database.path", "database-path")
	bindFlag(relayCmd, "cors.allowed_origins", "allowed-origins")
	bindFlag(relayCmd, "history.limit", "history-limit")
	return relayCmd
}

func runRelay(ctx context.Context) error {
	relayConfig, err := config.LoadRelay(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(relayConfig.LogLevel, relayConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(relayConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	roomsService, err := rooms.NewService(rooms.ServiceConfig{
		Database:     db,
		Clock:        time.Now,
		IDProvider:   ids.NewUUIDProvider(),
		Logger:       logger,
		HistoryLimit: relayConfig.HistoryLimit,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		RoomsService:   roomsService,
		Realtime:       server.NewRealtimeDispatcher(),
		Logger:         logger,
		AllowedOrigins: relayConfig.AllowedOrigins,
	})
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Realtime streams are hijacked connections that Shutdown does not wait
	// for; they end when the base context is cancelled.
	httpServer := &http.Server{
		Addr:        relayConfig.HTTPAddress,
		Handler:     handler,
		BaseContext: func(net.Listener) context.Context { return signalCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("relay starting",
			zap.String("address", relayConfig.HTTPAddress),
			zap.Strings("allowed_origins", relayConfig.AllowedOrigins))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
