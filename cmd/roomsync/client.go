package main

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/roomsync/internal/apps"
	"github.com/MarcoPoloResearchLab/roomsync/internal/collab"
	"github.com/MarcoPoloResearchLab/roomsync/internal/config"
	"github.com/MarcoPoloResearchLab/roomsync/internal/database"
	"github.com/MarcoPoloResearchLab/roomsync/internal/ids"
	"github.com/MarcoPoloResearchLab/roomsync/internal/localstore"
	"github.com/MarcoPoloResearchLab/roomsync/internal/logging"
	"github.com/MarcoPoloResearchLab/roomsync/internal/relayclient"
)

// clientRuntime is one app session over the local SQLite store, joined to a
// relay room when a relay URL is configured.
type clientRuntime struct {
	config  config.ClientConfig
	logger  *zap.Logger
	store   localstore.Store
	session apps.Session
	closeDB func() error
}

// openClient loads the configured app. When join is set and a relay is
// configured the room is joined; a failed join leaves the session local-only.
func openClient(ctx context.Context, join bool) (*clientRuntime, error) {
	clientConfig, err := config.LoadClient(viper.GetViper())
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(clientConfig.LogLevel, clientConfig.LogFormat)
	if err != nil {
		return nil, err
	}

	db, err := database.OpenLocalSQLite(clientConfig.LocalPath, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	store, err := localstore.NewSQLiteStore(db, time.Now)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	options := collab.Options{
		Clock:      clockwork.NewRealClock(),
		Logger:     logger,
		IDProvider: ids.NewUUIDProvider(),
		OnStatus: func(message string) {
			logger.Info("status", zap.String("app", clientConfig.App), zap.String("message", message))
		},
		RequestTimeout: clientConfig.SyncTimeout,
	}
	if join && clientConfig.RelayURL != "" {
		namespace, err := apps.Namespace(clientConfig.App)
		if err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		remote, err := relayclient.New(relayclient.Config{
			BaseURL:   clientConfig.RelayURL,
			Namespace: namespace,
			Logger:    logger,
		})
		if err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		options.Remote = remote
	}

	session, err := apps.Open(clientConfig.App, store, options, time.Now)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	runtime := &clientRuntime{
		config:  clientConfig,
		logger:  logger,
		store:   store,
		session: session,
		closeDB: sqlDB.Close,
	}
	// The subscription lives as long as ctx; each join request is bounded by
	// RequestTimeout inside Connect.
	if options.Remote != nil {
		if err := session.Connect(ctx, clientConfig.Room); err != nil {
			logger.Warn("continuing local-only", zap.String("room", clientConfig.Room), zap.Error(err))
		}
	}
	return runtime, nil
}

// Close flushes a pending upload before releasing the local database.
func (r *clientRuntime) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.SyncTimeout)
	defer cancel()
	flushErr := r.session.Close(ctx)
	closeErr := r.closeDB()
	_ = r.logger.Sync()
	return errors.Join(flushErr, closeErr)
}

func (r *clientRuntime) mode() string {
	if r.session.Connected() {
		return "room " + r.session.Room()
	}
	return "local-only"
}
