// Package server wires the remote store together: configuration, storage
// backend, services and the gRPC endpoint.
package server

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/dmitrijs2005/mywarranties/internal/logging"
	"github.com/dmitrijs2005/mywarranties/internal/server/config"
	"github.com/dmitrijs2005/mywarranties/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/mywarranties/internal/server/services"

	gs "github.com/dmitrijs2005/mywarranties/internal/server/grpc"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	repomanager repomanager.RepositoryManager
	server      *gs.GRPCServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	rm, err := repomanager.New(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if c.DatabaseDSN == "" {
		logger.Warn(ctx, "no database dsn configured, records are kept in memory")
	}

	hub := services.NewHub()
	ss := services.NewSyncService(rm, hub, c.PageSize, logger.With("module", "sync_service"))
	rs := services.NewReceiptService(c)
	ts := services.NewTokenService(c)

	srv := gs.NewGRPCServer(c.EndpointAddrGRPC, logger, ss, rs, hub, ts)

	return &App{config: c, logger: logger, repomanager: rm, server: srv}, nil
}

// Run serves until ctx is done, then releases the storage backend.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	var (
		wg     sync.WaitGroup
		runErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.server.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			runErr = err
			cancelFunc()
		}
	}()

	wg.Wait()

	if err := app.repomanager.Close(); err != nil {
		app.logger.Error(ctx, "closing storage", "error", err)
	}
	app.logger.Info(ctx, "Stopped")
	return runErr
}

// IssueToken signs an access token for ownerID without opening storage.
func IssueToken(c *config.Config, ownerID string) (string, error) {
	return services.NewTokenService(c).Issue(ownerID)
}
