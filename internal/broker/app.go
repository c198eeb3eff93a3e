package broker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/docbroker/internal/broker/channel"
	"github.com/dmitrijs2005/docbroker/internal/broker/config"
	"github.com/dmitrijs2005/docbroker/internal/broker/shared/db"
	"github.com/dmitrijs2005/docbroker/internal/logging"
	"github.com/dmitrijs2005/docbroker/internal/storage"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	repos   db.RepositoryManager
	manager *Manager
	server  *channel.GRPCServer
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	store, err := newStorageBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	repos, err := newRepositoryManager(cfg)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := repos.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	manager := NewManager(ManagerOptions{
		Store:              store,
		Attempts:           repos.Attempts(),
		Logger:             logger,
		LimitStoreFailures: cfg.LimitStoreFailures,
		AlwaysSaveOnExit:   cfg.AlwaysSaveOnExit,
	})

	server := channel.NewGRPCServer(cfg.EndpointAddrGRPC, logger, manager)
	manager.SetNotifier(server)

	return &App{
		config:  cfg,
		logger:  logger,
		repos:   repos,
		manager: manager,
		server:  server,
	}, nil
}

func newStorageBackend(ctx context.Context, cfg *config.Config) (storage.Client, error) {
	switch cfg.StorageBackend {
	case "memory":
		return storage.NewMemoryClient(), nil
	case "s3":
		return storage.NewS3Client(ctx, storage.S3Config{
			RootUser:     cfg.S3RootUser,
			RootPassword: cfg.S3RootPassword,
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func newRepositoryManager(cfg *config.Config) (db.RepositoryManager, error) {
	if cfg.DatabaseDSN == "" {
		return db.NewInMemoryRepositoryManager(), nil
	}
	return db.NewPostgresRepositoryManager(cfg.DatabaseDSN)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startChannelServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startChannelServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.shutdown()
}

// shutdown drains open documents within the configured grace period and
// releases the audit store.
func (app *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), app.config.ShutdownTimeout)
	defer cancel()

	if err := app.manager.Close(ctx); err != nil {
		app.logger.Error(ctx, "Shutdown drain failed", "error", err.Error())
	}
	if err := app.repos.Close(); err != nil {
		app.logger.Error(ctx, "Closing repositories failed", "error", err.Error())
	}
}
