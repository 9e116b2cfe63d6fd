package notifyworker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/config"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/notify"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/obs"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/storage"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/pkg/contracts"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/pkg/messaging"
)

const serviceName = "notification-worker"

type App struct {
	cfg          config.WorkerConfig
	logger       *slog.Logger
	store        *storage.Store
	consumer     *messaging.Consumer
	worker       *notify.Worker
	shutdownOTel obs.ShutdownFunc
}

func New(ctx context.Context, cfg config.WorkerConfig, logger *slog.Logger) (*App, error) {
	shutdownOTel, err := obs.InitTracer(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return nil, err
	}

	store, err := storage.New(ctx, cfg.DatabaseURL, storage.Options{AppName: serviceName, MaxConns: cfg.DatabaseMaxConns})
	if err != nil {
		_ = shutdownOTel(ctx)
		return nil, err
	}

	consumer, err := messaging.NewRabbitConsumer(
		cfg.RabbitURL,
		cfg.NotificationsExchange,
		cfg.NotificationsQueue,
		[]string{contracts.EventNotificationRequested},
		logger,
	)
	if err != nil {
		store.Close()
		_ = shutdownOTel(ctx)
		return nil, err
	}

	worker := notify.NewWorker(notify.NewPgInbox(store.Pool()), notify.NewLogDeliverer(logger), logger)

	return &App{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		consumer:     consumer,
		worker:       worker,
		shutdownOTel: shutdownOTel,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Info("notification worker consuming", "queue", a.cfg.NotificationsQueue)
	return a.consumer.Start(ctx, a.worker.HandleDelivery)
}

func (a *App) Close(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownGracePeriod)
	defer cancel()

	a.consumer.Close()
	a.store.Close()
	if err := a.shutdownOTel(shutdownCtx); err != nil {
		a.logger.Warn("tracer shutdown", "err", err)
	}
}

func Run() error {
	cfg, err := config.LoadWorker()
	if err != nil {
		return err
	}
	logger := obs.NewLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init worker: %w", err)
	}
	defer app.Close(ctx)

	return app.Run(ctx)
}
