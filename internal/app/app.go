package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/access"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/clock"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/config"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/exhibition"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/httpapi"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/notify"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/obs"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/payment"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/presence"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/session"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/storage"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/internal/websocket"
	"github.com/DBPB2006/virtual-exhibition-platform-sub000/pkg/messaging"

	"github.com/bwmarrin/snowflake"
)

const serviceName = "exhibit-service"

type App struct {
	cfg          config.Config
	logger       *slog.Logger
	store        *storage.Store
	orchestrator *payment.Orchestrator
	hub          *websocket.Hub
	publisher    messaging.Publisher
	outbox       *messaging.OutboxDispatcher
	httpSrv      *http.Server
	shutdownOTel obs.ShutdownFunc
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	shutdownOTel, err := obs.InitTracer(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return nil, err
	}

	store, err := storage.New(ctx, cfg.DatabaseURL, storage.Options{AppName: serviceName, MaxConns: cfg.DatabaseMaxConns})
	if err != nil {
		_ = shutdownOTel(ctx)
		return nil, err
	}

	publisher, err := messaging.NewRabbitPublisher(cfg.RabbitURL, cfg.NotificationsExchange)
	if err != nil {
		store.Close()
		_ = shutdownOTel(ctx)
		return nil, err
	}

	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		publisher.Close()
		store.Close()
		_ = shutdownOTel(ctx)
		return nil, fmt.Errorf("snowflake node: %w", err)
	}

	clk := clock.NewSystem()
	exhibitions := exhibition.NewStore(store.Pool())
	ledger := storage.NewLedger(store.Pool())
	resolver := access.NewResolver(ledger, clk)
	tokens := session.NewTokens([]byte(cfg.SessionSecret), cfg.SessionCookie)

	gateway, err := newGateway(cfg, logger)
	if err != nil {
		publisher.Close()
		store.Close()
		_ = shutdownOTel(ctx)
		return nil, err
	}

	orchestrator := payment.NewOrchestrator(
		ledger,
		exhibitions,
		resolver,
		gateway,
		notify.NewOutboxNotifier(store.Pool()),
		clk,
		logger,
		payment.Options{
			Secret:   []byte(cfg.PaymentKeySecret),
			Currency: cfg.PaymentCurrency,
		},
	)

	registry := presence.NewRegistry()
	hub := websocket.NewHub(registry, node, clk, logger)
	wsHandler := websocket.NewHandler(hub, registry, exhibitions, resolver, tokens, cfg.AllowedOrigins, logger)

	api := httpapi.NewServer(httpapi.Deps{
		Exhibitions: exhibitions,
		Access:      resolver,
		Payments:    orchestrator,
		Auth:        tokens,
		Presence:    registry,
		DB:          store,
		Logger:      logger,
	})
	api.HandleFunc("GET /ws", wsHandler.ServeWS)

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.WithRequestID(httpapi.RequestLogger(logger, httpapi.CORS(cfg.AllowedOrigins, api))),
		ReadHeaderTimeout: 10 * time.Second,
	}

	outbox := messaging.NewOutboxDispatcher(store.Pool(), publisher, "notification_outbox", cfg.OutboxInterval, cfg.OutboxBatchSize, logger)

	return &App{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		orchestrator: orchestrator,
		hub:          hub,
		publisher:    publisher,
		outbox:       outbox,
		httpSrv:      httpSrv,
		shutdownOTel: shutdownOTel,
	}, nil
}

// newGateway returns the mock-only gateway unless Omise credentials are set.
func newGateway(cfg config.Config, logger *slog.Logger) (payment.Gateway, error) {
	if !cfg.OmiseConfigured() {
		logger.Warn("omise credentials not configured, purchases use the mock gateway")
		return payment.NewFallbackGateway(nil, logger), nil
	}
	omise, err := payment.NewOmiseGateway(cfg.OmisePublicKey, cfg.OmiseSecretKey, cfg.OmiseSourceType)
	if err != nil {
		return nil, err
	}
	return payment.NewFallbackGateway(omise, logger), nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)

	a.outbox.Start(ctx)

	go a.hub.Run(ctx)

	go func() {
		a.logger.Info("exhibit http server listening", "addr", a.cfg.HTTPAddr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (a *App) Close(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", "err", err)
	}
	// pending notification handoffs still need the database
	a.orchestrator.Wait()
	a.publisher.Close()
	a.store.Close()
	if err := a.shutdownOTel(shutdownCtx); err != nil {
		a.logger.Warn("tracer shutdown", "err", err)
	}
}

func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := obs.NewLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer app.Close(ctx)

	return app.Run(ctx)
}
