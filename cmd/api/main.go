package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-hardware-checkout/internal/catalog"
	"github.com/ariefcatur/go-hardware-checkout/internal/checkout"
	"github.com/ariefcatur/go-hardware-checkout/internal/config"
	"github.com/ariefcatur/go-hardware-checkout/internal/events"
	"github.com/ariefcatur/go-hardware-checkout/internal/gateway"
	"github.com/ariefcatur/go-hardware-checkout/internal/httpx"
	kafkax "github.com/ariefcatur/go-hardware-checkout/internal/kafka"
	"github.com/ariefcatur/go-hardware-checkout/internal/logger"
	"github.com/ariefcatur/go-hardware-checkout/internal/orders"
	"github.com/ariefcatur/go-hardware-checkout/internal/postgres"
	"github.com/ariefcatur/go-hardware-checkout/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatal("db migrate", zap.Error(err))
	}
	if cfg.SeedSampleData {
		if err := postgres.Seed(ctx, db); err != nil {
			log.Fatal("db seed", zap.Error(err))
		}
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers
	lowStockProd := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicLowStock, 1024, log)
	lowStockProd.Start(ctx)
	finalizedProd := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicOrderFinalized, 1024, log)
	finalizedProd.Start(ctx)

	// Low-stock fan-out
	broadcaster := events.NewBroadcaster(cfg.SubscriberBuffer, log)
	relay := &events.Relay{Broadcaster: broadcaster, Sink: lowStockProd, Producer: cfg.ServiceName, Log: log}
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		relay.Run(ctx)
	}()

	// Checkout
	repo := checkout.NewPGRepository(db)
	statusCache := &orders.StatusCache{Redis: rdb, Store: repo.Store, Log: log}
	svc := &checkout.Service{
		Repo:              repo,
		Gateway:           gateway.NewWebpay(cfg.WebpayBaseURL, cfg.WebpayCommerceCode, cfg.WebpayAPIKey, cfg.GatewayTimeout),
		Alerts:            broadcaster,
		Events:            finalizedProd,
		Cache:             statusCache,
		Log:               log,
		ReturnURL:         cfg.ReturnURL(),
		LowStockThreshold: cfg.LowStockThreshold,
		GatewayTimeout:    cfg.GatewayTimeout,
		ServiceName:       cfg.ServiceName,
	}

	// Catalog
	conn, err := catalog.Dial(ctx, cfg.CatalogGRPCAddr)
	if err != nil {
		log.Fatal("catalog dial", zap.Error(err))
	}
	defer conn.Close()
	search := &catalog.CachedSearch{Next: &catalog.Repo{DB: db}, Redis: rdb, TTL: cfg.SearchCacheTTL, Log: log}

	router := httpx.NewRouter(log,
		&httpx.EventsHandler{Broadcaster: broadcaster, Keepalive: cfg.SSEKeepalive, Log: log},
		&httpx.OrdersHandler{Checkout: svc, Status: statusCache, Log: log},
		&httpx.ProductsHandler{Search: search, Catalog: catalog.NewClient(conn), Restock: rdb, Log: log},
	)

	// No WriteTimeout: the low-stock stream is long-lived.
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	// Closing the broadcaster ends open streams so Shutdown can finish.
	broadcaster.Close()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	cancel()
	<-relayDone
	lowStockProd.WaitClosed()
	finalizedProd.WaitClosed()
}
