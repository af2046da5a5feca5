package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-hardware-checkout/internal/catalog"
	"github.com/ariefcatur/go-hardware-checkout/internal/config"
	"github.com/ariefcatur/go-hardware-checkout/internal/logger"
	"github.com/ariefcatur/go-hardware-checkout/internal/postgres"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/grpc"
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

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatal("db migrate", zap.Error(err))
	}

	_, port, err := net.SplitHostPort(cfg.CatalogGRPCAddr)
	if err != nil {
		log.Fatal("catalog addr", zap.String("addr", cfg.CatalogGRPCAddr), zap.Error(err))
	}
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		log.Fatal("listen", zap.Error(err))
	}

	srv := grpc.NewServer()
	catalog.RegisterProductServiceServer(srv, &catalog.Server{DB: db, Log: log})

	go func() {
		log.Info("catalog grpc listening", zap.String("addr", lis.Addr().String()))
		if err := srv.Serve(lis); err != nil {
			log.Error("grpc serve", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down")
	srv.GracefulStop()
}
