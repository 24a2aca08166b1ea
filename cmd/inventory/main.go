package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-b2b-orders/internal/config"
	"github.com/ariefcatur/go-b2b-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-b2b-orders/internal/kafka"
	"github.com/ariefcatur/go-b2b-orders/internal/logger"
	"github.com/ariefcatur/go-b2b-orders/internal/orders"
	"github.com/ariefcatur/go-b2b-orders/internal/postgres"
	"github.com/ariefcatur/go-b2b-orders/internal/redisx"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	service := cfg.ServiceName + "-inventory"
	log, err := logger.New(cfg.LogLevel, service)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.StorageDriver != config.StoragePostgres {
		log.Fatal("inventory worker needs postgres storage", zap.String("storage", cfg.StorageDriver))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	dir := &postgres.Directory{DB: db}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	report := orders.NewSaleReport(orders.SaleReportDeps{
		Store:    &postgres.Store{DB: db},
		Items:    dir,
		Baseline: dir,
		Costs:    dir,
		Cache:    &inventory.Cache{Redis: rdb, TTL: cfg.StockCacheTTL},
		Location: cfg.Location,
		Logger:   log,
	})
	svc := &inventory.Service{
		Stock:             report,
		Dedup:             &inventory.RedisDeduper{Redis: rdb, Service: service},
		LowStockThreshold: cfg.LowStockThreshold,
		Log:               log,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.InventoryGroup, orders.AllTopics, cfg.InventoryWorkers, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("inventory consumer started",
			zap.String("group", cfg.InventoryGroup),
			zap.Strings("topics", orders.AllTopics),
			zap.Int("workers", cfg.InventoryWorkers))
		return cons.Start(gctx, svc.HandleOrderEvent)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down consumer")
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("consumer exit", zap.Error(err))
	}
}
