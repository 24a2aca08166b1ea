package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-b2b-orders/internal/config"
	"github.com/ariefcatur/go-b2b-orders/internal/httpx"
	"github.com/ariefcatur/go-b2b-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-b2b-orders/internal/kafka"
	"github.com/ariefcatur/go-b2b-orders/internal/logger"
	"github.com/ariefcatur/go-b2b-orders/internal/memstore"
	"github.com/ariefcatur/go-b2b-orders/internal/orders"
	"github.com/ariefcatur/go-b2b-orders/internal/postgres"
	"github.com/ariefcatur/go-b2b-orders/internal/redisx"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := orders.Deps{
		Logger:      log,
		Location:    cfg.Location,
		CodeRetries: cfg.OrderCodeRetries,
		Producer:    cfg.ServiceName,
	}
	if cfg.StockCheckPolicy == config.StockPolicyAny {
		deps.StockPolicy = orders.StockPolicyAnyLine
	}

	var prod *kafkax.Producer
	switch cfg.StorageDriver {
	case config.StorageMemory:
		st := memstore.New()
		if err := st.LoadFile(cfg.SeedFile); err != nil {
			log.Fatal("seed memory store", zap.Error(err))
		}
		deps.Store, deps.Members, deps.Buyers, deps.Items, deps.Baseline, deps.Costs = st, st, st, st, st, st
		log.Warn("using in-memory storage; data is lost on exit")

	default:
		// DB
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("db connect", zap.Error(err))
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatal("db migrate", zap.Error(err))
		}
		dir := &postgres.Directory{DB: db}
		deps.Store = &postgres.Store{DB: db}
		deps.Members, deps.Buyers, deps.Items, deps.Baseline, deps.Costs = dir, dir, dir, dir, dir

		// Redis
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		deps.Cache = &inventory.Cache{Redis: rdb, TTL: cfg.StockCacheTTL}

		// Kafka producer
		prod = kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
		prod.Start(ctx)
		deps.Events = &kafkax.EventWriter{Producer: prod}
	}

	svc, err := orders.NewService(deps)
	if err != nil {
		log.Fatal("order service", zap.Error(err))
	}

	router := httpx.NewRouter(log)
	(&httpx.OrdersHandler{Service: svc, Log: log}).Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("storage", cfg.StorageDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if prod != nil {
		prod.Close()
		prod.WaitClosed()
	}
	cancel()
}
