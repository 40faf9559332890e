package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/example/portfolio-ledger/internal/adapter/in_memory"
	kafkafeed "github.com/example/portfolio-ledger/internal/adapter/kafka"
	"github.com/example/portfolio-ledger/internal/adapter/pg"
	redisfeed "github.com/example/portfolio-ledger/internal/adapter/redis"
	httpserver "github.com/example/portfolio-ledger/internal/api/http"
	"github.com/example/portfolio-ledger/internal/config"
	"github.com/example/portfolio-ledger/internal/core"
	"github.com/example/portfolio-ledger/internal/port"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store port.Ledger
	if cfg.DatabaseURL != "" {
		pgStore, err := pg.NewPgLedger(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("ledger store", zap.Error(err))
		}
		defer pgStore.Close(ctx)
		store = pgStore
	} else {
		logger.Warn("no DATABASE_URL set, using in-memory ledger")
		store = in_memory.NewLedger()
	}

	var feed port.MarketFeed
	switch {
	case cfg.KafkaBrokers != "":
		kf := kafkafeed.NewFeed(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, logger)
		go func() {
			if err := kf.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("kafka feed", zap.Error(err))
				cancel()
			}
		}()
		feed = kf
	case cfg.RedisAddr != "":
		rf := redisfeed.NewRedisFeed(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rf.Close()
		feed = rf
	default:
		logger.Warn("no market feed configured, prices will be empty")
		feed = in_memory.NewFeed()
	}

	ctrl := core.NewController(store, feed, logger)
	go func() {
		if err := ctrl.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("controller", zap.Error(err))
			cancel()
		}
	}()

	s, err := httpserver.NewHTTPServer(ctrl, logger, cfg.ViewCacheTTL)
	if err != nil {
		logger.Fatal("http server", zap.Error(err))
	}

	server := &http.Server{Addr: ":" + cfg.Port, Handler: s.Router()}
	go func() {
		logger.Info("http listening", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http", zap.Error(err))
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	ctxShut, cancelShut := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShut()
	_ = server.Shutdown(ctxShut)
	logger.Info("shutdown complete")
}
