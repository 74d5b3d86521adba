package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fathima-sithara/realtime-chat/internal/api"
	"github.com/fathima-sithara/realtime-chat/internal/auth"
	"github.com/fathima-sithara/realtime-chat/internal/config"
	"github.com/fathima-sithara/realtime-chat/internal/hub"
	"github.com/fathima-sithara/realtime-chat/internal/kafka"
	"github.com/fathima-sithara/realtime-chat/internal/logger"
	"github.com/fathima-sithara/realtime-chat/internal/presence"
	"github.com/fathima-sithara/realtime-chat/internal/store"
	"github.com/fathima-sithara/realtime-chat/internal/ws"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zl, err := logger.New(cfg.App.Env != "production")
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := hub.New(zl)

	var st store.Store
	if cfg.Mongo.URI != "" {
		client, err := store.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			zl.Fatalw("mongo connect failed", "err", err)
		}
		defer func() {
			dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer dcancel()
			_ = client.Disconnect(dctx)
		}()
		st = store.NewMongoStore(client.Database(cfg.Mongo.DB))
	} else {
		zl.Warn("mongo uri not configured, messages will not survive restarts")
		st = store.NewMemoryStore()
	}

	var pres *presence.Store
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pctx, pcancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pctx).Err(); err != nil {
			pcancel()
			zl.Fatalw("redis ping failed", "err", err)
		}
		pcancel()
		defer func() { _ = rdb.Close() }()

		pres = presence.NewStore(rdb, cfg.Redis.Prefix, zl)
		bridge := presence.NewBridge(rdb, cfg.Redis.Prefix+":fanout", h, zl)
		h.SetPeerPublisher(bridge.Publish)
		go bridge.Run(ctx)
	}

	deps := ws.Deps{
		Hub:      h,
		Store:    st,
		Presence: pres,
		Log:      zl,
		Opts: ws.Options{
			HistoryLimit:    cfg.WS.HistoryLimit,
			SendBuffer:      cfg.WS.SendBuffer,
			MaxMessageSize:  cfg.WS.MaxMessageSizeBytes,
			ReadDeadline:    cfg.ReadDeadline,
			WriteDeadline:   cfg.WriteDeadline,
			PingInterval:    cfg.PingInterval,
			RateLimitPerSec: cfg.WS.RateLimitPerSec,
		},
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicMessageSent)
		defer func() { _ = kp.Close() }()
		deps.Events = kp
	}

	gw := ws.NewGateway(deps, auth.NewValidator(cfg.JWT.Secret))
	app := api.New(st, gw, pres, zl)

	errs := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.App.Port)
		zl.Infow("starting realtime chat service", "addr", addr)
		errs <- app.Listen(addr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errs:
		zl.Fatalw("server error", "err", err)
	case s := <-sig:
		zl.Infow("signal received", "signal", s.String())
	}

	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		zl.Warnw("shutdown", "err", err)
	}
	zl.Info("shut down")
}
