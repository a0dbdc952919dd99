package main

import (
	"log"
	"time"

	"chatrelay/internal/delivery"
	"chatrelay/internal/registry"
	"chatrelay/internal/server"
	"chatrelay/internal/session"
	"chatrelay/internal/storage"

	"github.com/caarlos0/env/v6"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("zap.NewDevelopment: %v", err)
	}
	defer logger.Sync()

	sugar := logger.Sugar()
	sugar.Info("Application is starting")

	httpCfg := server.EnvConfig{}
	if err := env.Parse(&httpCfg); err != nil {
		sugar.Fatalf("Cannot parse http env config: %v", err)
	}

	storeCfg := storage.Config{}
	if err := env.Parse(&storeCfg); err != nil {
		sugar.Fatalf("Cannot parse storage env config: %v", err)
	}

	sessionCfg := session.Config{}
	if err := env.Parse(&sessionCfg); err != nil {
		sugar.Fatalf("Cannot parse session env config: %v", err)
	}

	store, err := storage.NewStore(sugar, storeCfg, storage.ConnectionTimeout(30*time.Second))
	if err != nil {
		sugar.Fatalf("Cannot create Store instance: %v", err)
	}

	sessions := session.NewStore(sugar, sessionCfg, 24*time.Hour)
	channels := registry.New(sugar)
	svc := delivery.NewService(sugar, store, channels)

	srv, err := server.NewServer(
		logger,
		sessions,
		svc,
		store,
		channels,
		server.WithEnvConfig(httpCfg),
		server.ReadTimeout(5*time.Second),
	)
	if err != nil {
		sugar.Fatalf("Cannot create Server instance: %v", err)
	}

	srv.RegisterOnShutdown(func() {
		sugar.Info("Closing store")
		store.Close()
		sugar.Info("Store is closed")

		if err := sessions.Close(); err != nil {
			sugar.Errorf("Closing session store: %v", err)
		}
	})

	if err := srv.Start(); err != nil {
		sugar.Fatalf("Cannot start http srv: %v", err)
	}
}
