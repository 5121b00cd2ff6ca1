package main

import (
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"hokmd/internal/config"
	"hokmd/internal/handlers"
	"hokmd/internal/hub"
	"hokmd/internal/store"
)

// SetupServer wires the full stack from configuration: store client, hub,
// handlers, and router. The returned hub must be shut down before the HTTP
// server so rooms can drain and persist.
func SetupServer(cfg *config.ServerConfig, logger *slog.Logger) (http.Handler, *hub.Hub) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Server.StoreEndpoint,
		Password: cfg.Server.StorePassword,
	})

	st := store.New(client, store.Options{
		RoomTTL:           cfg.Server.RoomTTL(),
		SessionTTL:        cfg.Server.SessionTTL(),
		HeartbeatInterval: cfg.Server.HeartbeatInterval(),
		Logger:            logger,
	})

	h := hub.New(st, hub.Settings{
		TurnTimeout:    cfg.Server.TurnTimeout(),
		ReconnectGrace: cfg.Server.ReconnectGrace(),
		QueueCapacity:  cfg.Server.RoomQueueCapacity,
	}, logger)

	handler := handlers.New(h, st, logger)
	router := handlers.SetupRouter(handler, cfg, nil)

	return router, h
}
