package main

import (
	"context"
	"flag"
	"log/slog"
	"time"

	"eventcart/internal/api"
	"eventcart/internal/cache"
	"eventcart/internal/config"
	"eventcart/internal/logger"
	"eventcart/internal/search"
	"eventcart/internal/service"
)

func main() {
	timeout := flag.Duration("timeout", 10*time.Minute, "Overall timeout for the reindex")
	flag.Parse()

	cfg := config.MustLoad()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	if cfg.StoreDriver == config.StoreMemory {
		logger.Fatal("Reindex needs the postgres store, the memory store is empty on start")
	}

	slog.Info("Starting events reindex", "index", cfg.Elasticsearch.Index)

	store, _, err := api.OpenStore(cfg)
	if err != nil {
		logger.Fatal("Failed to open store", "error", err)
	}
	defer store.Close()

	es, err := search.NewElasticsearchClient(cfg.Elasticsearch)
	if err != nil {
		logger.Fatal("Failed to connect to Elasticsearch", "error", err)
	}

	deps := service.Deps{Store: store, Index: es}
	// закешированные страницы поиска после переиндексации устарели
	if cfg.Cache.Enabled {
		vc, err := cache.NewValkeyClient(cfg.Cache)
		if err != nil {
			slog.Warn("Valkey unavailable, cached pages expire by TTL", "error", err)
		} else {
			defer vc.Close()
			deps.Cache = vc
		}
	}
	services := service.NewServices(deps)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	n, err := services.Events.Reindex(ctx)
	if err != nil {
		logger.Fatal("Reindex failed", "indexed", n, "error", err)
	}

	count, err := es.Count(ctx)
	if err != nil {
		slog.Warn("Failed to count indexed documents", "error", err)
	}

	elapsed := time.Since(start)
	slog.Info("Reindex completed",
		"events_indexed", n,
		"documents_in_index", count,
		"duration", elapsed.String(),
		"events_per_second", float64(n)/elapsed.Seconds())
}
