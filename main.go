package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"discord-invite-tracker/internal/bot"
	"discord-invite-tracker/internal/cache"
	"discord-invite-tracker/internal/config"
	"discord-invite-tracker/internal/database"
	"discord-invite-tracker/internal/logger"
	"discord-invite-tracker/internal/redis"

	"go.uber.org/zap"
)

func main() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.json"
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Trade memory for fewer GC pauses; the working set is small.
	debug.SetGCPercent(200)

	log.Info("starting invite tracker",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("timezone", cfg.Timezone),
		zap.Bool("redis", cfg.Redis.Enabled))

	db, err := database.Open(cfg, log.Named("ledger"))
	if err != nil {
		log.Fatal("error initializing database", zap.Error(err))
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.New(cfg.Redis, log)
		if err != nil {
			// the tracker works without redis, it only loses the L2 cache and the snapshot mirror
			log.Warn("redis unavailable, continuing without it", zap.Error(err))
			rdb = nil
		}
	}

	c, err := cache.NewCache(rdb, cache.Config{
		L1MaxCost:     cfg.Cache.L1MaxCost,
		L1NumCounters: cfg.Cache.L1NumCounters,
		DefaultTTL:    cfg.CacheTTL(),
	})
	if err != nil {
		log.Fatal("error initializing cache", zap.Error(err))
	}

	b, err := bot.New(cfg, db, rdb, c, log)
	if err != nil {
		log.Fatal("error creating bot", zap.Error(err))
	}

	if err := b.Start(); err != nil {
		log.Fatal("bot stopped", zap.Error(err))
	}
}
