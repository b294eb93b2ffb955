package commands

import (
	"context"
	"time"

	"discord-invite-tracker/internal/cache"
	"discord-invite-tracker/internal/database"
	"discord-invite-tracker/internal/redis"
	"discord-invite-tracker/internal/services"
)

// Deps bundles what command bodies need. Redis and Perf may be nil.
type Deps struct {
	Invites         *services.InviteService
	Stats           *services.StatsService
	DB              *database.Database
	Redis           *redis.Client
	Cache           *cache.Cache
	Timezones       *services.Timezones
	LeaderboardSize int
	StartTime       time.Time
	Perf            PerfReporter
}

// commandTimeout bounds the ledger and REST work behind one command.
const commandTimeout = 10 * time.Second

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), commandTimeout)
}

func (d *Deps) boardSize() int {
	if d.LeaderboardSize <= 0 {
		return 10
	}
	return d.LeaderboardSize
}
