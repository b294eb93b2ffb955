package services

import (
	"context"
	"time"

	"discord-invite-tracker/internal/models"

	"go.uber.org/zap"
)

type SettingsReader interface {
	GetGuildSettings(ctx context.Context, guildID string) (models.GuildSettings, error)
}

// Timezones resolves the location used for day buckets: the guild's own setting,
// otherwise the configured default.
type Timezones struct {
	settings SettingsReader
	fallback *time.Location
	log      *zap.Logger
}

func NewTimezones(settings SettingsReader, fallback *time.Location, log *zap.Logger) *Timezones {
	if fallback == nil {
		fallback = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Timezones{settings: settings, fallback: fallback, log: log}
}

func (z *Timezones) Location(ctx context.Context, guildID string) *time.Location {
	if z == nil {
		return time.UTC
	}
	if z.settings == nil {
		return z.fallback
	}

	s, err := z.settings.GetGuildSettings(ctx, guildID)
	if err != nil {
		z.log.Warn("guild settings lookup failed", zap.String("guild_id", guildID), zap.Error(err))
		return z.fallback
	}
	if s.Timezone == "" {
		return z.fallback
	}

	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return z.fallback
	}
	return loc
}

func (z *Timezones) Default() *time.Location {
	if z == nil {
		return time.UTC
	}
	return z.fallback
}
