package database

import (
	"context"
	"discord-invite-tracker/internal/models"
	"time"
)

func (d *Database) GetGuildPrefix(ctx context.Context, guildID string) (string, error) {
	s, err := d.GetGuildSettings(ctx, guildID)
	if err != nil {
		return "!", err
	}
	return s.Prefix, nil
}

func (d *Database) SetGuildPrefix(ctx context.Context, guildID, prefix string) error {
	query := `
		INSERT INTO guild_settings (guild_id, prefix) VALUES (?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET prefix = excluded.prefix
	`
	_, err := d.db.ExecContext(ctx, d.rebind(query), guildID, prefix)
	return err
}

// SetGuildTimezone stores an IANA zone name; an empty name resets to the configured default.
func (d *Database) SetGuildTimezone(ctx context.Context, guildID, tz string) error {
	if tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return models.ErrInvalidTimezone
		}
	}
	query := `
		INSERT INTO guild_settings (guild_id, timezone) VALUES (?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET timezone = excluded.timezone
	`
	_, err := d.db.ExecContext(ctx, d.rebind(query), guildID, tz)
	return err
}
