package database

import (
	"context"
	"database/sql"
	"discord-invite-tracker/internal/metrics"
	"discord-invite-tracker/internal/models"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Record persists one join. Credited events also bump the (guild, inviter, day) tally
// in the same transaction, so the event log and tallies never diverge.
func (d *Database) Record(ctx context.Context, e models.InviteEvent) (models.InviteEvent, error) {
	start := time.Now()
	defer metrics.ObserveLedgerWrite(start)

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.DateBucket == "" {
		e.DateBucket = models.Bucket(e.Timestamp, time.UTC)
	}

	if e.Credited() {
		unlock := d.locks.Lock(e.GuildID + ":" + e.InviterID + ":" + e.DateBucket)
		defer unlock()
	}

	ts := e.Timestamp.UnixMilli()
	err := WithTx(ctx, d.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, d.rebind(`
			INSERT INTO invite_events (id, guild_id, invited_id, inviter_id, code, created_at, date_bucket)
			VALUES (?, ?, ?, ?, ?, ?, ?)`),
			e.ID, e.GuildID, e.InvitedID, nullString(e.InviterID), nullString(e.Code), ts, e.DateBucket)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}

		if !e.Credited() {
			return nil
		}

		_, err = tx.ExecContext(ctx, d.rebind(`
			INSERT INTO daily_tallies (guild_id, inviter_id, date_bucket, count, first_invite_at)
			VALUES (?, ?, ?, 1, ?)
			ON CONFLICT (guild_id, inviter_id, date_bucket) DO UPDATE SET
				count = daily_tallies.count + 1,
				first_invite_at = CASE
					WHEN excluded.first_invite_at < daily_tallies.first_invite_at THEN excluded.first_invite_at
					ELSE daily_tallies.first_invite_at
				END`),
			e.GuildID, e.InviterID, e.DateBucket, ts)
		if err != nil {
			return fmt.Errorf("upsert tally: %w", err)
		}
		return nil
	})
	if err != nil {
		d.log.Error("ledger write failed",
			zap.String("guild_id", e.GuildID),
			zap.String("invited_id", e.InvitedID),
			zap.Error(err))
		return e, fmt.Errorf("%w: %w", models.ErrStoreWrite, err)
	}

	return e, nil
}

// QueryLeaderboard ranks inviters by all-time total. limit <= 0 returns everyone.
func (d *Database) QueryLeaderboard(ctx context.Context, guildID string, limit int) ([]models.LeaderboardEntry, error) {
	return d.queryLeaderboard(ctx, guildID, "", "", limit)
}

// QueryLeaderboardRange ranks inviters by tallies whose bucket falls in [from, to].
func (d *Database) QueryLeaderboardRange(ctx context.Context, guildID, from, to string, limit int) ([]models.LeaderboardEntry, error) {
	return d.queryLeaderboard(ctx, guildID, from, to, limit)
}

// Ties on total go to whoever reached their first credited join earlier, then by user ID.
func (d *Database) queryLeaderboard(ctx context.Context, guildID, from, to string, limit int) ([]models.LeaderboardEntry, error) {
	query := `
		SELECT inviter_id, SUM(count) AS total, MIN(first_invite_at) AS first_at
		FROM daily_tallies
		WHERE guild_id = ?`
	args := []any{guildID}
	if from != "" {
		query += " AND date_bucket >= ? AND date_bucket <= ?"
		args = append(args, from, to)
	}
	query += `
		GROUP BY inviter_id
		HAVING SUM(count) > 0
		ORDER BY total DESC, first_at ASC, inviter_id ASC`
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.LeaderboardEntry
	for rows.Next() {
		var (
			entry   models.LeaderboardEntry
			firstAt int64
		)
		if err := rows.Scan(&entry.UserID, &entry.Total, &firstAt); err != nil {
			return nil, err
		}
		entry.Rank = len(entries) + 1
		entry.FirstInviteAt = time.UnixMilli(firstAt).UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// QueryRank returns userID's 1-based all-time position, or 0 if unranked.
func (d *Database) QueryRank(ctx context.Context, guildID, userID string) (int, error) {
	entries, err := d.QueryLeaderboard(ctx, guildID, 0)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if e.UserID == userID {
			return e.Rank, nil
		}
	}
	return 0, nil
}

// QueryDaily returns exactly seven DayCounts starting at weekStart's calendar day, zero-filled.
func (d *Database) QueryDaily(ctx context.Context, guildID, userID string, weekStart time.Time) ([]models.DayCount, error) {
	dates := models.WeekDates(weekStart)

	rows, err := d.db.QueryContext(ctx, d.rebind(`
		SELECT date_bucket, count FROM daily_tallies
		WHERE guild_id = ? AND inviter_id = ? AND date_bucket >= ? AND date_bucket <= ?`),
		guildID, userID, dates[0], dates[len(dates)-1])
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64, len(dates))
	for rows.Next() {
		var (
			bucket string
			count  int64
		)
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, err
		}
		counts[bucket] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	days := make([]models.DayCount, len(dates))
	for i, date := range dates {
		days[i] = models.DayCount{Date: date, Count: counts[date]}
	}
	return days, nil
}

// QueryGuildDaily sums all inviters per day over the seven days from weekStart.
func (d *Database) QueryGuildDaily(ctx context.Context, guildID string, weekStart time.Time) ([]models.DayCount, error) {
	dates := models.WeekDates(weekStart)

	rows, err := d.db.QueryContext(ctx, d.rebind(`
		SELECT date_bucket, SUM(count) FROM daily_tallies
		WHERE guild_id = ? AND date_bucket >= ? AND date_bucket <= ?
		GROUP BY date_bucket`),
		guildID, dates[0], dates[len(dates)-1])
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64, len(dates))
	for rows.Next() {
		var (
			bucket string
			count  int64
		)
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, err
		}
		counts[bucket] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	days := make([]models.DayCount, len(dates))
	for i, date := range dates {
		days[i] = models.DayCount{Date: date, Count: counts[date]}
	}
	return days, nil
}

// PurgeGuild drops every row for a guild the bot was removed from.
func (d *Database) PurgeGuild(ctx context.Context, guildID string) error {
	return WithTx(ctx, d.db, func(tx *sql.Tx) error {
		for _, q := range []string{
			"DELETE FROM invite_events WHERE guild_id = ?",
			"DELETE FROM daily_tallies WHERE guild_id = ?",
			"DELETE FROM guild_settings WHERE guild_id = ?",
		} {
			if _, err := tx.ExecContext(ctx, d.rebind(q), guildID); err != nil {
				return err
			}
		}
		return nil
	})
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
