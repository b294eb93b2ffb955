package database

import (
	"context"
	"database/sql"
	"discord-invite-tracker/internal/models"
	"fmt"
	"strings"
	"sync"
	"time"
)

// PreparedStatements holds the hot read paths: per-join stat lookups and the settings row.
type PreparedStatements struct {
	mu sync.RWMutex

	getTotal      *sql.Stmt
	getDayCount   *sql.Stmt
	getUncredited *sql.Stmt
	getSettings   *sql.Stmt
}

const (
	totalQuery = `
		SELECT COALESCE(SUM(count), 0) FROM daily_tallies
		WHERE guild_id = ? AND inviter_id = ?`
	dayCountQuery = `
		SELECT count FROM daily_tallies
		WHERE guild_id = ? AND inviter_id = ? AND date_bucket = ?`
	uncreditedQuery = `
		SELECT COUNT(*) FROM invite_events
		WHERE guild_id = ? AND (inviter_id IS NULL OR inviter_id = '')`
	settingsQuery = `
		SELECT prefix, timezone FROM guild_settings WHERE guild_id = ?`
)

// InitPreparedStatements compiles the read statements for the active dialect.
func (d *Database) InitPreparedStatements() error {
	ps := &PreparedStatements{}

	prepare := func(name, query string) (*sql.Stmt, error) {
		stmt, err := d.db.Prepare(d.rebind(query))
		if err != nil {
			return nil, fmt.Errorf("failed to prepare %s: %w", name, err)
		}
		return stmt, nil
	}

	var err error
	if ps.getTotal, err = prepare("getTotal", totalQuery); err != nil {
		return err
	}
	if ps.getDayCount, err = prepare("getDayCount", dayCountQuery); err != nil {
		return err
	}
	if ps.getUncredited, err = prepare("getUncredited", uncreditedQuery); err != nil {
		return err
	}
	if ps.getSettings, err = prepare("getSettings", settingsQuery); err != nil {
		return err
	}

	d.stmts.Store(ps)
	return nil
}

// StartPreparedStatementRefresher re-prepares statements after the DB comes back from a restart.
func (d *Database) StartPreparedStatementRefresher(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := d.db.PingContext(ctx); err != nil {
					d.log.Warn("database ping failed, re-preparing statements")
					d.ClosePreparedStatements()
					if err := d.InitPreparedStatements(); err != nil {
						d.log.Warn("re-prepare failed")
					}
				}
			}
		}
	}()
}

func (d *Database) ClosePreparedStatements() {
	ps := d.stmts.Load()
	if ps == nil {
		return
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	for _, stmt := range []*sql.Stmt{ps.getTotal, ps.getDayCount, ps.getUncredited, ps.getSettings} {
		if stmt != nil {
			stmt.Close()
		}
	}
	ps.getTotal, ps.getDayCount, ps.getUncredited, ps.getSettings = nil, nil, nil, nil
}

func isBadPreparedStatement(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "cached plan") ||
		strings.Contains(errStr, "closed the connection") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "bad connection") ||
		strings.Contains(errStr, "statement is closed")
}

// stmt returns the prepared statement picked by sel, or nil if statements are not ready.
func (d *Database) stmt(sel func(*PreparedStatements) *sql.Stmt) *sql.Stmt {
	ps := d.stmts.Load()
	if ps == nil {
		return nil
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return sel(ps)
}

// queryRow runs the prepared statement when available and falls back to an ad hoc query.
// A stale statement is re-prepared and the query retried once.
func (d *Database) queryRow(ctx context.Context, sel func(*PreparedStatements) *sql.Stmt, query string, dest []any, args ...any) error {
	if s := d.stmt(sel); s != nil {
		err := s.QueryRowContext(ctx, args...).Scan(dest...)
		if !isBadPreparedStatement(err) {
			return err
		}
		d.ClosePreparedStatements()
		_ = d.InitPreparedStatements()
	}
	return d.db.QueryRowContext(ctx, d.rebind(query), args...).Scan(dest...)
}

// QueryTotal sums every tally of userID in guildID.
func (d *Database) QueryTotal(ctx context.Context, guildID, userID string) (int64, error) {
	var total int64
	err := d.queryRow(ctx, func(ps *PreparedStatements) *sql.Stmt { return ps.getTotal },
		totalQuery, []any{&total}, guildID, userID)
	return total, err
}

// QueryDayCount returns the tally for one day bucket, zero when absent.
func (d *Database) QueryDayCount(ctx context.Context, guildID, userID, bucket string) (int64, error) {
	var count int64
	err := d.queryRow(ctx, func(ps *PreparedStatements) *sql.Stmt { return ps.getDayCount },
		dayCountQuery, []any{&count}, guildID, userID, bucket)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return count, err
}

// CountUncredited counts joins in guildID that could not be attributed.
func (d *Database) CountUncredited(ctx context.Context, guildID string) (int64, error) {
	var n int64
	err := d.queryRow(ctx, func(ps *PreparedStatements) *sql.Stmt { return ps.getUncredited },
		uncreditedQuery, []any{&n}, guildID)
	return n, err
}

// GetGuildSettings returns the stored settings, or defaults when the guild has none.
func (d *Database) GetGuildSettings(ctx context.Context, guildID string) (models.GuildSettings, error) {
	s := models.GuildSettings{GuildID: guildID, Prefix: "!"}
	err := d.queryRow(ctx, func(ps *PreparedStatements) *sql.Stmt { return ps.getSettings },
		settingsQuery, []any{&s.Prefix, &s.Timezone}, guildID)
	if err == sql.ErrNoRows {
		return s, nil
	}
	return s, err
}
