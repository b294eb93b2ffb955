package database

import (
	"context"
	"database/sql"
	"discord-invite-tracker/internal/config"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

func (d Dialect) String() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

type Database struct {
	db               *sql.DB
	dialect          Dialect
	log              *zap.Logger
	locks            *keyedMutex
	PreparedPingStmt *sql.Stmt
	stmts            atomic.Pointer[PreparedStatements]
	cancelRefresher  context.CancelFunc
}

// Timestamps are unix milliseconds; day buckets are YYYY-MM-DD in the guild timezone.
const schema = `
CREATE TABLE IF NOT EXISTS invite_events (
    id TEXT PRIMARY KEY,
    guild_id TEXT NOT NULL,
    invited_id TEXT NOT NULL,
    inviter_id TEXT,
    code TEXT,
    created_at BIGINT NOT NULL,
    date_bucket TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS daily_tallies (
    guild_id TEXT NOT NULL,
    inviter_id TEXT NOT NULL,
    date_bucket TEXT NOT NULL,
    count BIGINT NOT NULL DEFAULT 0,
    first_invite_at BIGINT NOT NULL,
    PRIMARY KEY (guild_id, inviter_id, date_bucket)
);

CREATE TABLE IF NOT EXISTS guild_settings (
    guild_id TEXT PRIMARY KEY,
    prefix TEXT NOT NULL DEFAULT '!',
    timezone TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_invite_events_guild_inviter ON invite_events(guild_id, inviter_id);
CREATE INDEX IF NOT EXISTS idx_invite_events_guild_bucket ON invite_events(guild_id, date_bucket);
CREATE INDEX IF NOT EXISTS idx_daily_tallies_guild_bucket ON daily_tallies(guild_id, date_bucket);
`

// Open picks the backend named by cfg.Storage.Driver.
func Open(cfg *config.Config, log *zap.Logger) (*Database, error) {
	if cfg.Storage.Driver == "postgres" {
		return NewDatabase(cfg.Postgres, log)
	}
	return NewSQLite(cfg.Storage.SQLitePath, log)
}

func NewDatabase(cfg config.PostgresConfig, log *zap.Logger) (*Database, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(1 * time.Hour)

	return newDatabase(db, DialectPostgres, log)
}

// NewSQLite opens (and creates if needed) an embedded database file.
func NewSQLite(path string, log *zap.Logger) (*Database, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// single writer connection
	db.SetMaxOpenConns(1)

	return newDatabase(db, DialectSQLite, log)
}

func newDatabase(db *sql.DB, dialect Dialect, log *zap.Logger) (*Database, error) {
	if log == nil {
		log = zap.NewNop()
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	pingStmt, err := db.Prepare("SELECT 1")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare ping statement: %w", err)
	}

	d := &Database{
		db:               db,
		dialect:          dialect,
		log:              log.Named("ledger"),
		locks:            newKeyedMutex(),
		PreparedPingStmt: pingStmt,
	}

	if err := d.InitPreparedStatements(); err != nil {
		return nil, fmt.Errorf("failed to init prepared statements: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancelRefresher = cancel
	d.StartPreparedStatementRefresher(ctx)

	return d, nil
}

func (d *Database) Close() error {
	if d.cancelRefresher != nil {
		d.cancelRefresher()
	}
	if d.PreparedPingStmt != nil {
		d.PreparedPingStmt.Close()
	}
	d.ClosePreparedStatements()
	return d.db.Close()
}

func (d *Database) Ping() error {
	if d.PreparedPingStmt != nil {
		var result int
		return d.PreparedPingStmt.QueryRow().Scan(&result)
	}
	return d.db.Ping()
}

func (d *Database) Dialect() Dialect {
	return d.dialect
}

// rebind rewrites ? placeholders to $n for Postgres.
func (d *Database) rebind(query string) string {
	if d.dialect != DialectPostgres {
		return query
	}
	return Rebind(query)
}

func Rebind(query string) string {
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}
