package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Token       string            `json:"token" yaml:"token"`
	Storage     StorageConfig     `json:"storage" yaml:"storage"`
	Postgres    PostgresConfig    `json:"postgres" yaml:"postgres"`
	Redis       RedisConfig       `json:"redis" yaml:"redis"`
	Cache       CacheConfig       `json:"cache" yaml:"cache"`
	Timezone    string            `json:"timezone" yaml:"timezone"`
	Leaderboard LeaderboardConfig `json:"leaderboard" yaml:"leaderboard"`
	Attribution AttributionConfig `json:"attribution" yaml:"attribution"`
	Log         LogConfig         `json:"log" yaml:"log"`
	HTTP        HTTPConfig        `json:"http" yaml:"http"`
}

type StorageConfig struct {
	Driver     string `json:"driver" yaml:"driver"` // "postgres" or "sqlite"
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path"`
	// PurgeOnLeave deletes a guild's ledger rows when the bot is removed from it.
	PurgeOnLeave bool `json:"purge_on_leave" yaml:"purge_on_leave"`
}

type PostgresConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	Database string `json:"database" yaml:"database"`
	SSLMode  string `json:"sslmode" yaml:"sslmode"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Network  string `json:"network" yaml:"network"` // "tcp" or "unix"
}

type CacheConfig struct {
	L1MaxCost     int64 `json:"l1_max_cost" yaml:"l1_max_cost"`
	L1NumCounters int64 `json:"l1_num_counters" yaml:"l1_num_counters"`
	TTLSeconds    int   `json:"ttl_seconds" yaml:"ttl_seconds"`
}

type LeaderboardConfig struct {
	ChannelID string `json:"channel_id" yaml:"channel_id"`
	Time      string `json:"time" yaml:"time"` // HH:MM, 24-hour
	Size      int    `json:"size" yaml:"size"`
}

type AttributionConfig struct {
	CreditVanishedSingleUse bool `json:"credit_vanished_single_use" yaml:"credit_vanished_single_use"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // "json" or "console"
}

type HTTPConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// Load reads path (JSON or YAML by extension), then .env and environment overrides.
// A missing file is not an error when the environment supplies the token.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decode(path, raw, cfg); err != nil {
				return nil, err
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	// .env is optional
	_ = godotenv.Load()
	applyEnv(cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, raw []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(raw, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("DISCORD_BOT_TOKEN"); ok && v != "" {
		cfg.Token = v
	}
	if v, ok := os.LookupEnv("LEADERBOARD_CHANNEL_ID"); ok && v != "" && v != "0" {
		cfg.Leaderboard.ChannelID = v
	}
	if v, ok := os.LookupEnv("LEADERBOARD_TIME"); ok && v != "" {
		cfg.Leaderboard.Time = v
	}
	if v, ok := os.LookupEnv("DATABASE_PATH"); ok && v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v, ok := os.LookupEnv("STORAGE_DRIVER"); ok && v != "" {
		cfg.Storage.Driver = v
	}
	if v, ok := os.LookupEnv("INVITES_TIMEZONE"); ok && v != "" {
		cfg.Timezone = v
	}
	if v, ok := os.LookupEnv("REDIS_ADDR"); ok && v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok && v != "" {
		cfg.Log.Level = v
	}
}

func (c *Config) applyDefaults() {
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "invite_stats.db"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = "disable"
	}
	if c.Cache.L1MaxCost == 0 {
		c.Cache.L1MaxCost = 10 << 20
	}
	if c.Cache.L1NumCounters == 0 {
		c.Cache.L1NumCounters = 100000
	}
	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = 60
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.Leaderboard.Time == "" {
		c.Leaderboard.Time = "09:00"
	}
	if c.Leaderboard.Size == 0 {
		c.Leaderboard.Size = 10
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = "localhost:6060"
	}
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("token is required (config file or DISCORD_BOT_TOKEN)")
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	if _, _, err := ParseClock(c.Leaderboard.Time); err != nil {
		return err
	}
	return nil
}

// Location returns the configured default timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}
