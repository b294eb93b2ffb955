package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"discord-invite-tracker/internal/cache"
	"discord-invite-tracker/internal/commands"
	"discord-invite-tracker/internal/config"
	"discord-invite-tracker/internal/database"
	"discord-invite-tracker/internal/invites"
	"discord-invite-tracker/internal/metrics"
	"discord-invite-tracker/internal/redis"
	"discord-invite-tracker/internal/services"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Bot struct {
	Session     *discordgo.Session
	Config      *config.Config
	DB          *database.Database
	Redis       *redis.Client // nil when redis is disabled
	Cache       *cache.Cache
	Invites     *services.InviteService
	Stats       *services.StatsService
	Timezones   *services.Timezones
	Deps        *commands.Deps
	StartTime   time.Time
	Logger      *zap.Logger
	PerfMonitor *PerformanceMonitor
	Limiter     *CommandLimiter

	// readyGuilds holds guilds whose invites were loaded from the Ready payload,
	// so the GuildCreate burst that follows does not fetch them twice.
	readyGuilds sync.Map

	httpServer *http.Server
	cancel     context.CancelFunc
}

func New(cfg *config.Config, db *database.Database, rdb *redis.Client, c *cache.Cache, logger *zap.Logger) (*Bot, error) {
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("session error: %w", err)
	}

	tr := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       120 * time.Second,
		ForceAttemptHTTP2:     true,
		ResponseHeaderTimeout: 10 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers | // privileged, required for member joins
		discordgo.IntentsGuildInvites |
		discordgo.IntentsMessageContent

	perfMonitor := NewPerformanceMonitor()

	s.Client = &http.Client{
		Transport: &PerfTransport{
			Base:    tr,
			Monitor: perfMonitor,
		},
		Timeout: 15 * time.Second,
	}

	// State is needed for guild names, member counts and channel permission checks.
	s.StateEnabled = true
	s.State.TrackChannels = true
	s.State.TrackRoles = true
	s.State.TrackMembers = true
	s.State.TrackEmojis = false
	s.State.TrackVoice = false
	s.State.TrackPresences = false
	s.State.MaxMessageCount = 0

	s.ShouldReconnectOnError = true
	s.ShouldRetryOnRateLimit = true
	s.MaxRestRetries = 3

	var mirror invites.Mirror
	if rdb != nil {
		mirror = rdb
	}
	registry := invites.New(logger.Named("registry"), invites.Options{
		Mirror:                  mirror,
		CreditVanishedSingleUse: cfg.Attribution.CreditVanishedSingleUse,
	})

	tz := services.NewTimezones(db, cfg.Location(), logger.Named("timezones"))
	lister := &discordLister{session: s, log: logger.Named("lister")}
	inviteSvc := services.NewInviteService(registry, db, lister, c, tz, logger.Named("attributor"))
	statsSvc := services.NewStatsService(db, c, registry, tz, logger.Named("stats"))

	b := &Bot{
		Session:     s,
		Config:      cfg,
		DB:          db,
		Redis:       rdb,
		Cache:       c,
		Invites:     inviteSvc,
		Stats:       statsSvc,
		Timezones:   tz,
		StartTime:   time.Now(),
		Logger:      logger.Named("bot"),
		PerfMonitor: perfMonitor,
		Limiter:     NewCommandLimiter(commandBurst, commandPeriod),
	}
	b.Deps = &commands.Deps{
		Invites:         inviteSvc,
		Stats:           statsSvc,
		DB:              db,
		Redis:           rdb,
		Cache:           c,
		Timezones:       tz,
		LeaderboardSize: cfg.Leaderboard.Size,
		StartTime:       b.StartTime,
		Perf:            perfMonitor,
	}

	s.AddHandler(b.Ready)
	s.AddHandler(b.GuildCreate)
	s.AddHandler(b.GuildDelete)
	s.AddHandler(b.InteractionCreate)
	s.AddHandler(b.UnifiedMessageCreate)
	s.AddHandler(b.UnifiedInviteCreate)
	s.AddHandler(b.UnifiedInviteDelete)
	s.AddHandler(b.UnifiedGuildMemberAdd)

	return b, nil
}

// Start opens the gateway and blocks until SIGINT or SIGTERM.
func (b *Bot) Start() error {
	b.Logger.Info("connecting to Discord gateway")
	if err := b.Session.Open(); err != nil {
		return fmt.Errorf("gateway connection failed: %w", err)
	}

	if b.Session.State.User == nil {
		u, err := b.Session.User("@me")
		if err != nil {
			return fmt.Errorf("failed to get bot user: %w", err)
		}
		b.Session.State.User = u
	}
	b.Logger.Info("logged in",
		zap.String("user", b.Session.State.User.Username),
		zap.String("user_id", b.Session.State.User.ID))

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	go b.monitorHeartbeat(ctx)
	go b.cleanupLimiter(ctx)
	b.StartMonitoring(ctx, 5*time.Minute)
	b.startHTTP()

	if b.Config.Leaderboard.ChannelID != "" {
		go b.runLeaderboardScheduler(ctx)
	} else {
		b.Logger.Info("no leaderboard channel configured, daily post disabled")
	}

	b.Logger.Info("bot is running")

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	return b.Close()
}

func (b *Bot) Close() error {
	b.Logger.Info("shutting down")
	if b.cancel != nil {
		b.cancel()
	}
	if b.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := b.httpServer.Shutdown(ctx); err != nil {
			b.Logger.Warn("http shutdown", zap.Error(err))
		}
		cancel()
	}

	err := b.Session.Close()
	b.Cache.Close()
	if b.Redis != nil {
		b.Redis.Close()
	}
	b.DB.Close()
	b.Logger.Sync()
	return err
}

// startHTTP serves /metrics and the pprof handlers registered on the default mux.
func (b *Bot) startHTTP() {
	if b.Config.HTTP.Addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/debug/pprof/", http.DefaultServeMux)

	b.httpServer = &http.Server{
		Addr:              b.Config.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		b.Logger.Info("starting metrics and pprof server", zap.String("addr", b.Config.HTTP.Addr))
		if err := b.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.Logger.Error("http server stopped", zap.Error(err))
		}
	}()
}

func (b *Bot) monitorHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		latency := b.Session.HeartbeatLatency()
		metrics.GatewayLatency.Set(latency.Seconds())
		b.PerfMonitor.UpdateWSLatency(latency)

		if latency > 500*time.Millisecond {
			b.Logger.Warn("high gateway latency", zap.Duration("latency", latency))
		}
	}
}

func (b *Bot) cleanupLimiter(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := b.Limiter.Cleanup(10 * time.Minute); n > 0 {
				b.Logger.Debug("dropped idle command windows", zap.Int("count", n))
			}
		}
	}
}
