package bot

import (
	"context"
	"strings"
	"time"

	"discord-invite-tracker/internal/commands"
	"discord-invite-tracker/internal/commands/framework"
	"discord-invite-tracker/internal/metrics"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const defaultPrefix = "!"

// guildPrefix reads the guild prefix through the stats cache; settings changes invalidate it.
func (b *Bot) guildPrefix(guildID string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var prefix string
	err := b.Cache.GetJSON(ctx, b.Cache.Key(guildID, "prefix"), &prefix, func(ctx context.Context) (interface{}, error) {
		return b.DB.GetGuildPrefix(ctx, guildID)
	})
	if err != nil || prefix == "" {
		if err != nil {
			b.Logger.Debug("prefix lookup failed", zap.String("guild_id", guildID), zap.Error(err))
		}
		return defaultPrefix
	}
	return prefix
}

// splitCommand strips prefix and returns the lowercased command word and its arguments.
func splitCommand(content, prefix string) (string, []string, bool) {
	if !strings.HasPrefix(content, prefix) {
		return "", nil, false
	}
	parts := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(parts) == 0 {
		return "", nil, false
	}
	return strings.ToLower(parts[0]), parts[1:], true
}

func (b *Bot) HandlePrefixCommand(m *discordgo.MessageCreate) {
	if m.GuildID == "" {
		return
	}

	word, args, ok := splitCommand(m.Content, b.guildPrefix(m.GuildID))
	if !ok {
		return
	}
	command, ok := commands.Resolve(word)
	if !ok {
		return
	}

	if !b.Limiter.Allow(m.GuildID, m.Author.ID) {
		return
	}

	start := time.Now()
	defer func() { b.PerfMonitor.TrackCommand(time.Since(start)) }()
	metrics.CommandsTotal.WithLabelValues(command).Inc()

	ctx := framework.NewPrefixContext(b.Session, m, args)

	switch command {
	// Invites
	case "leaderboard":
		commands.LeaderboardCmd(ctx, b.Deps)
	case "weekly":
		commands.WeeklyCmd(ctx, b.Deps)
	case "stats":
		commands.StatsCmd(ctx, b.Deps)
	case "daily":
		commands.DailyCmd(ctx, b.Deps)

	// Admin
	case "refresh":
		commands.RefreshCmd(ctx, b.Deps)
	case "timezone":
		commands.SetTimezoneCmd(ctx, b.Deps)
	case "prefix":
		commands.SetPrefixCmd(ctx, b.Deps)

	// Utility
	case "help":
		commands.HelpCmd(ctx)
	case "ping":
		commands.PingCmd(ctx, b.Deps)
	case "botinfo":
		commands.BotInfoCmd(ctx, b.Deps)
	}
}
