package bot

import (
	"context"
	"errors"
	"time"

	"discord-invite-tracker/internal/commands"
	"discord-invite-tracker/internal/metrics"
	"discord-invite-tracker/internal/models"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	eventTimeout      = 10 * time.Second
	guildLoadParallel = 4
	recordAttempts    = 3
	recordBackoff     = 250 * time.Millisecond
)

func (b *Bot) Ready(s *discordgo.Session, r *discordgo.Ready) {
	if s.State.User == nil {
		s.State.User = r.User
	}

	b.Logger.Info("ready", zap.String("user", r.User.Username), zap.Int("guilds", len(r.Guilds)))

	if err := s.UpdateWatchStatus(0, "invite statistics | /help"); err != nil {
		b.Logger.Warn("failed to set presence", zap.Error(err))
	}

	ids := make([]string, 0, len(r.Guilds))
	for _, g := range r.Guilds {
		b.readyGuilds.Store(g.ID, struct{}{})
		ids = append(ids, g.ID)
	}
	go b.loadGuilds(ids)
}

// loadGuilds snapshots invites for every guild with bounded parallelism.
// Failures are logged per guild and never abort the others.
func (b *Bot) loadGuilds(guildIDs []string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(len(guildIDs)+1)*eventTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(guildLoadParallel)

	start := time.Now()
	for _, id := range guildIDs {
		g.Go(func() error {
			b.loadGuild(ctx, id)
			return nil
		})
	}
	g.Wait()

	b.Logger.Info("invite snapshots loaded",
		zap.Int("guilds", len(guildIDs)),
		zap.Int("tracked", b.Invites.Registry().Guilds()),
		zap.Duration("took", time.Since(start)))
}

func (b *Bot) loadGuild(ctx context.Context, guildID string) {
	n, err := b.Invites.LoadGuild(ctx, guildID)
	if err != nil {
		b.Logger.Warn("failed to load invites", zap.String("guild_id", guildID), zap.Error(err))
		return
	}
	b.Logger.Debug("loaded invites", zap.String("guild_id", guildID), zap.Int("codes", n))
}

func (b *Bot) GuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if s.State.User == nil {
		return
	}

	_, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, g.ID, commands.Commands)
	if err != nil {
		b.Logger.Warn("failed to register commands", zap.String("guild_id", g.ID), zap.Error(err))
	}

	if _, loaded := b.readyGuilds.LoadAndDelete(g.ID); loaded {
		return
	}

	b.Logger.Info("joined guild", zap.String("guild_id", g.ID), zap.String("name", g.Name))
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	b.loadGuild(ctx, g.ID)
}

func (b *Bot) GuildDelete(s *discordgo.Session, g *discordgo.GuildDelete) {
	// unavailable means an outage, not a removal
	if g.Unavailable {
		return
	}
	b.Logger.Info("left guild", zap.String("guild_id", g.ID))
	b.Invites.ForgetGuild(g.ID)
	b.Limiter.ResetGuild(g.ID)

	if !b.Config.Storage.PurgeOnLeave {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if err := b.DB.PurgeGuild(ctx, g.ID); err != nil {
		b.Logger.Error("failed to purge guild ledger", zap.String("guild_id", g.ID), zap.Error(err))
	}
}

func (b *Bot) InviteCreate(s *discordgo.Session, e *discordgo.InviteCreate) {
	if e.Invite == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	b.Invites.OnInviteCreate(ctx, inviteCode(e.GuildID, e.Invite))
}

func (b *Bot) InviteDelete(s *discordgo.Session, e *discordgo.InviteDelete) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	b.Invites.OnInviteDelete(ctx, e.GuildID, e.Code)
}

func (b *Bot) GuildMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.Member == nil || m.User == nil || m.User.Bot {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	joinedAt := m.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = time.Now()
	}

	ev, err := b.Invites.OnMemberJoin(ctx, m.GuildID, m.User.ID, joinedAt)
	if err == nil {
		return
	}
	if !errors.Is(err, models.ErrStoreWrite) {
		b.Logger.Error("member join not processed", zap.String("guild_id", m.GuildID), zap.Error(err))
		return
	}

	err = retry(ctx, recordAttempts, recordBackoff, func() error {
		_, err := b.Invites.RecordEvent(ctx, ev)
		return err
	})
	if err != nil {
		b.Logger.Error("join event lost",
			zap.String("guild_id", ev.GuildID),
			zap.String("invited_id", ev.InvitedID),
			zap.String("inviter_id", ev.InviterID),
			zap.String("event_id", ev.ID),
			zap.Error(err))
	}
}

// retry runs fn up to attempts times, doubling the wait after each failure.
func retry(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(backoff << i):
		}
	}
	return err
}

func (b *Bot) InteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	start := time.Now()
	defer func() { b.PerfMonitor.TrackCommand(time.Since(start)) }()

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		if i.GuildID == "" {
			return
		}
		name := i.ApplicationCommandData().Name
		if u := interactionUser(i); u != nil && !b.Limiter.Allow(i.GuildID, u.ID) {
			s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseChannelMessageWithSource,
				Data: &discordgo.InteractionResponseData{
					Content: "Slow down a little, try again in a few seconds.",
					Flags:   discordgo.MessageFlagsEphemeral,
				},
			})
			return
		}
		metrics.CommandsTotal.WithLabelValues(name).Inc()

		switch name {
		case "leaderboard":
			commands.LeaderboardHandler(s, i, b.Deps)
		case "weekly":
			commands.WeeklyHandler(s, i, b.Deps)
		case "stats":
			commands.StatsHandler(s, i, b.Deps)
		case "daily":
			commands.DailyHandler(s, i, b.Deps)
		case "refresh":
			commands.RefreshHandler(s, i, b.Deps)
		case "timezone":
			commands.SetTimezoneHandler(s, i, b.Deps)
		case "prefix":
			commands.SetPrefixHandler(s, i, b.Deps)
		case "help":
			commands.HandleHelp(s, i)
		case "ping":
			commands.HandlePing(s, i, b.Deps)
		case "botinfo":
			commands.BotInfoHandler(s, i, b.Deps)
		}

	case discordgo.InteractionMessageComponent:
		if i.MessageComponentData().CustomID == commands.HelpSelectID {
			commands.HandleHelpSelect(s, i)
		}
	}
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil {
		return i.Member.User
	}
	return i.User
}
