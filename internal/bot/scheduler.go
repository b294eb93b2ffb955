package bot

import (
	"bytes"
	"context"
	"time"

	"discord-invite-tracker/internal/config"
	"discord-invite-tracker/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// nextRun returns the first hour:minute in loc strictly after now.
func nextRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	run := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !run.After(local) {
		run = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return run
}

// runLeaderboardScheduler posts the weekly leaderboard to the configured channel once a day.
func (b *Bot) runLeaderboardScheduler(ctx context.Context) {
	hour, minute, err := config.ParseClock(b.Config.Leaderboard.Time)
	if err != nil {
		b.Logger.Error("invalid leaderboard time", zap.Error(err))
		return
	}
	loc := b.Config.Location()

	for {
		next := nextRun(time.Now(), hour, minute, loc)
		b.Logger.Info("next leaderboard post scheduled", zap.Time("at", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := b.postDailyLeaderboard(ctx, b.Config.Leaderboard.ChannelID); err != nil {
			b.Logger.Error("daily leaderboard post failed",
				zap.String("channel_id", b.Config.Leaderboard.ChannelID),
				zap.Error(err))
		}
	}
}

func (b *Bot) postDailyLeaderboard(ctx context.Context, channelID string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	ch, err := b.Session.State.Channel(channelID)
	if err != nil {
		ch, err = b.Session.Channel(channelID, discordgo.WithContext(ctx))
		if err != nil {
			return err
		}
	}

	entries := b.Stats.GetWeeklyLeaderboard(ctx, ch.GuildID, b.Config.Leaderboard.Size)
	activity := b.Stats.GetGuildActivity(ctx, ch.GuildID, time.Time{})

	to := activity.WeekStart
	if n := len(activity.Days); n > 0 {
		to = activity.Days[n-1].Date
	}
	embed := utils.WeeklyLeaderboardEmbed(entries, activity.WeekStart, to, true)

	msg := &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}
	if png, err := utils.RenderActivityChart("Server invites, last 7 days", activity.Days); err == nil {
		embed.Image = &discordgo.MessageEmbedImage{URL: "attachment://activity.png"}
		msg.Files = []*discordgo.File{{Name: "activity.png", ContentType: "image/png", Reader: bytes.NewReader(png)}}
	} else {
		b.Logger.Warn("chart render failed", zap.Error(err))
	}

	_, err = b.Session.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx))
	if err != nil && utils.IsPermissionError(err) {
		b.Logger.Warn("missing permission to post in leaderboard channel", zap.String("channel_id", channelID))
	}
	return err
}
