package utils

import (
	"discord-invite-tracker/internal/models"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// RankLabel returns a medal for the podium and "n." below it.
func RankLabel(rank int) string {
	if rank >= 1 && rank <= len(Medals) {
		return Medals[rank-1]
	}
	return fmt.Sprintf("`%d.`", rank)
}

func plural(n int64, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func leaderboardLines(entries []models.LeaderboardEntry) string {
	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "%s <@%s> - **%s**\n", RankLabel(e.Rank), e.UserID, plural(e.Total, "invite"))
	}
	return sb.String()
}

func LeaderboardEmbed(guildName string, entries []models.LeaderboardEntry) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:     EmojiTrophy + " All-Time Invite Leaderboard",
		Color:     ColorBlurple,
		Timestamp: time.Now().Format(time.RFC3339),
	}

	if len(entries) == 0 {
		embed.Description = "No invite statistics found for this server yet."
		return embed
	}

	embed.Description = leaderboardLines(entries)
	if guildName != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: guildName}
	}
	return embed
}

// WeeklyLeaderboardEmbed shows the 7-day board; scheduled marks the automatic daily post.
func WeeklyLeaderboardEmbed(entries []models.LeaderboardEntry, from, to string, scheduled bool) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:     EmojiChart + " Weekly Invite Leaderboard",
		Color:     ColorBlurple,
		Timestamp: time.Now().Format(time.RFC3339),
		Footer:    &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%s → %s", from, to)},
	}

	if len(entries) == 0 {
		embed.Description = "Nobody has been invited in the past 7 days."
	} else {
		embed.Description = "Top inviters from the past 7 days\n\n" + leaderboardLines(entries)
	}
	if scheduled {
		embed.Footer.Text += " • daily post"
	}
	return embed
}

func UserStatsEmbed(user *discordgo.User, stats models.UserStats) *discordgo.MessageEmbed {
	rank := "Unranked"
	if stats.Rank > 0 {
		rank = RankLabel(stats.Rank)
		if stats.Rank > len(Medals) {
			rank = fmt.Sprintf("#%d", stats.Rank)
		}
	}

	embed := &discordgo.MessageEmbed{
		Title:     fmt.Sprintf("%s Invite Statistics for %s", EmojiStats, displayName(user, stats.UserID)),
		Color:     ColorBlurple,
		Timestamp: time.Now().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Total Invites", Value: fmt.Sprintf("%d", stats.Total), Inline: true},
			{Name: "Today", Value: fmt.Sprintf("%d", stats.Today), Inline: true},
			{Name: "Rank", Value: rank, Inline: true},
			{Name: "Active Invite Links", Value: fmt.Sprintf("%d", stats.InvitesCreated), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "User ID: " + stats.UserID},
	}

	if stats.InvitesCreated > 0 {
		rate := float64(stats.Total) / float64(stats.InvitesCreated) * 100
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Success Rate", Value: fmt.Sprintf("%.1f%%", rate), Inline: true,
		})
	}
	if stats.UncreditedJoins > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Unattributed Server Joins", Value: fmt.Sprintf("%d", stats.UncreditedJoins), Inline: true,
		})
	}

	if user != nil {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: user.AvatarURL("128")}
	}
	return embed
}

// DailyActivityEmbed lists the seven days oldest first. chart names an attached image, if any.
func DailyActivityEmbed(user *discordgo.User, activity models.DailyActivity, chart string) *discordgo.MessageEmbed {
	var sb strings.Builder
	for _, d := range activity.Days {
		day, err := time.Parse(models.DateLayout, d.Date)
		label := d.Date
		if err == nil {
			label = day.Format("Mon Jan 02")
		}
		fmt.Fprintf(&sb, "`%s` %s\n", label, plural(d.Count, "invite"))
	}

	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s Daily Invites for %s", EmojiCalendar, displayName(user, activity.UserID)),
		Description: sb.String(),
		Color:       ColorBlurple,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "7-Day Total", Value: fmt.Sprintf("%d", activity.Total), Inline: true},
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if chart != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: "attachment://" + chart}
	}
	return embed
}

func displayName(user *discordgo.User, fallbackID string) string {
	if user == nil {
		return "<@" + fallbackID + ">"
	}
	if user.GlobalName != "" {
		return user.GlobalName
	}
	return user.Username
}
