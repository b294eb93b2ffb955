package commands

import (
	"discord-invite-tracker/internal/commands/framework"
	"discord-invite-tracker/internal/utils"

	"github.com/bwmarrin/discordgo"
)

var Leaderboard = &discordgo.ApplicationCommand{
	Name:        "leaderboard",
	Description: "Top inviters of all time",
}

func LeaderboardCmd(ctx framework.Context, deps *Deps) {
	c, cancel := commandContext()
	defer cancel()

	entries := deps.Stats.GetLeaderboard(c, ctx.GetGuildID(), deps.boardSize())
	ctx.ReplyEmbed(utils.LeaderboardEmbed(guildName(ctx), entries))
}

func LeaderboardHandler(s *discordgo.Session, i *discordgo.InteractionCreate, deps *Deps) {
	ctx := framework.NewSlashContext(s, i)
	LeaderboardCmd(ctx, deps)
}

var Weekly = &discordgo.ApplicationCommand{
	Name:        "weekly",
	Description: "Top inviters from the past 7 days",
}

func WeeklyCmd(ctx framework.Context, deps *Deps) {
	c, cancel := commandContext()
	defer cancel()

	guildID := ctx.GetGuildID()
	entries := deps.Stats.GetWeeklyLeaderboard(c, guildID, deps.boardSize())
	activity := deps.Stats.GetGuildActivity(c, guildID, zeroTime)

	from, to := activity.WeekStart, activity.WeekStart
	if n := len(activity.Days); n > 0 {
		to = activity.Days[n-1].Date
	}

	embed := utils.WeeklyLeaderboardEmbed(entries, from, to, false)
	sendWithChart(ctx, embed, "Server invites, last 7 days", activity.Days)
}

func WeeklyHandler(s *discordgo.Session, i *discordgo.InteractionCreate, deps *Deps) {
	ctx := framework.NewSlashContext(s, i)
	WeeklyCmd(ctx, deps)
}

// guildName is best effort; state tracking may be off.
func guildName(ctx framework.Context) string {
	s := ctx.GetSession()
	if s.State == nil {
		return ""
	}
	if g, err := s.State.Guild(ctx.GetGuildID()); err == nil {
		return g.Name
	}
	return ""
}
