package commands

import (
	"discord-invite-tracker/internal/commands/framework"
	"discord-invite-tracker/internal/utils"

	"github.com/bwmarrin/discordgo"
)

var Stats = &discordgo.ApplicationCommand{
	Name:        "stats",
	Description: "Show invite statistics for a member",
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "user",
			Description: "Member to look up (defaults to you)",
			Required:    false,
		},
	},
}

func StatsCmd(ctx framework.Context, deps *Deps) {
	c, cancel := commandContext()
	defer cancel()

	user := targetUser(ctx)
	stats := deps.Stats.GetUserStats(c, ctx.GetGuildID(), user.ID)
	ctx.ReplyEmbed(utils.UserStatsEmbed(user, stats))
}

func StatsHandler(s *discordgo.Session, i *discordgo.InteractionCreate, deps *Deps) {
	ctx := framework.NewSlashContext(s, i)
	StatsCmd(ctx, deps)
}
