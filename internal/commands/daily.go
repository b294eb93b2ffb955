package commands

import (
	"discord-invite-tracker/internal/commands/framework"
	"discord-invite-tracker/internal/utils"

	"github.com/bwmarrin/discordgo"
)

var Daily = &discordgo.ApplicationCommand{
	Name:        "daily",
	Description: "Show a member's invites per day for a week",
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "user",
			Description: "Member to look up (defaults to you)",
			Required:    false,
		},
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "start",
			Description: "First day of the week, YYYY-MM-DD (defaults to the last 7 days)",
			Required:    false,
		},
	},
}

func DailyCmd(ctx framework.Context, deps *Deps) {
	c, cancel := commandContext()
	defer cancel()

	guildID := ctx.GetGuildID()
	start, _, err := parseWeekStart(ctx.GetArgs(), deps.Timezones.Location(c, guildID))
	if err != nil {
		ctx.ReplyEmbed(utils.ErrorEmbed(err.Error()))
		return
	}

	user := targetUser(ctx)
	activity := deps.Stats.GetDailyActivity(c, guildID, user.ID, start)
	embed := utils.DailyActivityEmbed(user, activity, chartFile)
	sendWithChart(ctx, embed, "Invites per day", activity.Days)
}

func DailyHandler(s *discordgo.Session, i *discordgo.InteractionCreate, deps *Deps) {
	ctx := framework.NewSlashContext(s, i)
	DailyCmd(ctx, deps)
}
