package commands

import (
	"fmt"

	"discord-invite-tracker/internal/commands/framework"
	"discord-invite-tracker/internal/utils"

	"github.com/bwmarrin/discordgo"
)

var Refresh = &discordgo.ApplicationCommand{
	Name:        "refresh",
	Description: "Re-read this server's invite links from Discord",
}

func RefreshCmd(ctx framework.Context, deps *Deps) {
	if !requireManageServer(ctx) {
		return
	}

	c, cancel := commandContext()
	defer cancel()

	n, err := deps.Invites.LoadGuild(c, ctx.GetGuildID())
	if err != nil {
		msg := "Could not fetch invites from Discord. Try again later."
		if utils.IsPermissionError(err) {
			msg = "I need the **Manage Server** permission to read invite links."
		}
		ctx.ReplyEmbed(utils.ErrorEmbed(msg))
		return
	}

	ctx.ReplyEmbed(utils.SuccessEmbed(fmt.Sprintf("Tracking **%d** invite links.", n)))
}

func RefreshHandler(s *discordgo.Session, i *discordgo.InteractionCreate, deps *Deps) {
	ctx := framework.NewSlashContext(s, i)
	RefreshCmd(ctx, deps)
}
