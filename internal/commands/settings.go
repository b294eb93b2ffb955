package commands

import (
	"errors"
	"fmt"

	"discord-invite-tracker/internal/commands/framework"
	"discord-invite-tracker/internal/models"
	"discord-invite-tracker/internal/utils"

	"github.com/bwmarrin/discordgo"
)

var SetPrefix = &discordgo.ApplicationCommand{
	Name:        "prefix",
	Description: "Set the chat command prefix for this server",
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "prefix",
			Description: "New prefix (max 5 characters)",
			Required:    true,
		},
	},
}

func SetPrefixCmd(ctx framework.Context, deps *Deps) {
	if !requireManageServer(ctx) {
		return
	}

	args := ctx.GetArgs()
	if len(args) == 0 {
		ctx.Reply(utils.EmojiCross + " Usage: `prefix <new_prefix>`")
		return
	}

	newPrefix := args[0]
	if err := validPrefix(newPrefix); err != nil {
		ctx.Reply(utils.EmojiCross + " Invalid prefix: " + err.Error())
		return
	}

	c, cancel := commandContext()
	defer cancel()

	guildID := ctx.GetGuildID()
	if err := deps.DB.SetGuildPrefix(c, guildID, newPrefix); err != nil {
		ctx.Reply(utils.EmojiCross + " Failed to update prefix.")
		return
	}
	deps.Cache.InvalidateGuild(guildID)

	ctx.Reply(fmt.Sprintf("%s Prefix updated to `%s`", utils.EmojiTick, newPrefix))
}

func SetPrefixHandler(s *discordgo.Session, i *discordgo.InteractionCreate, deps *Deps) {
	ctx := framework.NewSlashContext(s, i)
	SetPrefixCmd(ctx, deps)
}

var SetTimezone = &discordgo.ApplicationCommand{
	Name:        "timezone",
	Description: "Set the timezone used for daily invite counts",
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "zone",
			Description: "IANA name such as Europe/Berlin, or \"reset\"",
			Required:    true,
		},
	},
}

func SetTimezoneCmd(ctx framework.Context, deps *Deps) {
	c, cancel := commandContext()
	defer cancel()

	guildID := ctx.GetGuildID()
	args := ctx.GetArgs()
	if len(args) == 0 {
		loc := deps.Timezones.Location(c, guildID)
		ctx.Reply(fmt.Sprintf("%s Daily counts use `%s`.", utils.EmojiCalendar, loc.String()))
		return
	}

	if !requireManageServer(ctx) {
		return
	}

	zone := args[0]
	if zone == "reset" {
		zone = ""
	}

	err := deps.DB.SetGuildTimezone(c, guildID, zone)
	switch {
	case errors.Is(err, models.ErrInvalidTimezone):
		ctx.Reply(fmt.Sprintf("%s `%s` is not a known timezone.", utils.EmojiCross, args[0]))
		return
	case err != nil:
		ctx.Reply(utils.EmojiCross + " Failed to update timezone.")
		return
	}
	deps.Cache.InvalidateGuild(guildID)

	if zone == "" {
		zone = deps.Timezones.Default().String()
	}
	ctx.Reply(fmt.Sprintf("%s Daily counts now use `%s`. Earlier days keep their original buckets.", utils.EmojiTick, zone))
}

func SetTimezoneHandler(s *discordgo.Session, i *discordgo.InteractionCreate, deps *Deps) {
	ctx := framework.NewSlashContext(s, i)
	SetTimezoneCmd(ctx, deps)
}
