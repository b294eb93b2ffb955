package commands

import (
	"discord-invite-tracker/internal/commands/framework"
	"discord-invite-tracker/internal/utils"

	"github.com/bwmarrin/discordgo"
)

// HelpSelectID is the custom ID of the category menu.
const HelpSelectID = "help_category_select"

var Help = &discordgo.ApplicationCommand{
	Name:        "help",
	Description: "Show available commands",
}

func HelpCmd(ctx framework.Context) {
	embed := &discordgo.MessageEmbed{
		Title:       "Invite Tracker Commands",
		Description: "Select a category below to view commands.",
		Color:       utils.ColorDark,
	}

	menu := discordgo.SelectMenu{
		CustomID:    HelpSelectID,
		Placeholder: "Select a category",
		Options: []discordgo.SelectMenuOption{
			{
				Label:       "Invites",
				Value:       "help_invites",
				Description: "Leaderboards and invite statistics",
			},
			{
				Label:       "Admin",
				Value:       "help_admin",
				Description: "Server settings (Manage Server)",
			},
			{
				Label:       "Utility",
				Value:       "help_utility",
				Description: "General bot utilities",
			},
		},
	}

	ctx.ReplyComponent(embed, []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{menu},
		},
	})
}

// helpCategory returns nil for unknown values.
func helpCategory(value string) *discordgo.MessageEmbed {
	switch value {
	case "help_invites":
		return &discordgo.MessageEmbed{
			Title: "Invite Commands",
			Color: utils.ColorDark,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "/leaderboard", Value: "Top inviters of all time (`lb`, `top`)", Inline: false},
				{Name: "/weekly", Value: "Top inviters from the past 7 days (`recent`)", Inline: false},
				{Name: "/stats [user]", Value: "Total, today and rank for a member (`me`, `invites`)", Inline: false},
				{Name: "/daily [user] [YYYY-MM-DD]", Value: "Invites per day for one week, with a chart", Inline: false},
			},
		}
	case "help_admin":
		return &discordgo.MessageEmbed{
			Title: "Admin Commands",
			Color: utils.ColorDark,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "/refresh", Value: "Re-read invite links from Discord", Inline: false},
				{Name: "/timezone <zone>", Value: "Timezone for daily counts, or `reset`", Inline: false},
				{Name: "/prefix <prefix>", Value: "Chat command prefix", Inline: false},
			},
		}
	case "help_utility":
		return &discordgo.MessageEmbed{
			Title: "Utility Commands",
			Color: utils.ColorDark,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "/help", Value: "Show this menu", Inline: false},
				{Name: "/ping", Value: "Check bot latency", Inline: false},
				{Name: "/botinfo", Value: "Runtime and cache statistics", Inline: false},
			},
		}
	}
	return nil
}

func HandleHelpSelect(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.MessageComponentData()
	if len(data.Values) == 0 {
		return
	}

	embed := helpCategory(data.Values[0])
	if embed == nil {
		return
	}

	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			// keep the menu so they can switch categories
			Components: i.Message.Components,
		},
	})
}

func HandleHelp(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := framework.NewSlashContext(s, i)
	HelpCmd(ctx)
}
