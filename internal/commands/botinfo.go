package commands

import (
	"fmt"
	"runtime"
	"time"

	"discord-invite-tracker/internal/commands/framework"
	"discord-invite-tracker/internal/utils"

	"github.com/bwmarrin/discordgo"
)

var BotInfo = &discordgo.ApplicationCommand{
	Name:        "botinfo",
	Description: "Show bot runtime and tracking statistics",
}

func BotInfoCmd(ctx framework.Context, deps *Deps) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	s := ctx.GetSession()
	cm := deps.Cache.GetMetrics()

	embed := &discordgo.MessageEmbed{
		Title: "Bot Statistics",
		Color: utils.ColorDark,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "Bot Info",
				Value:  fmt.Sprintf("**Uptime:** %s\n**Goroutines:** %d\n**Go Version:** %s", formatUptime(time.Since(deps.StartTime)), runtime.NumGoroutine(), runtime.Version()),
				Inline: false,
			},
			{
				Name:   "Memory",
				Value:  fmt.Sprintf("**Alloc:** %v MB\n**Sys:** %v MB\n**NumGC:** %v", bToMb(m.Alloc), bToMb(m.Sys), m.NumGC),
				Inline: false,
			},
			{
				Name:   "Tracking",
				Value:  fmt.Sprintf("**Guilds:** %d\n**Guilds with invites loaded:** %d\n**Storage:** %s", len(s.State.Guilds), deps.Invites.Registry().Guilds(), deps.DB.Dialect()),
				Inline: false,
			},
			{
				Name:   "Cache",
				Value:  fmt.Sprintf("**L1 hit rate:** %.1f%%\n**L2 hit rate:** %.1f%%\n**Evicted:** %d", cm.L1HitRate*100, cm.L2HitRate*100, cm.L1KeysEvicted),
				Inline: false,
			},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text:    fmt.Sprintf("Requested by %s", ctx.GetAuthor().Username),
			IconURL: ctx.GetAuthor().AvatarURL(""),
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if deps.Perf != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Performance",
			Value:  fmt.Sprintf("**Last command:** %.2fms\n**Last REST call:** %.2fms\n**Events:** %d", deps.Perf.CommandLatency(), deps.Perf.RESTLatency(), deps.Perf.EventCount()),
			Inline: false,
		})
	}
	if s.State.User != nil {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: s.State.User.AvatarURL("")}
	}

	ctx.ReplyEmbed(embed)
}

func BotInfoHandler(s *discordgo.Session, i *discordgo.InteractionCreate, deps *Deps) {
	ctx := framework.NewSlashContext(s, i)
	BotInfoCmd(ctx, deps)
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
