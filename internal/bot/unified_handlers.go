package bot

import (
	"time"

	"github.com/bwmarrin/discordgo"
)

// Gateway handlers registered on the session. Each records its processing time and
// hands off to the typed handler.

func (b *Bot) UnifiedMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	start := time.Now()
	defer func() { b.PerfMonitor.TrackEvent(time.Since(start)) }()

	// fast path: skip bots and DMs
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	go b.HandlePrefixCommand(m)
}

func (b *Bot) UnifiedInviteCreate(s *discordgo.Session, e *discordgo.InviteCreate) {
	start := time.Now()
	defer func() { b.PerfMonitor.TrackEvent(time.Since(start)) }()

	b.InviteCreate(s, e)
}

func (b *Bot) UnifiedInviteDelete(s *discordgo.Session, e *discordgo.InviteDelete) {
	start := time.Now()
	defer func() { b.PerfMonitor.TrackEvent(time.Since(start)) }()

	b.InviteDelete(s, e)
}

func (b *Bot) UnifiedGuildMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	start := time.Now()
	defer func() { b.PerfMonitor.TrackEvent(time.Since(start)) }()

	b.GuildMemberAdd(s, m)
}
