package commands

import (
	"strings"

	"github.com/bwmarrin/discordgo"
)

var Commands = []*discordgo.ApplicationCommand{
	// Invite commands
	Leaderboard,
	Weekly,
	Stats,
	Daily,
	// Admin commands
	Refresh,
	SetTimezone,
	SetPrefix,
	// Utility
	Help,
	Ping,
	BotInfo,
}

// aliases maps chat shorthands to slash command names.
var aliases = map[string]string{
	"lb":      "leaderboard",
	"top":     "leaderboard",
	"me":      "stats",
	"invites": "stats",
	"recent":  "weekly",
	"tz":      "timezone",
	"info":    "botinfo",
}

// Resolve maps a chat command word to its slash command name.
func Resolve(word string) (string, bool) {
	word = strings.ToLower(word)
	if name, ok := aliases[word]; ok {
		return name, true
	}
	for _, c := range Commands {
		if c.Name == word {
			return word, true
		}
	}
	return "", false
}

// PerfReporter exposes the bot's rolling latency figures to botinfo.
type PerfReporter interface {
	CommandLatency() float64
	RESTLatency() float64
	EventCount() uint64
}
