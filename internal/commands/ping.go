package commands

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"discord-invite-tracker/internal/commands/framework"
	"discord-invite-tracker/internal/utils"

	"github.com/bwmarrin/discordgo"
)

var Ping = &discordgo.ApplicationCommand{
	Name:        "ping",
	Description: "Check bot latency",
}

// discordEpoch is the snowflake epoch in milliseconds.
const discordEpoch = 1420070400000

func snowflakeTime(id string) time.Time {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.UnixMilli((n >> 22) + discordEpoch)
}

func PingCmd(ctx framework.Context, deps *Deps) {
	msg, _ := ctx.Reply(utils.EmojiTick + " Pong! Calculating...")

	var sent time.Time
	switch c := ctx.(type) {
	case *framework.SlashContext:
		sent = snowflakeTime(c.Interaction.ID)
	case *framework.PrefixContext:
		sent = snowflakeTime(c.Message.ID)
	default:
		sent = time.Now()
	}
	botLatency := time.Since(sent)
	apiLatency := ctx.GetSession().HeartbeatLatency()

	var dbLatency, redisLatency time.Duration
	var errDB, errRedis error
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		start := time.Now()
		errDB = deps.DB.Ping()
		dbLatency = time.Since(start)
	}()

	if deps.Redis != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			errRedis = deps.Redis.Ping()
			redisLatency = time.Since(start)
		}()
	}

	wg.Wait()

	dbStatus := fmt.Sprintf("`%dms`", dbLatency.Milliseconds())
	if errDB != nil {
		dbStatus = "`❌ Error`"
	}

	redisStatus := "`disabled`"
	if deps.Redis != nil {
		redisStatus = fmt.Sprintf("`%dms`", redisLatency.Milliseconds())
		if errRedis != nil {
			redisStatus = "`❌ Error`"
		}
	}

	embed := &discordgo.MessageEmbed{
		Title: utils.EmojiTick + " Pong!",
		Color: utils.ColorDark,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Bot Latency", Value: fmt.Sprintf("`%dms`", botLatency.Milliseconds()), Inline: true},
			{Name: "API Latency", Value: fmt.Sprintf("`%dms`", apiLatency.Milliseconds()), Inline: true},
			{Name: "Database", Value: dbStatus, Inline: true},
			{Name: "Redis", Value: redisStatus, Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text:    fmt.Sprintf("Requested by %s", ctx.GetAuthor().Username),
			IconURL: ctx.GetAuthor().AvatarURL(""),
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}

	ctx.EditReplyEmbed(msg, embed)
}

func HandlePing(s *discordgo.Session, i *discordgo.InteractionCreate, deps *Deps) {
	ctx := framework.NewSlashContext(s, i)
	PingCmd(ctx, deps)
}
