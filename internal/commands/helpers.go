package commands

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"discord-invite-tracker/internal/commands/framework"
	"discord-invite-tracker/internal/models"
	"discord-invite-tracker/internal/utils"

	"github.com/bwmarrin/discordgo"
)

// MaxPrefixLength caps custom chat prefixes.
const MaxPrefixLength = 5

const chartFile = "activity.png"

var zeroTime time.Time

// parseWeekStart picks the first YYYY-MM-DD argument. Mentions and other words are skipped.
func parseWeekStart(args []string, loc *time.Location) (time.Time, bool, error) {
	for _, a := range args {
		if strings.HasPrefix(a, "<@") {
			continue
		}
		if len(a) != len(models.DateLayout) || strings.Count(a, "-") != 2 {
			continue
		}
		t, err := time.ParseInLocation(models.DateLayout, a, loc)
		if err != nil {
			return zeroTime, false, fmt.Errorf("%q is not a valid date, use YYYY-MM-DD", a)
		}
		return t, true, nil
	}
	return zeroTime, false, nil
}

func validPrefix(p string) error {
	switch {
	case p == "":
		return fmt.Errorf("prefix cannot be empty")
	case len(p) > MaxPrefixLength:
		return fmt.Errorf("prefix must be %d characters or less", MaxPrefixLength)
	case strings.ContainsAny(p, " \t\n`"):
		return fmt.Errorf("prefix cannot contain spaces or backticks")
	}
	return nil
}

// targetUser falls back to the invoking user.
func targetUser(ctx framework.Context) *discordgo.User {
	if u := ctx.GetTargetUser(); u != nil {
		return u
	}
	return ctx.GetAuthor()
}

// sendWithChart attaches a bar chart when it renders, otherwise sends the embed alone.
func sendWithChart(ctx framework.Context, embed *discordgo.MessageEmbed, title string, days []models.DayCount) {
	png, err := utils.RenderActivityChart(title, days)
	if err != nil {
		embed.Image = nil
		ctx.ReplyEmbed(embed)
		return
	}
	embed.Image = &discordgo.MessageEmbedImage{URL: "attachment://" + chartFile}
	ctx.ReplyEmbedWithFile(embed, chartFile, bytes.NewReader(png))
}

func requireManageServer(ctx framework.Context) bool {
	if ctx.HasPermission(discordgo.PermissionManageServer) {
		return true
	}
	ctx.ReplyEphemeral(utils.EmojiCross + " You need the **Manage Server** permission to use this command.")
	return false
}
