package bot

import (
	"context"
	"fmt"
	"time"

	"discord-invite-tracker/internal/models"
	"discord-invite-tracker/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// discordLister fetches live invite lists over REST.
type discordLister struct {
	session *discordgo.Session
	log     *zap.Logger
}

func (l *discordLister) GuildInvites(ctx context.Context, guildID string) ([]models.InviteCode, error) {
	raw, err := l.session.GuildInvites(guildID, discordgo.WithContext(ctx))
	if err != nil {
		if code, msg, ok := utils.DiscordErrorCode(err); ok {
			l.log.Warn("invite list rejected",
				zap.String("guild_id", guildID),
				zap.Int64("code", code),
				zap.String("message", msg),
				zap.Bool("needs_manage_server", utils.IsPermissionError(err)))
		}
		return nil, fmt.Errorf("%w: %w", models.ErrExternalFetch, err)
	}

	codes := make([]models.InviteCode, 0, len(raw))
	for _, inv := range raw {
		codes = append(codes, inviteCode(guildID, inv))
	}
	return codes, nil
}

// inviteCode converts a gateway or REST invite. guildID wins over the embedded guild.
func inviteCode(guildID string, inv *discordgo.Invite) models.InviteCode {
	c := models.InviteCode{
		Code:      inv.Code,
		GuildID:   guildID,
		CreatedAt: inv.CreatedAt,
		Uses:      inv.Uses,
		MaxUses:   inv.MaxUses,
	}
	if c.GuildID == "" && inv.Guild != nil {
		c.GuildID = inv.Guild.ID
	}
	if inv.Inviter != nil {
		c.CreatorID = inv.Inviter.ID
	}
	if inv.MaxAge > 0 && !inv.CreatedAt.IsZero() {
		c.ExpiresAt = inv.CreatedAt.Add(time.Duration(inv.MaxAge) * time.Second)
	}
	return c
}
