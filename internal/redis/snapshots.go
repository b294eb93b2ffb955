package redis

import (
	"fmt"
	"sort"

	"discord-invite-tracker/internal/models"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Invite snapshots live in one hash per guild: field = code, value = JSON InviteCode.

func snapshotKey(guildID string) string {
	return fmt.Sprintf("invites:%s", guildID)
}

// SaveSnapshot replaces the stored hash for guildID atomically.
func (c *Client) SaveSnapshot(guildID string, codes []models.InviteCode) error {
	key := snapshotKey(guildID)

	values := make([]interface{}, 0, len(codes)*2)
	for _, code := range codes {
		raw, err := json.Marshal(code)
		if err != nil {
			return fmt.Errorf("encode invite %s: %w", code.Code, err)
		}
		values = append(values, code.Code, raw)
	}

	return c.ExecutePipeline(func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.HSet(ctx, key, values...)
		}
		return nil
	})
}

func (c *Client) LoadSnapshot(guildID string) ([]models.InviteCode, error) {
	fields, err := c.HGetAll(snapshotKey(guildID))
	if err != nil {
		return nil, err
	}

	codes := make([]models.InviteCode, 0, len(fields))
	for field, raw := range fields {
		var code models.InviteCode
		if err := json.Unmarshal([]byte(raw), &code); err != nil {
			c.log.Warn("dropping undecodable snapshot entry",
				zap.String("guild_id", guildID),
				zap.String("code", field),
				zap.Error(err))
			continue
		}
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i].Code < codes[j].Code })
	return codes, nil
}

func (c *Client) DeleteSnapshot(guildID string) error {
	return c.Del(snapshotKey(guildID))
}
