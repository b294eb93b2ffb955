package utils

import (
	"errors"

	"github.com/bwmarrin/discordgo"
	"github.com/tidwall/gjson"
)

// Discord JSON error codes we react to.
const (
	CodeMissingAccess      = 50001
	CodeMissingPermissions = 50013
)

// DiscordErrorCode extracts the JSON error code and message from a REST error body.
// ok is false for errors that did not come from the Discord API.
func DiscordErrorCode(err error) (code int64, message string, ok bool) {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || len(restErr.ResponseBody) == 0 {
		return 0, "", false
	}
	return ParseDiscordError(restErr.ResponseBody)
}

func ParseDiscordError(body []byte) (code int64, message string, ok bool) {
	if !gjson.ValidBytes(body) {
		return 0, "", false
	}
	res := gjson.GetManyBytes(body, "code", "message")
	if !res[0].Exists() {
		return 0, "", false
	}
	return res[0].Int(), res[1].String(), true
}

// IsPermissionError reports whether err means the bot lacks Manage Server or channel access.
func IsPermissionError(err error) bool {
	code, _, ok := DiscordErrorCode(err)
	return ok && (code == CodeMissingPermissions || code == CodeMissingAccess)
}
