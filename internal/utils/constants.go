package utils

const (
	// Emojis
	EmojiTick     = "✅"
	EmojiCross    = "❌"
	EmojiTrophy   = "🏆"
	EmojiChart    = "📊"
	EmojiStats    = "📈"
	EmojiCalendar = "📅"

	// Colors
	ColorBlurple = 0x5865F2
	ColorDark    = 0x2f3136
	ColorGreen   = 0x57F287
	ColorRed     = 0xED4245
)

var Medals = [...]string{"🥇", "🥈", "🥉"}
