package utils

import (
	"github.com/bwmarrin/discordgo"
)

func ErrorEmbed(message string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Description: EmojiCross + " " + message,
		Color:       ColorRed,
	}
}

func SuccessEmbed(message string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Description: EmojiTick + " " + message,
		Color:       ColorGreen,
	}
}
