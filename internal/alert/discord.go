package alert

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// discordSender abstracts the discordgo.Session method we use.
type discordSender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordOpts holds parameters for creating a Discord notifier.
type DiscordOpts struct {
	BotToken  string
	ChannelID string
}

// Discord posts alerts as embeds to one channel through the REST API. It
// never opens a gateway connection.
type Discord struct {
	sender    discordSender
	channelID string
}

// NewDiscord creates a Discord notifier.
func NewDiscord(opts DiscordOpts) (*Discord, error) {
	if opts.BotToken == "" {
		return nil, fmt.Errorf("alert: discord bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("alert: discord channel id is required")
	}
	s, err := discordgo.New("Bot " + opts.BotToken)
	if err != nil {
		return nil, fmt.Errorf("alert: discord session: %w", err)
	}
	return &Discord{sender: s, channelID: opts.ChannelID}, nil
}

func (d *Discord) Notify(ctx context.Context, a Alert) error {
	_, err := d.sender.ChannelMessageSendComplex(d.channelID, buildMessageSend(a), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("alert: discord: %w", err)
	}
	return nil
}

func buildMessageSend(a Alert) *discordgo.MessageSend {
	embed := &discordgo.MessageEmbed{
		Title:       a.Title,
		Description: a.Body,
		Color:       parseHexColor(a.Severity.Color()),
	}
	for _, f := range a.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Short,
		})
	}
	return &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}
}

// parseHexColor converts a hex color string (e.g. "#36a64f") to an int.
func parseHexColor(hex string) int {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	var color int
	for _, c := range hex {
		color <<= 4
		switch {
		case c >= '0' && c <= '9':
			color |= int(c - '0')
		case c >= 'a' && c <= 'f':
			color |= int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			color |= int(c-'A') + 10
		}
	}
	return color
}
