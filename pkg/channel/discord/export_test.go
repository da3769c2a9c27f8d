package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/zuychin03/zuychin-assistant/pkg/channel"
)

func NewWithAPI(cfg Config, api messageAPI) *Bot {
	return &Bot{cfg: cfg, api: api}
}

func (b *Bot) ToInbound(m *discordgo.Message, botID string) (*channel.Inbound, bool) {
	return b.toInbound(m, botID)
}

func (b *Bot) Connect(ctx context.Context, gw gateway) error {
	return b.connect(ctx, gw)
}
