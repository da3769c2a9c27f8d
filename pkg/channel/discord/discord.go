// Package discord connects a Discord bot to the assistant.
package discord

import (
	"context"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/m-mizutani/goerr/v2"
	"github.com/zuychin03/zuychin-assistant/pkg/channel"
	"github.com/zuychin03/zuychin-assistant/pkg/model"
	"github.com/zuychin03/zuychin-assistant/pkg/utils/async"
	"github.com/zuychin03/zuychin-assistant/pkg/utils/logging"
)

// MaxMessageLength is the Discord limit of one message
const MaxMessageLength = 2000

// Config holds Discord bot settings
type Config struct {
	Token string
	// AllowedChannels restricts which channel IDs the bot responds in. Empty means all.
	AllowedChannels []string
}

type messageAPI interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
}

// gateway is the part of *discordgo.Session the bot drives
type gateway interface {
	messageAPI
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
}

// Bot receives Discord messages and replies through the dispatcher
type Bot struct {
	cfg        Config
	dispatcher *channel.Dispatcher
	runner     *async.Runner

	gw  gateway
	api messageAPI
	ctx context.Context
}

// New creates a new Bot
func New(cfg Config, dispatcher *channel.Dispatcher, runner *async.Runner) *Bot {
	return &Bot{
		cfg:        cfg,
		dispatcher: dispatcher,
		runner:     runner,
	}
}

// Start opens the gateway connection. Messages are handled until Close is called.
func (b *Bot) Start(ctx context.Context) error {
	if b.cfg.Token == "" {
		return goerr.New("discord bot token is required")
	}

	session, err := discordgo.New("Bot " + b.cfg.Token)
	if err != nil {
		return goerr.Wrap(err, "failed to create discord session")
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	if err := b.connect(ctx, session); err != nil {
		return err
	}

	if user := session.State.User; user != nil {
		logging.From(ctx).Info("discord bot connected", "bot", user.Username, "id", user.ID)
	}
	return nil
}

// connect wires the bot state before the gateway starts delivering events
func (b *Bot) connect(ctx context.Context, gw gateway) error {
	b.ctx = ctx
	b.gw = gw
	b.api = gw
	gw.AddHandler(b.onMessageCreate)

	if err := gw.Open(); err != nil {
		b.ctx, b.gw, b.api = nil, nil, nil
		return goerr.Wrap(err, "failed to open discord gateway")
	}
	return nil
}

// Close disconnects from the gateway
func (b *Bot) Close() error {
	if b.gw == nil {
		return nil
	}
	if err := b.gw.Close(); err != nil {
		return goerr.Wrap(err, "failed to close discord session")
	}
	return nil
}

// Send posts text to a Discord channel, split into messages of at most 2000 characters
func (b *Bot) Send(ctx context.Context, channelID, text string) error {
	if b.api == nil {
		return goerr.New("discord bot is not connected")
	}

	for _, chunk := range channel.SplitForSend(text, MaxMessageLength) {
		if _, err := b.api.ChannelMessageSend(channelID, chunk, discordgo.WithContext(ctx)); err != nil {
			return goerr.Wrap(err, "failed to send discord message", goerr.V("channel_id", channelID))
		}
	}
	return nil
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || (s.State.User != nil && m.Author.ID == s.State.User.ID) {
		return
	}

	var botID string
	if s.State.User != nil {
		botID = s.State.User.ID
	}
	in, ok := b.toInbound(m.Message, botID)
	if !ok {
		return
	}

	b.runner.Go(b.ctx, "discord_message", func(ctx context.Context) error {
		_ = b.api.ChannelTyping(m.ChannelID, discordgo.WithContext(ctx))
		return b.dispatcher.Handle(ctx, in, b, m.ChannelID)
	})
}

// toInbound normalizes a Discord message. ok is false when the bot should ignore it.
func (b *Bot) toInbound(m *discordgo.Message, botID string) (*channel.Inbound, bool) {
	if len(b.cfg.AllowedChannels) > 0 && !slices.Contains(b.cfg.AllowedChannels, m.ChannelID) {
		return nil, false
	}

	text := m.Content
	if botID != "" {
		text = strings.ReplaceAll(text, "<@"+botID+">", "")
		text = strings.ReplaceAll(text, "<@!"+botID+">", "")
	}
	text = strings.TrimSpace(text)

	in := &channel.Inbound{
		SenderID: m.Author.ID,
		Text:     text,
		Channel:  model.ChannelDiscord,
	}
	if len(m.Attachments) > 0 {
		in.AttachmentURL = m.Attachments[0].URL
	}

	if in.Text == "" && in.AttachmentURL == "" {
		return nil, false
	}
	return in, true
}
