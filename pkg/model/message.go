package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrInvalidRole    = goerr.New("invalid role")
	ErrInvalidChannel = goerr.New("invalid channel")
)

type MessageID string

// NewMessageID generates a new unique MessageID
func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Validate checks if the role is valid
func (r Role) Validate() error {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return nil
	default:
		return goerr.Wrap(ErrInvalidRole, "unknown role", goerr.V("role", r))
	}
}

// Label returns the capitalized role name used in rendered transcripts
func (r Role) Label() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

type Channel string

const (
	ChannelWeb       Channel = "web"
	ChannelDiscord   Channel = "discord"
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelMessenger Channel = "messenger"
	ChannelCLI       Channel = "cli"
)

// Validate checks if the channel is valid
func (c Channel) Validate() error {
	switch c {
	case ChannelWeb, ChannelDiscord, ChannelWhatsApp, ChannelMessenger, ChannelCLI:
		return nil
	default:
		return goerr.Wrap(ErrInvalidChannel, "unknown channel", goerr.V("channel", c))
	}
}

// Message is a single persisted turn. Messages are never mutated after creation.
type Message struct {
	ID             MessageID      `json:"id"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	Channel        Channel        `json:"channel"`
	ConversationID ConversationID `json:"conversation_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// NewMessage builds a message stamped with a fresh ID and the current time
func NewMessage(role Role, content string, channel Channel, conversationID ConversationID) *Message {
	return &Message{
		ID:             NewMessageID(),
		Role:           role,
		Content:        content,
		Channel:        channel,
		ConversationID: conversationID,
		CreatedAt:      time.Now(),
	}
}
