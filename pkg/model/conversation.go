package model

import (
	"time"

	"github.com/google/uuid"
)

type ConversationID string

// NewConversationID generates a new unique ConversationID
func NewConversationID() ConversationID {
	return ConversationID(uuid.New().String())
}

// Conversation groups messages of the web UI into threads
type Conversation struct {
	ID        ConversationID `json:"id"`
	Title     string         `json:"title"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Profile holds per-owner settings. An empty SystemPrompt means the default prompt is used.
type Profile struct {
	OwnerID      string    `json:"owner_id"`
	SystemPrompt string    `json:"system_prompt"`
	UpdatedAt    time.Time `json:"updated_at"`
}
