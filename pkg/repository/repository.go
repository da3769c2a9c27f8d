package repository

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/zuychin03/zuychin-assistant/pkg/model"
)

var ErrNotFound = goerr.New("not found")

// SearchMemoriesInput holds the parameters of a vector similarity search
type SearchMemoriesInput struct {
	Embedding []float32
	// Threshold is the minimum cosine similarity (0..1) of a returned memory
	Threshold float64
	Limit     int
	// OwnerID scopes the search when not empty
	OwnerID string
}

// Repository defines the interface for assistant data persistence
type Repository interface {
	// PutMessage saves a message
	PutMessage(ctx context.Context, msg *model.Message) error

	// ListMessagesByConversation returns the latest limit messages of a conversation, oldest first
	ListMessagesByConversation(ctx context.Context, id model.ConversationID, limit int) ([]*model.Message, error)

	// ListMessagesByChannel returns the latest limit messages of a channel, oldest first
	ListMessagesByChannel(ctx context.Context, channel model.Channel, limit int) ([]*model.Message, error)

	// ListRecentMessages returns the latest limit messages across all channels, newest first
	ListRecentMessages(ctx context.Context, limit int) ([]*model.Message, error)

	// PutMemory saves a memory with its embedding
	PutMemory(ctx context.Context, memory *model.Memory) error

	// SearchMemories performs vector search, most similar first
	SearchMemories(ctx context.Context, input *SearchMemoriesInput) ([]*model.ScoredMemory, error)

	// GetProfile returns ErrNotFound when the owner has no profile
	GetProfile(ctx context.Context, ownerID string) (*model.Profile, error)

	// PutProfile saves a profile
	PutProfile(ctx context.Context, profile *model.Profile) error

	// PutConversation saves a conversation
	PutConversation(ctx context.Context, conv *model.Conversation) error

	// GetConversation returns ErrNotFound when the conversation does not exist
	GetConversation(ctx context.Context, id model.ConversationID) (*model.Conversation, error)

	// ListConversations returns conversations ordered by UpdatedAt descending
	ListConversations(ctx context.Context, offset, limit int) ([]*model.Conversation, error)

	// DeleteConversation deletes a conversation and all of its messages
	DeleteConversation(ctx context.Context, id model.ConversationID) error

	// UpdateConversationTitle sets the title and bumps UpdatedAt
	UpdateConversationTitle(ctx context.Context, id model.ConversationID, title string) error
}
