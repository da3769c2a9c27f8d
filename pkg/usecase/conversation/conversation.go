package conversation

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/zuychin03/zuychin-assistant/pkg/adapter"
	"github.com/zuychin03/zuychin-assistant/pkg/model"
	"github.com/zuychin03/zuychin-assistant/pkg/repository"
)

// maxMessages bounds how many messages of one conversation are loaded at once
const maxMessages = 1000

// UseCase provides conversation management operations
type UseCase struct {
	repo    repository.Repository
	storage adapter.Storage
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithStorage enables archiving to Cloud Storage
func WithStorage(storage adapter.Storage) Option {
	return func(uc *UseCase) {
		uc.storage = storage
	}
}

// New creates a new conversation UseCase instance
func New(repo repository.Repository, opts ...Option) *UseCase {
	uc := &UseCase{repo: repo}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Create starts an empty conversation
func (u *UseCase) Create(ctx context.Context, title string) (*model.Conversation, error) {
	now := time.Now()
	conv := &model.Conversation{
		ID:        model.NewConversationID(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.repo.PutConversation(ctx, conv); err != nil {
		return nil, goerr.Wrap(err, "failed to create conversation")
	}
	return conv, nil
}

// List returns conversations, most recently updated first
func (u *UseCase) List(ctx context.Context, offset, limit int) ([]*model.Conversation, error) {
	convs, err := u.repo.ListConversations(ctx, offset, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list conversations")
	}
	return convs, nil
}

// Show returns a conversation and its latest messages, oldest first
func (u *UseCase) Show(ctx context.Context, id model.ConversationID, limit int) (*model.Conversation, []*model.Message, error) {
	conv, err := u.repo.GetConversation(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if limit <= 0 || limit > maxMessages {
		limit = maxMessages
	}
	msgs, err := u.repo.ListMessagesByConversation(ctx, id, limit)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to list messages", goerr.V("id", id))
	}

	return conv, msgs, nil
}

// Delete removes a conversation and all of its messages
func (u *UseCase) Delete(ctx context.Context, id model.ConversationID) error {
	if err := u.repo.DeleteConversation(ctx, id); err != nil {
		return goerr.Wrap(err, "failed to delete conversation", goerr.V("id", id))
	}
	return nil
}

// Rename sets the title of a conversation
func (u *UseCase) Rename(ctx context.Context, id model.ConversationID, title string) error {
	if err := u.repo.UpdateConversationTitle(ctx, id, title); err != nil {
		return goerr.Wrap(err, "failed to rename conversation", goerr.V("id", id))
	}
	return nil
}
