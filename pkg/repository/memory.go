package repository

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/zuychin03/zuychin-assistant/pkg/model"
)

// Memory is an in-process Repository. Vector search is an exact cosine scan, so it is
// meant for local runs and tests rather than large stores.
type Memory struct {
	mu            sync.RWMutex
	messages      []*model.Message
	memories      []*model.Memory
	profiles      map[string]*model.Profile
	conversations map[model.ConversationID]*model.Conversation
}

var _ Repository = (*Memory)(nil)

// NewMemory creates an empty in-memory repository
func NewMemory() *Memory {
	return &Memory{
		profiles:      make(map[string]*model.Profile),
		conversations: make(map[model.ConversationID]*model.Conversation),
	}
}

func (r *Memory) PutMessage(ctx context.Context, msg *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *msg
	for i, m := range r.messages {
		if m.ID == msg.ID {
			r.messages[i] = &copied
			return nil
		}
	}
	r.messages = append(r.messages, &copied)
	return nil
}

// latest returns the newest limit messages matching filter, newest first
func (r *Memory) latest(limit int, filter func(*model.Message) bool) []*model.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// walk backwards so that messages sharing a timestamp keep newest-inserted first
	var matched []*model.Message
	for i := len(r.messages) - 1; i >= 0; i-- {
		msg := r.messages[i]
		if filter(msg) {
			copied := *msg
			matched = append(matched, &copied)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if limit >= 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

func (r *Memory) ListMessagesByConversation(ctx context.Context, id model.ConversationID, limit int) ([]*model.Message, error) {
	msgs := r.latest(limit, func(m *model.Message) bool { return m.ConversationID == id })
	return reverse(msgs), nil
}

func (r *Memory) ListMessagesByChannel(ctx context.Context, channel model.Channel, limit int) ([]*model.Message, error) {
	msgs := r.latest(limit, func(m *model.Message) bool { return m.Channel == channel })
	return reverse(msgs), nil
}

func (r *Memory) ListRecentMessages(ctx context.Context, limit int) ([]*model.Message, error) {
	return r.latest(limit, func(*model.Message) bool { return true }), nil
}

func (r *Memory) PutMemory(ctx context.Context, memory *model.Memory) error {
	if len(memory.Embedding) != model.EmbeddingDimension && len(memory.Embedding) != 0 {
		return goerr.New("embedding dimension mismatch",
			goerr.V("expected", model.EmbeddingDimension),
			goerr.V("actual", len(memory.Embedding)))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *memory
	r.memories = append(r.memories, &copied)
	return nil
}

func (r *Memory) SearchMemories(ctx context.Context, input *SearchMemoriesInput) ([]*model.ScoredMemory, error) {
	if input.Limit <= 0 {
		return nil, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*model.ScoredMemory
	for _, memory := range r.memories {
		if input.OwnerID != "" && memory.OwnerID != input.OwnerID {
			continue
		}

		similarity := CosineSimilarity(input.Embedding, memory.Embedding)
		if similarity < input.Threshold {
			continue
		}

		copied := *memory
		results = append(results, &model.ScoredMemory{Memory: &copied, Similarity: similarity})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > input.Limit {
		results = results[:input.Limit]
	}
	return results, nil
}

// CosineSimilarity calculates cosine similarity between two vectors. Vectors of
// different length or zero norm have similarity 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

func (r *Memory) GetProfile(ctx context.Context, ownerID string) (*model.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.profiles[ownerID]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "profile not found", goerr.V("owner_id", ownerID))
	}
	copied := *profile
	return &copied, nil
}

func (r *Memory) PutProfile(ctx context.Context, profile *model.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *profile
	r.profiles[profile.OwnerID] = &copied
	return nil
}

func (r *Memory) PutConversation(ctx context.Context, conv *model.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *conv
	r.conversations[conv.ID] = &copied
	return nil
}

func (r *Memory) GetConversation(ctx context.Context, id model.ConversationID) (*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, ok := r.conversations[id]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "conversation not found", goerr.V("id", id))
	}
	copied := *conv
	return &copied, nil
}

func (r *Memory) ListConversations(ctx context.Context, offset, limit int) ([]*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	convs := make([]*model.Conversation, 0, len(r.conversations))
	for _, conv := range r.conversations {
		copied := *conv
		convs = append(convs, &copied)
	}
	sort.Slice(convs, func(i, j int) bool {
		if convs[i].UpdatedAt.Equal(convs[j].UpdatedAt) {
			return convs[i].ID < convs[j].ID
		}
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})

	if offset >= len(convs) {
		return []*model.Conversation{}, nil
	}
	convs = convs[offset:]
	if limit >= 0 && len(convs) > limit {
		convs = convs[:limit]
	}
	return convs, nil
}

func (r *Memory) DeleteConversation(ctx context.Context, id model.ConversationID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conversations, id)

	kept := r.messages[:0]
	for _, msg := range r.messages {
		if msg.ConversationID != id {
			kept = append(kept, msg)
		}
	}
	r.messages = kept
	return nil
}

func (r *Memory) UpdateConversationTitle(ctx context.Context, id model.ConversationID, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[id]
	if !ok {
		return goerr.Wrap(ErrNotFound, "conversation not found", goerr.V("id", id))
	}
	conv.Title = title
	conv.UpdatedAt = time.Now()
	return nil
}
