package chat

import (
	"context"
	"strings"

	"github.com/zuychin03/zuychin-assistant/pkg/adapter"
	"github.com/zuychin03/zuychin-assistant/pkg/model"
	"github.com/zuychin03/zuychin-assistant/pkg/repository"
	"github.com/zuychin03/zuychin-assistant/pkg/utils/logging"
)

// Retriever finds long-term memories related to a query by vector similarity.
// Retrieval is best-effort: failures are logged and yield no candidates.
type Retriever struct {
	gemini adapter.Gemini
	repo   repository.Repository
}

// NewRetriever creates a new Retriever
func NewRetriever(gemini adapter.Gemini, repo repository.Repository) *Retriever {
	return &Retriever{
		gemini: gemini,
		repo:   repo,
	}
}

// Retrieve returns up to count memories whose similarity to query is at least threshold
func (r *Retriever) Retrieve(ctx context.Context, query, ownerID string, threshold float64, count int) []*model.RetrievalCandidate {
	candidates, _ := r.retrieve(ctx, query, ownerID, threshold, count)
	return candidates
}

// retrieve also returns the query embedding so the caller can reuse it. The embedding is
// nil when embedding failed.
func (r *Retriever) retrieve(ctx context.Context, query, ownerID string, threshold float64, count int) ([]*model.RetrievalCandidate, []float32) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	embedding, err := r.gemini.Embedding(ctx, query, model.EmbeddingDimension)
	if err != nil {
		logging.From(ctx).Warn("failed to embed query", "error", err)
		return nil, nil
	}

	return r.search(ctx, embedding, ownerID, threshold, count), embedding
}

func (r *Retriever) search(ctx context.Context, embedding []float32, ownerID string, threshold float64, count int) []*model.RetrievalCandidate {
	found, err := r.repo.SearchMemories(ctx, &repository.SearchMemoriesInput{
		Embedding: embedding,
		Threshold: threshold,
		Limit:     count,
		OwnerID:   ownerID,
	})
	if err != nil {
		logging.From(ctx).Warn("failed to search memories", "error", err)
		return nil
	}

	candidates := make([]*model.RetrievalCandidate, 0, len(found))
	for _, m := range found {
		similarity := m.Similarity
		candidates = append(candidates, &model.RetrievalCandidate{
			Memory:     m.Memory,
			Similarity: &similarity,
		})
	}
	return candidates
}
