package chat

import (
	"context"

	"github.com/zuychin03/zuychin-assistant/pkg/repository"
	"github.com/zuychin03/zuychin-assistant/pkg/utils/logging"
)

const defaultDedupThreshold = 0.95

// DedupGuard decides whether a message embedding is new enough to be stored as a memory.
// It is a heuristic: near-duplicates may slip through and distinct memories may be skipped.
type DedupGuard struct {
	repo      repository.Repository
	threshold float64
}

// NewDedupGuard creates a DedupGuard. A threshold of zero selects 0.95.
func NewDedupGuard(repo repository.Repository, threshold float64) *DedupGuard {
	if threshold <= 0 {
		threshold = defaultDedupThreshold
	}
	return &DedupGuard{
		repo:      repo,
		threshold: threshold,
	}
}

// ShouldStore returns false when a stored memory is at least threshold-similar to
// embedding. Search errors allow the write.
func (g *DedupGuard) ShouldStore(ctx context.Context, embedding []float32, ownerID string) bool {
	found, err := g.repo.SearchMemories(ctx, &repository.SearchMemoriesInput{
		Embedding: embedding,
		Threshold: g.threshold,
		Limit:     1,
		OwnerID:   ownerID,
	})
	if err != nil {
		logging.From(ctx).Warn("duplicate check failed, storing memory anyway", "error", err)
		return true
	}

	for _, m := range found {
		if m.Similarity >= g.threshold {
			return false
		}
	}
	return true
}
