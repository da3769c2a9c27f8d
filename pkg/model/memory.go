package model

import (
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
)

// EmbeddingDimension is the fixed width of every stored embedding
const EmbeddingDimension = 768

// Metadata keys and values attached to memories
const (
	MetadataSource   = "source"
	MetadataCategory = "category"
	MetadataChannel  = "channel"

	SourceUserMessage = "user_message"
	SourceNote        = "note"
)

type MemoryID string

// NewMemoryID generates a new unique MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

// Memory represents a long-term memory snippet with its embedding
type Memory struct {
	ID        MemoryID
	Content   string
	Embedding firestore.Vector32
	Metadata  map[string]string
	OwnerID   string
	CreatedAt time.Time
}

// Source returns the origin of the memory recorded in metadata
func (m *Memory) Source() string {
	if m == nil || m.Metadata == nil {
		return ""
	}
	return m.Metadata[MetadataSource]
}

// ScoredMemory is a memory returned by a similarity search
type ScoredMemory struct {
	Memory     *Memory
	Similarity float64
}

// RetrievalCandidate is a memory considered for the prompt of a single turn.
// Similarity is nil when the store did not report one.
type RetrievalCandidate struct {
	Memory      *Memory
	Similarity  *float64
	RerankScore float64
}
