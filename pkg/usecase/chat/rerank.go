package chat

import (
	"sort"
	"strings"

	"github.com/zuychin03/zuychin-assistant/pkg/model"
)

const (
	defaultSimilarity = 0.7
	keywordWeight     = 0.2
	recencyBonus      = 0.05
	minTermLength     = 3
)

// Rerank orders candidates by composite score and keeps at most maxResults of them.
// The input is not modified; returned candidates carry their RerankScore.
//
//	score = similarity + (matched terms / query terms) * 0.2 + (0.05 if from the live message stream)
//
// Equal scores keep their input order.
func Rerank(candidates []*model.RetrievalCandidate, query string, maxResults int) []*model.RetrievalCandidate {
	if maxResults <= 0 || len(candidates) == 0 {
		return nil
	}

	terms := queryTerms(query)
	scored := make([]*model.RetrievalCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c == nil || c.Memory == nil {
			continue
		}
		copied := *c
		copied.RerankScore = score(c, terms)
		scored = append(scored, &copied)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].RerankScore > scored[j].RerankScore
	})

	if len(scored) > maxResults {
		scored = scored[:maxResults]
	}
	return scored
}

func score(c *model.RetrievalCandidate, terms []string) float64 {
	s := defaultSimilarity
	if c.Similarity != nil {
		s = *c.Similarity
	}

	s += keywordBonus(terms, c.Memory.Content)

	if c.Memory.Source() == model.SourceUserMessage {
		s += recencyBonus
	}
	return s
}

// keywordBonus is zero when there are no query terms
func keywordBonus(terms []string, content string) float64 {
	if len(terms) == 0 {
		return 0
	}

	lower := strings.ToLower(content)
	matched := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			matched++
		}
	}
	return float64(matched) / float64(len(terms)) * keywordWeight
}

// queryTerms returns lower-cased whitespace tokens longer than two characters
func queryTerms(query string) []string {
	var terms []string
	for _, t := range strings.Fields(strings.ToLower(query)) {
		if len([]rune(t)) >= minTermLength {
			terms = append(terms, t)
		}
	}
	return terms
}
