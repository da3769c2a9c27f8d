package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"github.com/zuychin03/zuychin-assistant/pkg/model"
	"github.com/zuychin03/zuychin-assistant/pkg/tool"
)

const (
	defaultSearchThreshold = 0.6
	defaultSearchCount     = 5
	maxSearchCount         = 20
)

// Retriever finds memories similar to a free-text query
type Retriever interface {
	Retrieve(ctx context.Context, query, ownerID string, threshold float64, count int) []*model.RetrievalCandidate
}

// Search is the search_memory tool
type Search struct {
	retriever Retriever
	threshold float64
	count     int
}

// NewSearch creates a new search_memory tool
func NewSearch(retriever Retriever) *Search {
	return &Search{
		retriever: retriever,
		threshold: defaultSearchThreshold,
		count:     defaultSearchCount,
	}
}

func (x *Search) Spec() tool.Spec {
	return tool.Spec{
		Name:        "search_memory",
		Description: "Search long-term memory (past messages and saved notes) by free-text query",
		Parameters: []tool.Parameter{
			{
				Name:        "query",
				Type:        tool.TypeString,
				Description: "What to look for",
				Required:    true,
			},
			{
				Name:        "limit",
				Type:        tool.TypeNumber,
				Description: fmt.Sprintf("Maximum number of memories (default: %d, max: %d)", defaultSearchCount, maxSearchCount),
			},
		},
	}
}

func (x *Search) Execute(ctx context.Context, args map[string]any) (string, error) {
	query, ok := tool.StringArg(args, "query")
	if !ok {
		return "", goerr.New("query is required")
	}

	count := x.count
	if n, ok := tool.NumberArg(args, "limit"); ok && n >= 1 {
		count = min(int(n), maxSearchCount)
	}

	candidates := x.retriever.Retrieve(ctx, query, tool.OwnerFrom(ctx), x.threshold, count)
	if len(candidates) == 0 {
		return "No related memories found.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d memories:\n", len(candidates))
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. ", i+1)
		if category := c.Memory.Metadata[model.MetadataCategory]; category != "" {
			fmt.Fprintf(&b, "[%s] ", category)
		}
		b.WriteString(c.Memory.Content)
		if c.Similarity != nil {
			fmt.Fprintf(&b, " (similarity %.2f)", *c.Similarity)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

func (x *Search) Prompt(ctx context.Context) string {
	return "Use search_memory when the user refers to something they told you before."
}

func (x *Search) Flags() []cli.Flag {
	return nil
}
