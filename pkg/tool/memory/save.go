package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"github.com/zuychin03/zuychin-assistant/pkg/model"
	"github.com/zuychin03/zuychin-assistant/pkg/tool"
)

const defaultCategory = "general"

// Embedder converts text into a fixed-width vector
type Embedder interface {
	Embedding(ctx context.Context, text string, dimension int) ([]float32, error)
}

// Writer persists memories
type Writer interface {
	PutMemory(ctx context.Context, memory *model.Memory) error
}

// SaveNote is the save_note tool
type SaveNote struct {
	embedder Embedder
	writer   Writer
}

// NewSaveNote creates a new save_note tool
func NewSaveNote(embedder Embedder, writer Writer) *SaveNote {
	return &SaveNote{
		embedder: embedder,
		writer:   writer,
	}
}

func (x *SaveNote) Spec() tool.Spec {
	return tool.Spec{
		Name:        "save_note",
		Description: "Save a note to long-term memory so it can be recalled in later conversations",
		Parameters: []tool.Parameter{
			{
				Name:        "content",
				Type:        tool.TypeString,
				Description: "The note text",
				Required:    true,
			},
			{
				Name:        "category",
				Type:        tool.TypeString,
				Description: fmt.Sprintf("Short category such as todo, idea or fact (default: %s)", defaultCategory),
			},
		},
	}
}

func (x *SaveNote) Execute(ctx context.Context, args map[string]any) (string, error) {
	content, ok := tool.StringArg(args, "content")
	if !ok {
		return "", goerr.New("content is required")
	}
	category, ok := tool.StringArg(args, "category")
	if !ok {
		category = defaultCategory
	}

	embedding, err := x.embedder.Embedding(ctx, content, model.EmbeddingDimension)
	if err != nil {
		return "", goerr.Wrap(err, "failed to embed note")
	}

	memory := &model.Memory{
		ID:        model.NewMemoryID(),
		Content:   content,
		Embedding: embedding,
		Metadata: map[string]string{
			model.MetadataSource:   model.SourceNote,
			model.MetadataCategory: category,
		},
		OwnerID:   tool.OwnerFrom(ctx),
		CreatedAt: time.Now(),
	}
	if err := x.writer.PutMemory(ctx, memory); err != nil {
		return "", goerr.Wrap(err, "failed to save note")
	}

	return fmt.Sprintf("Saved note in category %q.", category), nil
}

func (x *SaveNote) Prompt(ctx context.Context) string {
	return "Use save_note when the user asks you to remember something."
}

func (x *SaveNote) Flags() []cli.Flag {
	return nil
}
