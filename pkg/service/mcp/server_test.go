package mcp_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/zuychin03/zuychin-assistant/pkg/model"
	"github.com/zuychin03/zuychin-assistant/pkg/repository"
	"github.com/zuychin03/zuychin-assistant/pkg/service/mcp"
	"github.com/zuychin03/zuychin-assistant/pkg/tool"
	"github.com/zuychin03/zuychin-assistant/pkg/tool/clock"
	"github.com/zuychin03/zuychin-assistant/pkg/tool/memory"
)

type fixedEmbedder struct{}

func (fixedEmbedder) Embedding(ctx context.Context, text string, dimension int) ([]float32, error) {
	v := make([]float32, dimension)
	v[0] = 1
	return v, nil
}

func newServer(t *testing.T, repo *repository.Memory) *mcp.Server {
	t.Helper()
	fixed := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	registry, err := tool.New(
		clock.New("UTC", clock.WithNow(func() time.Time { return fixed })),
		memory.NewSaveNote(fixedEmbedder{}, repo),
	)
	gt.NoError(t, err)
	return mcp.NewServer(registry, "owner-1", "test")
}

func connect(t *testing.T, s *mcp.Server) *mcpsdk.ClientSession {
	t.Helper()
	ctx := context.Background()
	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	_, err := s.Connect(ctx, serverTransport)
	gt.NoError(t, err)

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	gt.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func text(t *testing.T, result *mcpsdk.CallToolResult) string {
	t.Helper()
	gt.A(t, result.Content).Length(1)
	c, ok := result.Content[0].(*mcpsdk.TextContent)
	gt.True(t, ok)
	return c.Text
}

func TestListTools(t *testing.T) {
	session := connect(t, newServer(t, repository.NewMemory()))

	res, err := session.ListTools(context.Background(), nil)
	gt.NoError(t, err)
	gt.A(t, res.Tools).Length(2)
	gt.Equal(t, res.Tools[0].Name, "get_current_time")
	gt.Equal(t, res.Tools[1].Name, "save_note")
}

func TestCallTool(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	session := connect(t, newServer(t, repo))

	t.Run("clock", func(t *testing.T) {
		res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: "get_current_time"})
		gt.NoError(t, err)
		gt.False(t, res.IsError)
		gt.S(t, text(t, res)).Contains("2026-10-16 08:00:00")
	})

	t.Run("note is stored for the owner", func(t *testing.T) {
		res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
			Name:      "save_note",
			Arguments: map[string]any{"content": "dentist on Friday", "category": "health"},
		})
		gt.NoError(t, err)
		gt.False(t, res.IsError)

		v, _ := fixedEmbedder{}.Embedding(ctx, "", model.EmbeddingDimension)
		found, err := repo.SearchMemories(ctx, &repository.SearchMemoriesInput{
			Embedding: v,
			Threshold: 0.9,
			Limit:     5,
			OwnerID:   "owner-1",
		})
		gt.NoError(t, err)
		gt.A(t, found).Length(1)
		gt.Equal(t, found[0].Memory.Content, "dentist on Friday")
	})

	t.Run("missing argument is a tool error", func(t *testing.T) {
		res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: "save_note", Arguments: map[string]any{}})
		gt.NoError(t, err)
		gt.True(t, res.IsError)
	})
}

func TestStreamableHTTP(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(newServer(t, repository.NewMemory()).Handler())
	defer srv.Close()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &mcpsdk.StreamableClientTransport{Endpoint: srv.URL}, nil)
	gt.NoError(t, err)
	defer session.Close()

	res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: "get_current_time"})
	gt.NoError(t, err)
	gt.S(t, text(t, res)).Contains("08:00:00")
}
