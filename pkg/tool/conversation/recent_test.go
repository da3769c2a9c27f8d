package conversation_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/zuychin03/zuychin-assistant/pkg/model"
	"github.com/zuychin03/zuychin-assistant/pkg/repository"
	"github.com/zuychin03/zuychin-assistant/pkg/tool/conversation"
)

func TestRecent(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		msg := model.NewMessage(model.RoleUser, fmt.Sprintf("msg-%02d", i), model.ChannelDiscord, "")
		msg.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		gt.NoError(t, repo.PutMessage(ctx, msg))
	}
	recent := conversation.NewRecent(repo)

	t.Run("default limit newest first", func(t *testing.T) {
		out, err := recent.Execute(ctx, map[string]any{})
		gt.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		gt.A(t, lines).Length(10)
		gt.S(t, lines[0]).Contains("(discord) User: msg-59")
		gt.S(t, lines[9]).Contains("msg-50")
	})

	t.Run("limit is capped", func(t *testing.T) {
		out, err := recent.Execute(ctx, map[string]any{"limit": float64(500)})
		gt.NoError(t, err)
		gt.A(t, strings.Split(strings.TrimSpace(out), "\n")).Length(50)
	})

	t.Run("empty store", func(t *testing.T) {
		out, err := conversation.NewRecent(repository.NewMemory()).Execute(ctx, map[string]any{})
		gt.NoError(t, err)
		gt.Equal(t, out, "No messages yet.")
	})
}
