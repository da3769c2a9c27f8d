package chat_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/zuychin03/zuychin-assistant/pkg/model"
	"github.com/zuychin03/zuychin-assistant/pkg/usecase/chat"
	"google.golang.org/genai"
)

type mockSummarizer struct {
	summarizeFunc func(ctx context.Context, transcript string) (string, error)
	transcripts   []string
}

func (m *mockSummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	m.transcripts = append(m.transcripts, transcript)
	return m.summarizeFunc(ctx, transcript)
}

func makeHistory(n int) []*model.Message {
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	msgs := make([]*model.Message, n)
	for i := range msgs {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		msgs[i] = model.NewMessage(role, fmt.Sprintf("msg-%02d", i), model.ChannelWeb, "")
		msgs[i].CreatedAt = base.Add(time.Duration(i) * time.Minute)
	}
	return msgs
}

func TestCompactVerbatim(t *testing.T) {
	for _, n := range []int{0, 1, 8} {
		t.Run(fmt.Sprintf("%d messages", n), func(t *testing.T) {
			s := &mockSummarizer{}
			out := chat.NewCompactor(s).Compact(context.Background(), makeHistory(n))

			gt.A(t, s.transcripts).Length(0)
			if n == 0 {
				gt.Equal(t, out, "")
				return
			}
			lines := strings.Split(out, "\n")
			gt.A(t, lines).Length(n)
			gt.Equal(t, lines[0], "User: msg-00")
			if n > 1 {
				gt.Equal(t, lines[1], "Assistant: msg-01")
			}
		})
	}
}

func TestCompactSummarizes(t *testing.T) {
	s := &mockSummarizer{
		summarizeFunc: func(ctx context.Context, transcript string) (string, error) {
			return "The user said hello several times.", nil
		},
	}
	msgs := makeHistory(12)
	out := chat.NewCompactor(s).Compact(context.Background(), msgs)

	gt.A(t, s.transcripts).Length(1)
	gt.Equal(t, s.transcripts[0], chat.RenderMessages(msgs[:7]))

	sections := strings.SplitN(out, "\n\nRecent Messages:\n", 2)
	gt.A(t, sections).Length(2)
	gt.Equal(t, sections[0], "Summary:\nThe user said hello several times.")
	gt.Equal(t, sections[1], chat.RenderMessages(msgs[7:]))
	gt.S(t, sections[1]).NotContains("msg-06")
}

func TestCompactOptions(t *testing.T) {
	s := &mockSummarizer{
		summarizeFunc: func(ctx context.Context, transcript string) (string, error) {
			return "summary", nil
		},
	}
	c := chat.NewCompactor(s, chat.WithCompactThreshold(3), chat.WithRecentKeep(2))
	out := c.Compact(context.Background(), makeHistory(4))
	gt.A(t, s.transcripts).Length(1)
	gt.Equal(t, s.transcripts[0], chat.RenderMessages(makeHistory(2)))
	gt.S(t, out).Contains("Recent Messages:\nUser: msg-02\nAssistant: msg-03")
}

func TestCompactFallback(t *testing.T) {
	s := &mockSummarizer{
		summarizeFunc: func(ctx context.Context, transcript string) (string, error) {
			return "", errors.New("model unavailable")
		},
	}

	msgs := makeHistory(20)
	for _, m := range msgs {
		m.Content = strings.Repeat("x", 200) + m.Content
	}
	out := chat.NewCompactor(s).Compact(context.Background(), msgs)

	gt.Equal(t, len([]rune(out)), 2000)
	gt.True(t, strings.HasSuffix(out, "Assistant: "+msgs[19].Content))
	gt.S(t, out).NotContains("Summary:")
}

func TestGeminiSummarizer(t *testing.T) {
	ctx := context.Background()

	t.Run("zero thinking budget", func(t *testing.T) {
		gemini := &mockGemini{
			generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
				gt.Equal(t, *config.ThinkingConfig.ThinkingBudget, int32(0))
				gt.A(t, contents).Length(2)
				gt.Equal(t, contents[0].Parts[0].Text, "User: hi")
				return textResponse("  A short summary.  "), nil
			},
		}
		summary, err := chat.NewSummarizer(gemini).Summarize(ctx, "User: hi")
		gt.NoError(t, err)
		gt.Equal(t, summary, "A short summary.")
	})

	t.Run("empty response", func(t *testing.T) {
		gemini := &mockGemini{
			generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
				return &genai.GenerateContentResponse{}, nil
			},
		}
		_, err := chat.NewSummarizer(gemini).Summarize(ctx, "User: hi")
		gt.Error(t, err)
	})

	t.Run("empty transcript", func(t *testing.T) {
		_, err := chat.NewSummarizer(&mockGemini{}).Summarize(ctx, " ")
		gt.Error(t, err)
	})
}
