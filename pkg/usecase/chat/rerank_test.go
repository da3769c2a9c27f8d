package chat_test

import (
	"math"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/zuychin03/zuychin-assistant/pkg/model"
	"github.com/zuychin03/zuychin-assistant/pkg/usecase/chat"
)

func ptr(f float64) *float64 { return &f }

func candidate(content string, similarity *float64, source string) *model.RetrievalCandidate {
	return &model.RetrievalCandidate{
		Memory: &model.Memory{
			Content:  content,
			Metadata: map[string]string{model.MetadataSource: source},
		},
		Similarity: similarity,
	}
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRerankOrderAndTruncation(t *testing.T) {
	input := []*model.RetrievalCandidate{
		candidate("first tie", ptr(0.6), model.SourceNote),
		candidate("highest", ptr(0.9), model.SourceNote),
		candidate("second tie", ptr(0.6), model.SourceNote),
		candidate("low", ptr(0.1), model.SourceNote),
		candidate("third tie", ptr(0.6), model.SourceNote),
	}

	t.Run("sorted and stable", func(t *testing.T) {
		out := chat.Rerank(input, "zz", 10)
		gt.A(t, out).Length(5)
		for i := 1; i < len(out); i++ {
			gt.True(t, out[i-1].RerankScore >= out[i].RerankScore)
		}
		gt.Equal(t, out[0].Memory.Content, "highest")
		gt.Equal(t, out[1].Memory.Content, "first tie")
		gt.Equal(t, out[2].Memory.Content, "second tie")
		gt.Equal(t, out[3].Memory.Content, "third tie")
		gt.Equal(t, out[4].Memory.Content, "low")
	})

	t.Run("truncated to max results", func(t *testing.T) {
		for max := 0; max <= 6; max++ {
			out := chat.Rerank(input, "zz", max)
			gt.True(t, len(out) <= max)
		}
		gt.A(t, chat.Rerank(input, "zz", 2)).Length(2)
	})

	t.Run("input is not modified", func(t *testing.T) {
		_ = chat.Rerank(input, "highest", 3)
		for _, c := range input {
			gt.Equal(t, c.RerankScore, 0.0)
		}
		gt.Equal(t, input[0].Memory.Content, "first tie")
	})
}

func TestRerankScore(t *testing.T) {
	t.Run("no keyword bonus without long terms", func(t *testing.T) {
		out := chat.Rerank([]*model.RetrievalCandidate{
			candidate("a to be or not", ptr(0.5), model.SourceNote),
		}, "a to be", 1)
		gt.True(t, near(out[0].RerankScore, 0.5))
	})

	t.Run("full keyword bonus when every term matches", func(t *testing.T) {
		out := chat.Rerank([]*model.RetrievalCandidate{
			candidate("My DENTIST appointment is on Friday", ptr(0), model.SourceNote),
		}, "dentist Friday", 1)
		gt.Equal(t, out[0].RerankScore, 0.2)
	})

	t.Run("partial keyword bonus", func(t *testing.T) {
		out := chat.Rerank([]*model.RetrievalCandidate{
			candidate("dentist on monday", ptr(0), model.SourceNote),
		}, "dentist friday", 1)
		gt.True(t, near(out[0].RerankScore, 0.1))
	})

	t.Run("missing similarity defaults", func(t *testing.T) {
		out := chat.Rerank([]*model.RetrievalCandidate{
			candidate("unrelated", nil, model.SourceNote),
		}, "zz", 1)
		gt.True(t, near(out[0].RerankScore, 0.7))
	})

	t.Run("live message stream gets recency bonus", func(t *testing.T) {
		out := chat.Rerank([]*model.RetrievalCandidate{
			candidate("note", ptr(0.5), model.SourceNote),
			candidate("message", ptr(0.5), model.SourceUserMessage),
		}, "zz", 2)
		gt.Equal(t, out[0].Memory.Content, "message")
		gt.True(t, near(out[0].RerankScore, 0.55))
		gt.True(t, near(out[1].RerankScore, 0.5))
	})
}
