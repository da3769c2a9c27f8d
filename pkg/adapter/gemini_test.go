package adapter_test

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/zuychin03/zuychin-assistant/pkg/adapter"
	"github.com/zuychin03/zuychin-assistant/pkg/model"
	"google.golang.org/genai"
)

func TestGenerateContent(t *testing.T) {
	projectID := os.Getenv("TEST_GEMINI_PROJECT")
	if projectID == "" {
		t.Skip("TEST_GEMINI_PROJECT is not set")
	}

	ctx := context.Background()
	client, err := adapter.NewGemini(ctx, projectID, "us-central1", "")
	gt.NoError(t, err)

	contents := []*genai.Content{
		genai.NewContentFromText("Hello, what is the capital of France?", genai.RoleUser),
	}

	resp, err := client.GenerateContent(ctx, contents, nil)
	if err != nil {
		t.Fatal("failed to call GenerateContent", err)
	}

	if resp == nil ||
		len(resp.Candidates) == 0 ||
		resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 ||
		resp.Candidates[0].Content.Parts[0].Text == "" {
		t.Fatal("unexpected response")
	}

	t.Log("response:", resp.Candidates[0].Content.Parts[0].Text)
}

func TestEmbedding(t *testing.T) {
	projectID := os.Getenv("TEST_GEMINI_PROJECT")
	if projectID == "" {
		t.Skip("TEST_GEMINI_PROJECT is not set")
	}

	ctx := context.Background()
	client, err := adapter.NewGemini(ctx, projectID, "us-central1", "")
	gt.NoError(t, err)

	vec, err := client.Embedding(ctx, "remember to buy milk", model.EmbeddingDimension)
	gt.NoError(t, err)
	gt.A(t, vec).Length(model.EmbeddingDimension)
}

func TestResizeEmbedding(t *testing.T) {
	t.Run("same length is returned as is", func(t *testing.T) {
		in := []float32{0.6, 0.8}
		out, err := adapter.ResizeEmbedding(in, 2)
		gt.NoError(t, err)
		gt.V(t, out).Equal(in)
	})

	t.Run("longer vector is truncated and normalized", func(t *testing.T) {
		out, err := adapter.ResizeEmbedding([]float32{3, 4, 100}, 2)
		gt.NoError(t, err)
		gt.A(t, out).Length(2)

		var norm float64
		for _, v := range out {
			norm += float64(v) * float64(v)
		}
		gt.True(t, math.Abs(norm-1) < 1e-6)
		gt.True(t, math.Abs(float64(out[0])-0.6) < 1e-6)
	})

	t.Run("shorter vector is rejected", func(t *testing.T) {
		_, err := adapter.ResizeEmbedding([]float32{1}, 2)
		gt.Error(t, err)
		gt.True(t, errors.Is(err, adapter.ErrEmbeddingTooShort))
	})
}
