package chat_test

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"

	"google.golang.org/genai"
)

// mockGemini is a mock implementation of adapter.Gemini for testing
type mockGemini struct {
	generateFunc  func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	embeddingFunc func(ctx context.Context, text string, dimension int) ([]float32, error)

	mu      sync.Mutex
	configs []*genai.GenerateContentConfig
}

func (m *mockGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.mu.Lock()
	m.configs = append(m.configs, config)
	m.mu.Unlock()

	if m.generateFunc != nil {
		return m.generateFunc(ctx, contents, config)
	}
	return nil, errors.New("not implemented")
}

func (m *mockGemini) Embedding(ctx context.Context, text string, dimension int) ([]float32, error) {
	if m.embeddingFunc != nil {
		return m.embeddingFunc(ctx, text, dimension)
	}
	return embedText(text, dimension), nil
}

// embedText returns a deterministic unit vector: equal texts get equal vectors and
// different texts are nearly orthogonal
func embedText(text string, dimension int) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	rnd := rand.New(rand.NewSource(int64(h.Sum64())))

	v := make([]float32, dimension)
	var norm float64
	for i := range v {
		v[i] = float32(rnd.NormFloat64())
		norm += float64(v[i]) * float64(v[i])
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

func isGrounded(config *genai.GenerateContentConfig) bool {
	return config != nil && len(config.Tools) > 0 && config.Tools[0].GoogleSearch != nil
}

func isToolMode(config *genai.GenerateContentConfig) bool {
	return config != nil && config.ThinkingConfig != nil && !isGrounded(config) && !isSummary(config)
}

// isSummary detects the summarizer request by its system instruction
func isSummary(config *genai.GenerateContentConfig) bool {
	if config == nil || config.SystemInstruction == nil || len(config.SystemInstruction.Parts) == 0 {
		return false
	}
	return config.SystemInstruction.Parts[0].Text == "You summarize conversations between a user and their personal assistant."
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: genai.NewContentFromText(text, genai.RoleModel)},
		},
	}
}

func callResponse(text, name string, args map[string]any) *genai.GenerateContentResponse {
	var parts []*genai.Part
	if text != "" {
		parts = append(parts, genai.NewPartFromText(text))
	}
	parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{Name: name, Args: args}})
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: genai.NewContentFromParts(parts, genai.RoleModel)},
		},
	}
}

// userText joins the text parts of the first content
func userText(contents []*genai.Content) string {
	if len(contents) == 0 {
		return ""
	}
	var s string
	for _, p := range contents[0].Parts {
		s += p.Text + "\n"
	}
	return s
}
