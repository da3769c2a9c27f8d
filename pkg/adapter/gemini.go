package adapter

import (
	"context"
	"math"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

var ErrEmbeddingTooShort = goerr.New("embedding is shorter than required dimension")

type Gemini interface {
	GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	// Embedding returns a vector of exactly dimension elements
	Embedding(ctx context.Context, text string, dimension int) ([]float32, error)
}

type GeminiClient struct {
	client          *genai.Client
	generativeModel string
	embeddingModel  string
}

type GeminiOption func(*GeminiClient)

func WithGenerativeModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.generativeModel = model
	}
}

func WithEmbeddingModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.embeddingModel = model
	}
}

// NewGemini creates a client for Vertex AI when projectID is set, otherwise for the
// Gemini API authenticated by apiKey.
func NewGemini(ctx context.Context, projectID, location, apiKey string, opts ...GeminiOption) (*GeminiClient, error) {
	cfg := &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	}
	if projectID == "" {
		cfg = &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &GeminiClient{
		client:          client,
		generativeModel: "gemini-2.5-flash",
		embeddingModel:  "gemini-embedding-001",
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

func (g *GeminiClient) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, contents, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate content", goerr.V("model", g.generativeModel))
	}
	return resp, nil
}

func (g *GeminiClient) Embedding(ctx context.Context, text string, dimension int) ([]float32, error) {
	dim := int32(dimension)
	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
		TaskType:             "SEMANTIC_SIMILARITY",
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed content", goerr.V("model", g.embeddingModel))
	}

	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, goerr.New("no embedding returned", goerr.V("model", g.embeddingModel))
	}

	return ResizeEmbedding(resp.Embeddings[0].Values, dimension)
}

// ResizeEmbedding pins a vector to dimension elements. Longer vectors are truncated and
// L2-normalized again so cosine similarity stays meaningful. Shorter vectors are rejected.
func ResizeEmbedding(values []float32, dimension int) ([]float32, error) {
	if len(values) < dimension {
		return nil, goerr.Wrap(ErrEmbeddingTooShort, "cannot resize embedding",
			goerr.V("length", len(values)),
			goerr.V("dimension", dimension))
	}
	if len(values) == dimension {
		return values, nil
	}

	resized := make([]float32, dimension)
	copy(resized, values[:dimension])

	var norm float64
	for _, v := range resized {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return resized, nil
	}

	scale := 1 / math.Sqrt(norm)
	for i := range resized {
		resized[i] = float32(float64(resized[i]) * scale)
	}
	return resized, nil
}
