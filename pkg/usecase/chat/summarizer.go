package chat

import (
	"context"
	_ "embed"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/zuychin03/zuychin-assistant/pkg/adapter"
	"google.golang.org/genai"
)

//go:embed prompt/summarize.md
var summarizePromptRaw string

// GeminiSummarizer summarizes transcripts with a zero thinking budget
type GeminiSummarizer struct {
	gemini adapter.Gemini
}

// NewSummarizer creates a new GeminiSummarizer
func NewSummarizer(gemini adapter.Gemini) *GeminiSummarizer {
	return &GeminiSummarizer{gemini: gemini}
}

func (s *GeminiSummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", goerr.New("transcript is empty")
	}

	contents := []*genai.Content{
		genai.NewContentFromText(transcript, genai.RoleUser),
		genai.NewContentFromText(summarizePromptRaw, genai.RoleUser),
	}

	thinkingBudget := int32(0)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText("You summarize conversations between a user and their personal assistant.", ""),
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
	}

	resp, err := s.gemini.GenerateContent(ctx, contents, config)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate summary")
	}

	summary, _ := responseParts(resp)
	if summary == "" {
		return "", goerr.New("empty summary generated")
	}

	return summary, nil
}
