package chat

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/zuychin03/zuychin-assistant/pkg/adapter"
	"github.com/zuychin03/zuychin-assistant/pkg/model"
	"github.com/zuychin03/zuychin-assistant/pkg/tool"
	"github.com/zuychin03/zuychin-assistant/pkg/utils/logging"
	"google.golang.org/genai"
)

const (
	defaultMaxRounds = 5
	thinkingBudgetOn = 8192

	// returned when the tool loop ends without any text
	fallbackReply = "Sorry, I could not finish working on that. Could you try asking again in a different way?"
)

// GenerateInput is everything the model sees in one turn
type GenerateInput struct {
	SystemPrompt   string
	MemorySection  string
	HistorySection string
	Message        string
	Attachments    []*model.Attachment

	ToolsEnabled    bool
	ThinkingEnabled bool
}

// Orchestrator produces the reply of a turn. It tries grounded generation first and
// falls back to a bounded tool-calling loop for the rest of the turn.
type Orchestrator struct {
	gemini    adapter.Gemini
	registry  *tool.Registry
	maxRounds int
	modes     []generationMode
}

// OrchestratorOption configures Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithMaxRounds bounds the number of model calls in tool mode
func WithMaxRounds(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxRounds = n
		}
	}
}

// NewOrchestrator creates a new Orchestrator. registry may be nil.
func NewOrchestrator(gemini adapter.Gemini, registry *tool.Registry, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		gemini:    gemini,
		registry:  registry,
		maxRounds: defaultMaxRounds,
		modes:     []generationMode{groundedMode{}, toolMode{}},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Generate returns the final reply text. The error of the last attempted mode is
// returned when every mode fails.
func (o *Orchestrator) Generate(ctx context.Context, input *GenerateInput) (string, error) {
	contents := buildContents(input)

	var lastErr error
	for _, mode := range o.modes {
		reply, err := mode.generate(ctx, o, contents, input)
		if err == nil {
			return reply, nil
		}
		if ctx.Err() != nil {
			return "", goerr.Wrap(err, "generation aborted", goerr.V("mode", mode.String()))
		}

		logging.From(ctx).Warn("generation mode failed", "mode", mode.String(), "error", err)
		lastErr = goerr.Wrap(err, "failed to generate reply", goerr.V("mode", mode.String()))
	}

	return "", lastErr
}

// baseConfig carries the settings shared by every mode
func baseConfig(systemPrompt string, thinking bool) *genai.GenerateContentConfig {
	budget := int32(0)
	if thinking {
		budget = thinkingBudgetOn
	}

	cfg := &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &budget,
		},
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, "")
	}
	return cfg
}

// buildContents lays out the user turn: memory, history, current message, then attachments
func buildContents(input *GenerateInput) []*genai.Content {
	var parts []*genai.Part
	if s := strings.TrimSpace(input.MemorySection); s != "" {
		parts = append(parts, genai.NewPartFromText("## Relevant Memories\n"+s))
	}
	if s := strings.TrimSpace(input.HistorySection); s != "" {
		parts = append(parts, genai.NewPartFromText("## Conversation History\n"+s))
	}
	parts = append(parts, genai.NewPartFromText("## Current Message\n"+input.Message))

	for _, a := range input.Attachments {
		if a == nil || len(a.Data) == 0 {
			continue
		}
		parts = append(parts, genai.NewPartFromBytes(a.Data, a.MIMEType))
	}

	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}

// responseParts returns the visible text and function calls of the first candidate
func responseParts(resp *genai.GenerateContentResponse) (string, []*genai.FunctionCall) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var text strings.Builder
	var calls []*genai.FunctionCall
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			calls = append(calls, part.FunctionCall)
		}
	}
	return strings.TrimSpace(text.String()), calls
}

var errNoCandidate = goerr.New("model returned no candidate")

// generationMode is one way of asking the model for a reply
type generationMode interface {
	String() string
	generate(ctx context.Context, o *Orchestrator, contents []*genai.Content, input *GenerateInput) (string, error)
}

// groundedMode enables web search grounding and no callable tools
type groundedMode struct{}

func (groundedMode) String() string { return "grounded" }

func (groundedMode) generate(ctx context.Context, o *Orchestrator, contents []*genai.Content, input *GenerateInput) (string, error) {
	cfg := baseConfig(input.SystemPrompt, input.ThinkingEnabled)
	cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}

	resp, err := o.gemini.GenerateContent(ctx, contents, cfg)
	if err != nil {
		return "", err
	}

	text, _ := responseParts(resp)
	if text == "" {
		return "", goerr.Wrap(errNoCandidate, "grounded response has no text")
	}
	return text, nil
}

// toolMode enables the registry declarations and no grounding
type toolMode struct{}

func (toolMode) String() string { return "tool" }

type loopState int

const (
	stateAwaitingModel loopState = iota
	stateDispatchingTool
	stateDone
)

func (toolMode) generate(ctx context.Context, o *Orchestrator, contents []*genai.Content, input *GenerateInput) (string, error) {
	cfg := baseConfig(input.SystemPrompt, input.ThinkingEnabled)
	if input.ToolsEnabled && o.registry != nil {
		cfg.Tools = o.registry.Specs()
		if p := o.registry.Prompts(ctx); p != "" {
			cfg.SystemInstruction = genai.NewContentFromText(strings.TrimSpace(input.SystemPrompt+"\n\n"+p), "")
		}
	}

	history := append([]*genai.Content{}, contents...)
	logger := logging.From(ctx)

	var (
		state    = stateAwaitingModel
		round    int
		lastText string
		pending  []*genai.FunctionCall
	)

	for state != stateDone {
		switch state {
		case stateAwaitingModel:
			resp, err := o.gemini.GenerateContent(ctx, history, cfg)
			round++
			if err != nil {
				return "", goerr.Wrap(err, "failed to generate content", goerr.V("round", round))
			}
			if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				if round == 1 {
					return "", errNoCandidate
				}
				state = stateDone
				continue
			}

			history = append(history, resp.Candidates[0].Content)
			text, calls := responseParts(resp)
			if text != "" {
				lastText = text
			}

			switch {
			case len(calls) == 0:
				state = stateDone
			case round >= o.maxRounds:
				logger.Warn("tool loop reached round cap", "rounds", round, "pending", len(calls))
				state = stateDone
			default:
				pending = calls
				state = stateDispatchingTool
			}

		case stateDispatchingTool:
			parts := make([]*genai.Part, 0, len(pending))
			for _, fc := range pending {
				logger.Info("calling tool", "tool", fc.Name, "round", round)
				resp := o.registry.ExecuteCall(ctx, *fc)
				parts = append(parts, &genai.Part{FunctionResponse: resp})
			}
			history = append(history, &genai.Content{Role: genai.RoleUser, Parts: parts})
			pending = nil
			state = stateAwaitingModel
		}
	}

	if lastText == "" {
		return fallbackReply, nil
	}
	return lastText, nil
}
