package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/zuychin03/zuychin-assistant/pkg/utils/logging"
	"google.golang.org/genai"
)

// Registry manages available tools for the LLM. The set is fixed at construction.
type Registry struct {
	tools    map[string]Tool
	allTools []Tool
	decls    []*genai.FunctionDeclaration
}

// New creates a new tool registry with the given tools
func New(tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools:    make(map[string]Tool),
		allTools: tools,
	}

	for _, t := range tools {
		spec := t.Spec()
		if _, exists := r.tools[spec.Name]; exists {
			return nil, goerr.New("duplicated tool name", goerr.V("name", spec.Name))
		}

		decl, err := spec.FunctionDeclaration()
		if err != nil {
			return nil, err
		}
		r.tools[spec.Name] = t
		r.decls = append(r.decls, decl)
	}

	return r, nil
}

// Specs returns all tool specifications for Gemini function calling
func (r *Registry) Specs() []*genai.Tool {
	if r == nil || len(r.decls) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: r.decls}}
}

// Tools returns registered tools in declaration order
func (r *Registry) Tools() []Tool {
	if r == nil {
		return nil
	}
	return r.allTools
}

// Prompts returns all tool prompts concatenated
func (r *Registry) Prompts(ctx context.Context) string {
	if r == nil {
		return ""
	}

	var prompts []string
	for _, t := range r.allTools {
		if prompt := t.Prompt(ctx); prompt != "" {
			prompts = append(prompts, prompt)
		}
	}
	return strings.Join(prompts, "\n\n")
}

// ErrUnknownTool is returned by Run for a name that is not registered
var ErrUnknownTool = goerr.New("unknown tool")

// Run executes the named tool after validating args against its parameters. Validation
// and tool errors are returned as is.
func (r *Registry) Run(ctx context.Context, name string, args map[string]any) (string, error) {
	var t Tool
	if r != nil {
		t = r.tools[name]
	}
	if t == nil {
		return "", goerr.Wrap(ErrUnknownTool, "tool is not registered", goerr.V("name", name))
	}

	if args == nil {
		args = map[string]any{}
	}

	logger := logging.From(ctx).With("tool", name)
	if err := validateArgs(t.Spec(), args); err != nil {
		logger.Warn("invalid tool arguments", "error", err)
		return "", err
	}

	result, err := t.Execute(ctx, args)
	if err != nil {
		logger.Warn("tool execution failed", "error", err)
		return "", err
	}

	logger.Debug("tool executed", "args", args)
	return result, nil
}

// Execute runs the named tool. It never fails: unknown tools, invalid arguments and
// tool errors are reported as text so the generation loop can continue.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) string {
	result, err := r.Run(ctx, name, args)
	switch {
	case errors.Is(err, ErrUnknownTool):
		return fmt.Sprintf("unknown tool: %s", name)
	case err != nil:
		return fmt.Sprintf("Failed to run %s: %s", name, err.Error())
	}
	return result
}

// ExecuteCall runs a Gemini function call and wraps the text result as a function response
func (r *Registry) ExecuteCall(ctx context.Context, fc genai.FunctionCall) *genai.FunctionResponse {
	return &genai.FunctionResponse{
		ID:       fc.ID,
		Name:     fc.Name,
		Response: map[string]any{"result": r.Execute(ctx, fc.Name, fc.Args)},
	}
}
