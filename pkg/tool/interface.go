package tool

import (
	"context"

	"github.com/urfave/cli/v3"
)

// ParameterType is the type of a tool parameter
type ParameterType string

const (
	TypeString  ParameterType = "string"
	TypeNumber  ParameterType = "number"
	TypeBoolean ParameterType = "boolean"
)

// Parameter describes a single argument of a tool
type Parameter struct {
	Name        string
	Type        ParameterType
	Description string
	Required    bool
}

// Spec is the static declaration of a tool
type Spec struct {
	Name        string
	Description string
	Parameters  []Parameter
}

// Tool represents a capability that can be called by the LLM
type Tool interface {
	// Spec returns the tool declaration
	Spec() Spec

	// Execute runs the tool with the given arguments and returns a text result
	Execute(ctx context.Context, args map[string]any) (string, error)

	// Prompt returns additional information to be added to the system prompt
	// Returns empty string if no additional prompt is needed
	Prompt(ctx context.Context) string

	// Flags returns CLI flags for this tool
	// Returns nil if no flags are needed
	Flags() []cli.Flag
}
