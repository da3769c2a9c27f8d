package tool

import (
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// InputSchema builds the JSON Schema of a tool's arguments
func (s Spec) InputSchema() *jsonschema.Schema {
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(s.Parameters)),
	}

	for _, p := range s.Parameters {
		schema.Properties[p.Name] = &jsonschema.Schema{
			Type:        string(p.Type),
			Description: p.Description,
		}
		if p.Required {
			schema.Required = append(schema.Required, p.Name)
		}
	}

	return schema
}

// FunctionDeclaration converts the spec into a Gemini function declaration
func (s Spec) FunctionDeclaration() (*genai.FunctionDeclaration, error) {
	params, err := convertJSONSchemaToGenai(s.InputSchema())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to convert tool schema", goerr.V("tool", s.Name))
	}

	return &genai.FunctionDeclaration{
		Name:        s.Name,
		Description: s.Description,
		Parameters:  params,
	}, nil
}

// convertJSONSchemaToGenai converts JSON Schema to Gemini genai.Schema
func convertJSONSchemaToGenai(schema *jsonschema.Schema) (*genai.Schema, error) {
	if schema == nil {
		return nil, nil
	}

	genaiSchema := &genai.Schema{}

	switch schema.Type {
	case "object":
		genaiSchema.Type = genai.TypeObject
	case "string":
		genaiSchema.Type = genai.TypeString
	case "number", "integer":
		genaiSchema.Type = genai.TypeNumber
	case "boolean":
		genaiSchema.Type = genai.TypeBoolean
	default:
		return nil, goerr.New("unsupported schema type", goerr.V("type", schema.Type))
	}

	if schema.Description != "" {
		genaiSchema.Description = schema.Description
	}

	if len(schema.Properties) > 0 {
		genaiSchema.Properties = make(map[string]*genai.Schema)
		for name, propSchema := range schema.Properties {
			converted, err := convertJSONSchemaToGenai(propSchema)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to convert property schema",
					goerr.V("property", name))
			}
			genaiSchema.Properties[name] = converted
		}
	}

	if len(schema.Required) > 0 {
		genaiSchema.Required = schema.Required
	}

	return genaiSchema, nil
}
