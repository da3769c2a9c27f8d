package tool

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
)

// StringArg returns a string argument. ok is false when the argument is absent or empty.
func StringArg(args map[string]any, name string) (string, bool) {
	v, ok := args[name].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// NumberArg returns a numeric argument. JSON decoding and the model may deliver
// numbers as float64, int, json.Number or a numeric string.
func NumberArg(args map[string]any, name string) (float64, bool) {
	switch v := args[name].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// BoolArg returns a boolean argument
func BoolArg(args map[string]any, name string) (bool, bool) {
	switch v := args[name].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(v)
		return b, err == nil
	default:
		return false, false
	}
}

// validateArgs checks required parameters and declared types
func validateArgs(spec Spec, args map[string]any) error {
	for _, p := range spec.Parameters {
		if _, exists := args[p.Name]; !exists {
			if p.Required {
				return goerr.New("missing required parameter", goerr.V("parameter", p.Name))
			}
			continue
		}

		var ok bool
		switch p.Type {
		case TypeString:
			_, ok = args[p.Name].(string)
		case TypeNumber:
			_, ok = NumberArg(args, p.Name)
		case TypeBoolean:
			_, ok = BoolArg(args, p.Name)
		}
		if !ok {
			return goerr.New("invalid parameter type",
				goerr.V("parameter", p.Name),
				goerr.V("expected", p.Type))
		}
	}
	return nil
}

type ownerKey struct{}

// WithOwner attaches the owner of the current turn so tools can scope memory access
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// OwnerFrom returns the owner attached by WithOwner, or empty string
func OwnerFrom(ctx context.Context) string {
	if v, ok := ctx.Value(ownerKey{}).(string); ok {
		return v
	}
	return ""
}
