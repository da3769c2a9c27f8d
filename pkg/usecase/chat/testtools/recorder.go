// Package testtools provides tools that record how the model called them.
package testtools

import (
	"context"
	"sync"

	"github.com/urfave/cli/v3"
	"github.com/zuychin03/zuychin-assistant/pkg/tool"
)

// Recorder is a tool returning a fixed result and recording every call
type Recorder struct {
	spec   tool.Spec
	result string

	mu    sync.Mutex
	calls []map[string]any
}

// NewRecorder creates a Recorder named name
func NewRecorder(name, result string, params ...tool.Parameter) *Recorder {
	return &Recorder{
		spec: tool.Spec{
			Name:        name,
			Description: "test tool " + name,
			Parameters:  params,
		},
		result: result,
	}
}

func (r *Recorder) Spec() tool.Spec {
	return r.spec
}

func (r *Recorder) Execute(ctx context.Context, args map[string]any) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, args)
	return r.result, nil
}

func (r *Recorder) Prompt(ctx context.Context) string {
	return ""
}

func (r *Recorder) Flags() []cli.Flag {
	return nil
}

// CallCount returns how many times the tool was executed
func (r *Recorder) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Calls returns the arguments of every call
func (r *Recorder) Calls() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]any(nil), r.calls...)
}
