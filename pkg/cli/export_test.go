package cli

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/zuychin03/zuychin-assistant/pkg/repository"
	"github.com/zuychin03/zuychin-assistant/pkg/tool"
	"github.com/zuychin03/zuychin-assistant/pkg/utils/async"
)

func NewTaskRunner(turnTimeout time.Duration) *async.Runner {
	return newTaskRunner(turnTimeout)
}

// BuildRegistry parses args with the LLM flags and builds the registry the way commands do
func BuildRegistry(ctx context.Context, args ...string) (*tool.Registry, error) {
	var (
		cfg      = newConfig()
		registry *tool.Registry
	)
	cmd := &cli.Command{
		Name:  "test",
		Flags: llmFlags(cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			var err error
			registry, err = cfg.newRegistry(repository.NewMemory(), nil)
			return err
		},
	}
	if err := cmd.Run(ctx, append([]string{"test"}, args...)); err != nil {
		return nil, err
	}
	return registry, nil
}
