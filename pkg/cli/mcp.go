package cli

import (
	"context"

	"github.com/urfave/cli/v3"
	"github.com/zuychin03/zuychin-assistant/pkg/service/mcp"
	"github.com/zuychin03/zuychin-assistant/pkg/utils/logging"
)

func mcpCommand(logCfg *loggingConfig) *cli.Command {
	cfg := newConfig()

	flags := globalFlags(cfg)
	flags = append(flags, llmFlags(cfg)...)

	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the assistant's tools to an MCP client over stdio",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = logCfg.configure(ctx)

			rt, err := cfg.newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			logging.From(ctx).Info("serving mcp over stdio", "tools", len(rt.registry.Tools()))
			return mcp.NewServer(rt.registry, cfg.ownerID, Version).RunStdio(ctx)
		},
	}
}
