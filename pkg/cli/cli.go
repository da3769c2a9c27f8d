// Package cli is the command line entry point of the assistant.
package cli

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"github.com/zuychin03/zuychin-assistant/pkg/utils/logging"
)

// Version is reported to MCP clients
var Version = "dev"

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	// .env does not override variables already set in the environment
	_ = godotenv.Load()

	var logCfg loggingConfig
	cmd := &cli.Command{
		Name:  "zuychin",
		Usage: "Personal assistant with long term memory",
		Flags: logCfg.flags(),
		Commands: []*cli.Command{
			serveCommand(&logCfg),
			chatCommand(&logCfg),
			mcpCommand(&logCfg),
			conversationCommand(&logCfg),
			profileCommand(&logCfg),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		logging.Default().Error("command failed", "error", err)
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
