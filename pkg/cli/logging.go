package cli

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"
	"github.com/zuychin03/zuychin-assistant/pkg/utils/logging"
)

type loggingConfig struct {
	level  string
	format string
	source bool
}

func (cfg *loggingConfig) flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("ZUYCHIN_LOG_LEVEL"),
			Destination: &cfg.level,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       string(logging.FormatConsole),
			Sources:     cli.EnvVars("ZUYCHIN_LOG_FORMAT"),
			Destination: &cfg.format,
		},
		&cli.BoolFlag{
			Name:        "log-source",
			Usage:       "Add source position to log records",
			Sources:     cli.EnvVars("ZUYCHIN_LOG_SOURCE"),
			Destination: &cfg.source,
		},
	}
}

// configure installs the logger as default and into ctx. Logs go to stderr so stdout
// stays free for replies and the MCP stdio transport.
func (cfg *loggingConfig) configure(ctx context.Context) context.Context {
	logger := logging.New(cfg.level, os.Stderr,
		logging.WithFormat(logging.Format(cfg.format)),
		logging.WithSource(cfg.source),
	)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}
