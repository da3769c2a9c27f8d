package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"github.com/zuychin03/zuychin-assistant/pkg/usecase/profile"
)

func profileCommand(logCfg *loggingConfig) *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "Show or change the owner's system prompt",
		Commands: []*cli.Command{
			profileShowCommand(logCfg),
			profileSetCommand(logCfg),
		},
	}
}

func profileShowCommand(logCfg *loggingConfig) *cli.Command {
	cfg := newConfig()

	return &cli.Command{
		Name:  "show",
		Usage: "Print the stored system prompt",
		Flags: globalFlags(cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = logCfg.configure(ctx)
			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			p, err := profile.New(repo, nil).Get(ctx, cfg.ownerID)
			if err != nil {
				return err
			}
			if p.SystemPrompt == "" {
				fmt.Fprintln(c.Root().Writer, "(built-in system prompt)")
				return nil
			}
			fmt.Fprintln(c.Root().Writer, p.SystemPrompt)
			return nil
		},
	}
}

func profileSetCommand(logCfg *loggingConfig) *cli.Command {
	var (
		cfg   = newConfig()
		input string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "File holding the system prompt. Empty content restores the built-in one.",
			Destination: &input,
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(cfg)...)

	return &cli.Command{
		Name:  "set",
		Usage: "Replace the system prompt",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = logCfg.configure(ctx)
			data, err := os.ReadFile(input)
			if err != nil {
				return goerr.Wrap(err, "failed to read system prompt", goerr.V("path", input))
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			// running servers pick the change up when their profile cache expires
			if _, err := profile.New(repo, nil).SetSystemPrompt(ctx, cfg.ownerID, string(data)); err != nil {
				return err
			}
			fmt.Fprintln(c.Root().Writer, "System prompt updated")
			return nil
		},
	}
}
