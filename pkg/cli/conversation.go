package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"github.com/zuychin03/zuychin-assistant/pkg/adapter"
	"github.com/zuychin03/zuychin-assistant/pkg/model"
	"github.com/zuychin03/zuychin-assistant/pkg/usecase/conversation"
)

func conversationCommand(logCfg *loggingConfig) *cli.Command {
	return &cli.Command{
		Name:    "conversation",
		Aliases: []string{"conv"},
		Usage:   "Manage conversations",
		Commands: []*cli.Command{
			conversationListCommand(logCfg),
			conversationShowCommand(logCfg),
			conversationDeleteCommand(logCfg),
			conversationArchiveCommand(logCfg),
			conversationRestoreCommand(logCfg),
		},
	}
}

func conversationListCommand(logCfg *loggingConfig) *cli.Command {
	var (
		cfg    = newConfig()
		offset int64
		limit  int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "offset",
			Usage:       "Offset for pagination",
			Value:       0,
			Destination: &offset,
		},
		&cli.IntFlag{
			Name:        "limit",
			Usage:       "Maximum number of conversations to list",
			Value:       50,
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List conversations, most recently updated first",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = logCfg.configure(ctx)
			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			convs, err := conversation.New(repo).List(ctx, int(offset), int(limit))
			if err != nil {
				return err
			}

			if len(convs) == 0 {
				fmt.Fprintln(c.Root().Writer, "No conversations found")
				return nil
			}
			for _, conv := range convs {
				fmt.Fprintf(c.Root().Writer, "%s\t%s\t%s\n",
					conv.ID,
					conv.UpdatedAt.Format("2006-01-02 15:04:05"),
					conv.Title,
				)
			}
			return nil
		},
	}
}

func conversationIDArg(c *cli.Command) (model.ConversationID, error) {
	id := c.Args().First()
	if id == "" {
		return "", goerr.New("conversation ID is required")
	}
	return model.ConversationID(id), nil
}

func conversationShowCommand(logCfg *loggingConfig) *cli.Command {
	var (
		cfg   = newConfig()
		limit int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "limit",
			Usage:       "Maximum number of messages to show",
			Value:       100,
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(cfg)...)

	return &cli.Command{
		Name:      "show",
		Usage:     "Show the messages of a conversation",
		ArgsUsage: "<conversation-id>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = logCfg.configure(ctx)
			id, err := conversationIDArg(c)
			if err != nil {
				return err
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			conv, msgs, err := conversation.New(repo).Show(ctx, id, int(limit))
			if err != nil {
				return err
			}

			w := c.Root().Writer
			fmt.Fprintf(w, "# %s\n\n", conv.Title)
			for _, msg := range msgs {
				fmt.Fprintf(w, "[%s] %s: %s\n", msg.CreatedAt.Format("2006-01-02 15:04"), msg.Role.Label(), msg.Content)
			}
			return nil
		},
	}
}

func conversationDeleteCommand(logCfg *loggingConfig) *cli.Command {
	cfg := newConfig()

	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a conversation and its messages",
		ArgsUsage: "<conversation-id>",
		Flags:     globalFlags(cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = logCfg.configure(ctx)
			id, err := conversationIDArg(c)
			if err != nil {
				return err
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			if err := conversation.New(repo).Delete(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "Conversation deleted: %s\n", id)
			return nil
		},
	}
}

func archiveFlags(bucket, prefix *string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket holding archives",
			Sources:     cli.EnvVars("ZUYCHIN_ARCHIVE_BUCKET"),
			Destination: bucket,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "prefix",
			Usage:       "Object key prefix",
			Sources:     cli.EnvVars("ZUYCHIN_ARCHIVE_PREFIX"),
			Destination: prefix,
		},
	}
}

func conversationArchiveCommand(logCfg *loggingConfig) *cli.Command {
	var (
		cfg         = newConfig()
		bucket      string
		prefix      string
		deleteAfter bool
	)

	flags := append(archiveFlags(&bucket, &prefix),
		&cli.BoolFlag{
			Name:        "delete",
			Usage:       "Delete the conversation after archiving",
			Destination: &deleteAfter,
		},
	)
	flags = append(flags, globalFlags(cfg)...)

	return &cli.Command{
		Name:      "archive",
		Usage:     "Save a conversation transcript to Cloud Storage as JSON",
		ArgsUsage: "<conversation-id>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = logCfg.configure(ctx)
			id, err := conversationIDArg(c)
			if err != nil {
				return err
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			storage, err := adapter.NewStorage(ctx, bucket, adapter.WithStoragePrefix(prefix))
			if err != nil {
				return err
			}

			key, err := conversation.New(repo, conversation.WithStorage(storage)).Archive(ctx, id, deleteAfter)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "Archived to gs://%s/%s%s\n", bucket, prefix, key)
			return nil
		},
	}
}

func conversationRestoreCommand(logCfg *loggingConfig) *cli.Command {
	var (
		cfg    = newConfig()
		bucket string
		prefix string
	)

	flags := append(archiveFlags(&bucket, &prefix), globalFlags(cfg)...)

	return &cli.Command{
		Name:      "restore",
		Usage:     "Load an archived conversation from Cloud Storage back into the database",
		ArgsUsage: "<conversation-id>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = logCfg.configure(ctx)
			id, err := conversationIDArg(c)
			if err != nil {
				return err
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			storage, err := adapter.NewStorage(ctx, bucket, adapter.WithStoragePrefix(prefix))
			if err != nil {
				return err
			}

			archive, err := conversation.New(repo, conversation.WithStorage(storage)).Restore(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "Restored %s (%d messages, archived %s)\n",
				id, len(archive.Messages), archive.ArchivedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}
