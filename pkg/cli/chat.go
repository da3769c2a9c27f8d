package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"github.com/zuychin03/zuychin-assistant/pkg/channel"
	"github.com/zuychin03/zuychin-assistant/pkg/model"
)

const chatHelp = `Commands:
  /new           start a new conversation
  /think         toggle extended thinking
  /attach <path> attach a file to the next message
  exit           quit`

func chatCommand(logCfg *loggingConfig) *cli.Command {
	var (
		cfg            = newConfig()
		conversationID string
		thinking       bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "conversation-id",
			Aliases:     []string{"c"},
			Usage:       "Continue an existing conversation",
			Sources:     cli.EnvVars("ZUYCHIN_CONVERSATION_ID"),
			Destination: &conversationID,
		},
		&cli.BoolFlag{
			Name:        "thinking",
			Usage:       "Enable extended thinking",
			Sources:     cli.EnvVars("ZUYCHIN_THINKING"),
			Destination: &thinking,
		},
	}
	flags = append(flags, globalFlags(cfg)...)
	flags = append(flags, llmFlags(cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Talk to the assistant in the terminal",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = logCfg.configure(ctx)

			rt, err := cfg.newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			dispatcher := channel.NewDispatcher(rt.pipeline, cfg.ownerID, channel.WithRateLimit(0, 0))

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return goerr.Wrap(err, "failed to initialize readline")
			}
			defer rl.Close()

			s := &chatSession{
				w:          c.Root().Writer,
				dispatcher: dispatcher,
				ownerID:    cfg.ownerID,
				convID:     model.ConversationID(conversationID),
				thinking:   thinking,
			}
			if s.convID == "" {
				s.convID = model.NewConversationID()
			}

			fmt.Fprintf(s.w, "Conversation %s. Type /help for commands.\n", s.convID)

			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					continue
				}
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				line = strings.TrimSpace(line)
				if line == "exit" || line == "quit" {
					return nil
				}
				s.handle(ctx, line)
			}
		},
	}
}

type chatSession struct {
	w          io.Writer
	dispatcher *channel.Dispatcher
	ownerID    string
	convID     model.ConversationID
	thinking   bool
	pending    []*model.Attachment
}

func (s *chatSession) handle(ctx context.Context, line string) {
	switch {
	case line == "":
		return
	case line == "/help":
		fmt.Fprintln(s.w, chatHelp)
	case line == "/new":
		s.convID = model.NewConversationID()
		s.pending = nil
		fmt.Fprintf(s.w, "Conversation %s.\n", s.convID)
	case line == "/think":
		s.thinking = !s.thinking
		fmt.Fprintf(s.w, "Thinking: %v\n", s.thinking)
	case strings.HasPrefix(line, "/attach "):
		a, err := readAttachment(strings.TrimSpace(strings.TrimPrefix(line, "/attach ")))
		if err != nil {
			fmt.Fprintf(s.w, "Cannot attach: %v\n", err)
			return
		}
		s.pending = append(s.pending, a)
		fmt.Fprintf(s.w, "Attached %s (%s).\n", a.Name, a.MIMEType)
	default:
		s.send(ctx, line)
	}
}

func (s *chatSession) send(ctx context.Context, text string) {
	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	sp.Suffix = " thinking..."
	sp.Start()

	result, err := s.dispatcher.Process(ctx, &channel.Inbound{
		SenderID:       s.ownerID,
		Text:           text,
		Attachments:    s.pending,
		Channel:        model.ChannelCLI,
		ConversationID: s.convID,
		Thinking:       s.thinking,
	})
	sp.Stop()
	s.pending = nil

	if err != nil {
		fmt.Fprintln(s.w, channel.UserMessage(err))
		return
	}
	fmt.Fprintf(s.w, "\n%s\n\n", result.Reply)
}

func readAttachment(path string) (*model.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read file", goerr.V("path", path))
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	return &model.Attachment{
		Name:     filepath.Base(path),
		MIMEType: mimeType,
		Data:     data,
	}, nil
}
