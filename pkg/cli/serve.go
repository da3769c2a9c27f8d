package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"github.com/zuychin03/zuychin-assistant/pkg/channel"
	"github.com/zuychin03/zuychin-assistant/pkg/channel/discord"
	"github.com/zuychin03/zuychin-assistant/pkg/channel/messenger"
	"github.com/zuychin03/zuychin-assistant/pkg/channel/meta"
	"github.com/zuychin03/zuychin-assistant/pkg/channel/web"
	"github.com/zuychin03/zuychin-assistant/pkg/channel/whatsapp"
	"github.com/zuychin03/zuychin-assistant/pkg/server"
	"github.com/zuychin03/zuychin-assistant/pkg/service/mcp"
	"github.com/zuychin03/zuychin-assistant/pkg/usecase/conversation"
	"github.com/zuychin03/zuychin-assistant/pkg/usecase/profile"
	"github.com/zuychin03/zuychin-assistant/pkg/utils/logging"
)

type serveConfig struct {
	addr    string
	mcpHTTP bool

	rateLimit float64
	rateBurst int64

	discord discord.Config

	whatsapp      whatsapp.Config
	whatsappToken string

	messenger      messenger.Config
	messengerToken string
}

func serveFlags(cfg *serveConfig) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP listen address",
			Value:       ":8080",
			Sources:     cli.EnvVars("ZUYCHIN_ADDR"),
			Destination: &cfg.addr,
		},
		&cli.BoolFlag{
			Name:        "mcp-http",
			Usage:       "Serve the tools over MCP streamable HTTP on /mcp",
			Sources:     cli.EnvVars("ZUYCHIN_MCP_HTTP"),
			Destination: &cfg.mcpHTTP,
		},
		&cli.FloatFlag{
			Name:        "rate-limit",
			Usage:       "Messages per second allowed per sender on bot and webhook channels (0 disables)",
			Value:       1,
			Sources:     cli.EnvVars("ZUYCHIN_RATE_LIMIT"),
			Destination: &cfg.rateLimit,
		},
		&cli.IntFlag{
			Name:        "rate-burst",
			Usage:       "Burst of the per sender rate limit",
			Value:       5,
			Sources:     cli.EnvVars("ZUYCHIN_RATE_BURST"),
			Destination: &cfg.rateBurst,
		},
		&cli.StringFlag{
			Name:        "discord-token",
			Usage:       "Discord bot token. The bot is not started without it.",
			Sources:     cli.EnvVars("ZUYCHIN_DISCORD_TOKEN"),
			Destination: &cfg.discord.Token,
		},
		&cli.StringSliceFlag{
			Name:        "discord-channel",
			Usage:       "Discord channel ID to listen on (repeatable, default all)",
			Sources:     cli.EnvVars("ZUYCHIN_DISCORD_CHANNELS"),
			Destination: &cfg.discord.AllowedChannels,
		},
		&cli.StringFlag{
			Name:        "whatsapp-token",
			Usage:       "WhatsApp Cloud API access token. The webhook is not mounted without it.",
			Sources:     cli.EnvVars("ZUYCHIN_WHATSAPP_TOKEN"),
			Destination: &cfg.whatsappToken,
		},
		&cli.StringFlag{
			Name:        "whatsapp-phone-number-id",
			Usage:       "WhatsApp phone number ID replies are sent from",
			Sources:     cli.EnvVars("ZUYCHIN_WHATSAPP_PHONE_NUMBER_ID"),
			Destination: &cfg.whatsapp.PhoneNumberID,
		},
		&cli.StringFlag{
			Name:        "whatsapp-verify-token",
			Usage:       "Verify token of the WhatsApp webhook subscription",
			Sources:     cli.EnvVars("ZUYCHIN_WHATSAPP_VERIFY_TOKEN"),
			Destination: &cfg.whatsapp.VerifyToken,
		},
		&cli.StringFlag{
			Name:        "whatsapp-app-secret",
			Usage:       "App secret signing WhatsApp webhook payloads",
			Sources:     cli.EnvVars("ZUYCHIN_WHATSAPP_APP_SECRET"),
			Destination: &cfg.whatsapp.AppSecret,
		},
		&cli.StringFlag{
			Name:        "messenger-token",
			Usage:       "Messenger page access token. The webhook is not mounted without it.",
			Sources:     cli.EnvVars("ZUYCHIN_MESSENGER_TOKEN"),
			Destination: &cfg.messengerToken,
		},
		&cli.StringFlag{
			Name:        "messenger-verify-token",
			Usage:       "Verify token of the Messenger webhook subscription",
			Sources:     cli.EnvVars("ZUYCHIN_MESSENGER_VERIFY_TOKEN"),
			Destination: &cfg.messenger.VerifyToken,
		},
		&cli.StringFlag{
			Name:        "messenger-app-secret",
			Usage:       "App secret signing Messenger webhook payloads",
			Sources:     cli.EnvVars("ZUYCHIN_MESSENGER_APP_SECRET"),
			Destination: &cfg.messenger.AppSecret,
		},
	}
}

func serveCommand(logCfg *loggingConfig) *cli.Command {
	cfg := newConfig()
	var sc serveConfig

	flags := serveFlags(&sc)
	flags = append(flags, globalFlags(cfg)...)
	flags = append(flags, llmFlags(cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the web API, webhooks and the Discord bot",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = logCfg.configure(ctx)
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := cfg.newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			botDispatcher := channel.NewDispatcher(rt.pipeline, cfg.ownerID, channel.WithRateLimit(sc.rateLimit, int(sc.rateBurst)))
			webDispatcher := channel.NewDispatcher(rt.pipeline, cfg.ownerID, channel.WithRateLimit(0, 0))

			opts := []server.Option{
				server.WithAPI(web.New(
					webDispatcher,
					conversation.New(rt.repo),
					profile.New(rt.repo, rt.pipeline),
					cfg.ownerID,
				)),
			}

			if sc.whatsappToken != "" {
				if sc.whatsapp.PhoneNumberID == "" || sc.whatsapp.AppSecret == "" {
					return goerr.New("whatsapp-phone-number-id and whatsapp-app-secret are required with whatsapp-token")
				}
				client := meta.NewClient(sc.whatsappToken)
				opts = append(opts, server.WithWhatsApp(whatsapp.New(sc.whatsapp, client, botDispatcher, rt.runner)))
			}

			if sc.messengerToken != "" {
				if sc.messenger.AppSecret == "" {
					return goerr.New("messenger-app-secret is required with messenger-token")
				}
				client := meta.NewClient(sc.messengerToken)
				opts = append(opts, server.WithMessenger(messenger.New(sc.messenger, client, botDispatcher, rt.runner)))
			}

			if sc.mcpHTTP {
				opts = append(opts, server.WithMCP(mcp.NewServer(rt.registry, cfg.ownerID, Version).Handler()))
			}

			if sc.discord.Token != "" {
				bot := discord.New(sc.discord, botDispatcher, rt.runner)
				if err := bot.Start(ctx); err != nil {
					return err
				}
				defer func() {
					if err := bot.Close(); err != nil {
						logging.From(ctx).Warn("failed to close discord session", "error", err)
					}
				}()
			}

			return server.New(opts...).ListenAndServe(ctx, sc.addr)
		},
	}
}
