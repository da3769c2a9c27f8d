// Package whatsapp receives WhatsApp Cloud API webhooks and replies through the Graph API.
package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/zuychin03/zuychin-assistant/pkg/channel"
	"github.com/zuychin03/zuychin-assistant/pkg/channel/meta"
	"github.com/zuychin03/zuychin-assistant/pkg/model"
	"github.com/zuychin03/zuychin-assistant/pkg/utils/async"
	"github.com/zuychin03/zuychin-assistant/pkg/utils/logging"
)

// MaxMessageLength is the WhatsApp limit of one text message
const MaxMessageLength = 4096

// Config holds WhatsApp Cloud API settings
type Config struct {
	PhoneNumberID string
	VerifyToken   string
	AppSecret     string
}

// Handler serves the webhook and sends replies
type Handler struct {
	cfg        Config
	client     *meta.Client
	fetcher    channel.Fetcher
	dispatcher *channel.Dispatcher
	runner     *async.Runner
}

// New creates a new Handler. Media is downloaded with the client's access token.
func New(cfg Config, client *meta.Client, dispatcher *channel.Dispatcher, runner *async.Runner) *Handler {
	return &Handler{
		cfg:        cfg,
		client:     client,
		fetcher:    channel.NewHTTPFetcher(channel.WithFetchHeader("Authorization", "Bearer "+client.Token())),
		dispatcher: dispatcher,
		runner:     runner,
	}
}

// Routes registers the handshake and the signed message endpoint
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", meta.HandshakeHandler(h.cfg.VerifyToken))
	r.With(meta.SignatureGate(h.cfg.AppSecret)).Post("/", h.receive)
}

type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Messages []message `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type media struct {
	ID       string `json:"id"`
	MIMEType string `json:"mime_type"`
	Caption  string `json:"caption"`
}

type message struct {
	From string `json:"from"`
	ID   string `json:"id"`
	Type string `json:"type"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image    *media `json:"image"`
	Audio    *media `json:"audio"`
	Document *media `json:"document"`
}

// media returns the attached media and the caption, if any
func (m *message) media() (*media, string) {
	for _, x := range []*media{m.Image, m.Audio, m.Document} {
		if x != nil && x.ID != "" {
			return x, x.Caption
		}
	}
	return nil, ""
}

// receive acknowledges immediately and handles each message in a detached task
func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				msg := msg
				h.runner.Go(ctx, "whatsapp_message", func(ctx context.Context) error {
					return h.handle(ctx, &msg)
				})
			}
		}
	}
}

func (h *Handler) handle(ctx context.Context, msg *message) error {
	in := &channel.Inbound{
		SenderID: msg.From,
		Channel:  model.ChannelWhatsApp,
	}
	if msg.Text != nil {
		in.Text = msg.Text.Body
	}

	if m, caption := msg.media(); m != nil {
		if in.Text == "" {
			in.Text = caption
		}
		a, err := h.download(ctx, m)
		if err != nil {
			logging.From(ctx).Warn("failed to download whatsapp media", "error", err)
			return h.Send(ctx, msg.From, channel.UserMessage(err))
		}
		in.Attachments = append(in.Attachments, a)
	}

	if in.Text == "" && len(in.Attachments) == 0 {
		logging.From(ctx).Debug("ignored whatsapp message", "type", msg.Type)
		return nil
	}

	return h.dispatcher.Handle(ctx, in, h, msg.From)
}

// download resolves the media ID to a short-lived URL and fetches it
func (h *Handler) download(ctx context.Context, m *media) (*model.Attachment, error) {
	var resp struct {
		URL      string `json:"url"`
		MIMEType string `json:"mime_type"`
	}
	if err := h.client.Get(ctx, "/"+m.ID, &resp); err != nil {
		return nil, goerr.Wrap(channel.ErrAttachmentUnavailable, "failed to resolve media", goerr.V("cause", err.Error()))
	}
	if resp.URL == "" {
		return nil, goerr.Wrap(channel.ErrAttachmentUnavailable, "media has no url", goerr.V("media_id", m.ID))
	}

	a, err := h.fetcher.Fetch(ctx, resp.URL)
	if err != nil {
		var vErr *channel.ValidationError
		if errors.As(err, &vErr) {
			return nil, err
		}
		return nil, goerr.Wrap(channel.ErrAttachmentUnavailable, "failed to fetch media", goerr.V("cause", err.Error()))
	}
	if m.MIMEType != "" {
		a.MIMEType = m.MIMEType
	}
	return a, nil
}

// Send delivers text to a WhatsApp user, split into messages of at most 4096 characters
func (h *Handler) Send(ctx context.Context, to, text string) error {
	for _, chunk := range channel.SplitForSend(text, MaxMessageLength) {
		payload := map[string]any{
			"messaging_product": "whatsapp",
			"to":                to,
			"type":              "text",
			"text":              map[string]any{"body": chunk},
		}
		if err := h.client.Post(ctx, "/"+h.cfg.PhoneNumberID+"/messages", payload); err != nil {
			return goerr.Wrap(err, "failed to send whatsapp message", goerr.V("to", to))
		}
	}
	return nil
}
