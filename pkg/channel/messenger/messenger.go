// Package messenger receives Facebook Messenger webhooks and replies through the Send API.
package messenger

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/zuychin03/zuychin-assistant/pkg/channel"
	"github.com/zuychin03/zuychin-assistant/pkg/channel/meta"
	"github.com/zuychin03/zuychin-assistant/pkg/model"
	"github.com/zuychin03/zuychin-assistant/pkg/utils/async"
	"github.com/zuychin03/zuychin-assistant/pkg/utils/logging"
)

// MaxMessageLength is the Messenger limit of one text message
const MaxMessageLength = 2000

// Config holds Messenger page settings
type Config struct {
	VerifyToken string
	AppSecret   string
}

// Handler serves the webhook and sends replies
type Handler struct {
	cfg        Config
	client     *meta.Client
	dispatcher *channel.Dispatcher
	runner     *async.Runner
}

// New creates a new Handler. client must carry the page access token.
func New(cfg Config, client *meta.Client, dispatcher *channel.Dispatcher, runner *async.Runner) *Handler {
	return &Handler{
		cfg:        cfg,
		client:     client,
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
		Messaging []messagingEvent `json:"messaging"`
	} `json:"entry"`
}

type messagingEvent struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Message *struct {
		MID         string `json:"mid"`
		Text        string `json:"text"`
		IsEcho      bool   `json:"is_echo"`
		Attachments []struct {
			Type    string `json:"type"`
			Payload struct {
				URL string `json:"url"`
			} `json:"payload"`
		} `json:"attachments"`
	} `json:"message"`
}

func (e *messagingEvent) toInbound() (*channel.Inbound, bool) {
	if e.Message == nil || e.Message.IsEcho || e.Sender.ID == "" {
		return nil, false
	}

	in := &channel.Inbound{
		SenderID: e.Sender.ID,
		Text:     e.Message.Text,
		Channel:  model.ChannelMessenger,
	}
	for _, a := range e.Message.Attachments {
		if a.Payload.URL != "" {
			in.AttachmentURL = a.Payload.URL
			break
		}
	}

	if in.Text == "" && in.AttachmentURL == "" {
		return nil, false
	}
	return in, true
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
		for _, event := range entry.Messaging {
			in, ok := event.toInbound()
			if !ok {
				logging.From(ctx).Debug("ignored messenger event")
				continue
			}
			h.runner.Go(ctx, "messenger_message", func(ctx context.Context) error {
				return h.dispatcher.Handle(ctx, in, h, in.SenderID)
			})
		}
	}
}

// Send delivers text to a Messenger user, split into messages of at most 2000 characters
func (h *Handler) Send(ctx context.Context, psid, text string) error {
	for _, chunk := range channel.SplitForSend(text, MaxMessageLength) {
		payload := map[string]any{
			"recipient":      map[string]any{"id": psid},
			"messaging_type": "RESPONSE",
			"message":        map[string]any{"text": chunk},
		}
		if err := h.client.Post(ctx, "/me/messages", payload); err != nil {
			return goerr.Wrap(err, "failed to send messenger message", goerr.V("psid", psid))
		}
	}
	return nil
}
