// Package channel connects transports (web, Discord, WhatsApp, Messenger, terminal) to
// the chat pipeline.
package channel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/zuychin03/zuychin-assistant/pkg/model"
	"github.com/zuychin03/zuychin-assistant/pkg/usecase/chat"
	"github.com/zuychin03/zuychin-assistant/pkg/utils/logging"
	"golang.org/x/time/rate"
)

// User facing replies for failed turns
const (
	MsgGenerationFailed = "Sorry, I couldn't come up with a reply right now. Please try again in a moment."
	MsgTimeout          = "Sorry, that took too long. Please try again."
	MsgRateLimited      = "You're sending messages too quickly. Please wait a moment."
	MsgAttachmentFailed = "Sorry, I couldn't download your attachment."
)

var (
	ErrRateLimited           = goerr.New("sender exceeded rate limit")
	ErrAttachmentUnavailable = goerr.New("attachment could not be downloaded")
)

// Inbound is a normalized message from any transport
type Inbound struct {
	SenderID       string
	Text           string
	AttachmentURL  string
	Attachments    []*model.Attachment
	Channel        model.Channel
	ConversationID model.ConversationID
	Thinking       bool
}

// Sender delivers text to a transport target, splitting it to the transport's limit
type Sender interface {
	Send(ctx context.Context, target, text string) error
}

// Processor runs one turn
type Processor interface {
	Process(ctx context.Context, input *chat.ProcessInput) (*chat.ProcessResult, error)
}

// Dispatcher validates inbound messages, applies a per-sender rate limit and hands them
// to the pipeline
type Dispatcher struct {
	processor Processor
	fetcher   Fetcher
	ownerID   string

	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// DispatcherOption configures Dispatcher
type DispatcherOption func(*Dispatcher)

// WithRateLimit sets the sustained rate and burst per sender. A zero rate disables limiting.
func WithRateLimit(perSecond float64, burst int) DispatcherOption {
	return func(d *Dispatcher) {
		d.limit = rate.Limit(perSecond)
		d.burst = burst
	}
}

// WithFetcher replaces the attachment downloader
func WithFetcher(fetcher Fetcher) DispatcherOption {
	return func(d *Dispatcher) {
		d.fetcher = fetcher
	}
}

// NewDispatcher creates a Dispatcher. Every turn is attributed to ownerID, since the
// assistant serves a single person across channels.
func NewDispatcher(processor Processor, ownerID string, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		processor: processor,
		fetcher:   NewHTTPFetcher(),
		ownerID:   ownerID,
		limit:     rate.Every(time.Second),
		burst:     5,
		limiters:  make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) allow(senderKey string) bool {
	if d.limit == 0 {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.limiters[senderKey]
	if !ok {
		l = rate.NewLimiter(d.limit, d.burst)
		d.limiters[senderKey] = l
	}
	return l.Allow()
}

// Process validates and runs one inbound message. Rejections are *ValidationError or
// ErrRateLimited.
func (d *Dispatcher) Process(ctx context.Context, in *Inbound) (*chat.ProcessResult, error) {
	if !d.allow(string(in.Channel) + ":" + in.SenderID) {
		return nil, goerr.Wrap(ErrRateLimited, "rejected inbound message", goerr.V("sender", in.SenderID))
	}

	attachments := in.Attachments
	if in.AttachmentURL != "" {
		a, err := d.fetcher.Fetch(ctx, in.AttachmentURL)
		if err != nil {
			var vErr *ValidationError
			if errors.As(err, &vErr) {
				return nil, err
			}
			return nil, goerr.Wrap(ErrAttachmentUnavailable, "failed to fetch attachment", goerr.V("cause", err.Error()))
		}
		attachments = append(attachments, a)
	}

	if err := Validate(in.Text, attachments); err != nil {
		return nil, err
	}

	return d.processor.Process(ctx, &chat.ProcessInput{
		Message:        in.Text,
		Channel:        in.Channel,
		OwnerID:        d.ownerID,
		ConversationID: in.ConversationID,
		Attachments:    attachments,
		Thinking:       in.Thinking,
	})
}

// Handle processes in and sends the reply, or a user facing failure message, to target
func (d *Dispatcher) Handle(ctx context.Context, in *Inbound, sender Sender, target string) error {
	logger := logging.From(ctx).With("channel", in.Channel, "sender", in.SenderID)
	ctx = logging.With(ctx, logger)

	result, err := d.Process(ctx, in)
	if err != nil {
		logger.Warn("failed to process inbound message", "error", err)
		if sendErr := sender.Send(ctx, target, UserMessage(err)); sendErr != nil {
			logger.Error("failed to send failure notice", "error", sendErr)
		}
		return err
	}

	if err := sender.Send(ctx, target, result.Reply); err != nil {
		return goerr.Wrap(err, "failed to send reply", goerr.V("target", target))
	}
	return nil
}

// UserMessage maps a turn error to text that can be shown to the sender
func UserMessage(err error) string {
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		return vErr.Reason
	case errors.Is(err, ErrRateLimited):
		return MsgRateLimited
	case errors.Is(err, chat.ErrTurnTimeout):
		return MsgTimeout
	case errors.Is(err, ErrAttachmentUnavailable):
		return MsgAttachmentFailed
	default:
		return MsgGenerationFailed
	}
}
