package chat

import (
	"context"
	"strings"

	"github.com/zuychin03/zuychin-assistant/pkg/model"
	"github.com/zuychin03/zuychin-assistant/pkg/utils/logging"
)

const (
	defaultCompactThreshold = 8
	defaultRecentKeep       = 5
	defaultFallbackChars    = 2000
)

// Summarizer condenses a transcript into a few sentences
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// Compactor renders recent history into the history section of a prompt
type Compactor struct {
	summarizer    Summarizer
	threshold     int
	recentKeep    int
	fallbackChars int
}

// CompactorOption configures Compactor
type CompactorOption func(*Compactor)

// WithCompactThreshold sets the message count above which older messages are summarized
func WithCompactThreshold(n int) CompactorOption {
	return func(c *Compactor) {
		c.threshold = n
	}
}

// WithRecentKeep sets how many of the newest messages are always kept verbatim
func WithRecentKeep(n int) CompactorOption {
	return func(c *Compactor) {
		c.recentKeep = n
	}
}

// NewCompactor creates a new Compactor
func NewCompactor(summarizer Summarizer, opts ...CompactorOption) *Compactor {
	c := &Compactor{
		summarizer:    summarizer,
		threshold:     defaultCompactThreshold,
		recentKeep:    defaultRecentKeep,
		fallbackChars: defaultFallbackChars,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.recentKeep > c.threshold {
		c.recentKeep = c.threshold
	}
	return c
}

// Compact renders messages (oldest first). Up to the threshold every message is rendered
// verbatim. Above it, all but the last recentKeep messages are summarized. When the
// summarizer fails the raw transcript is tail-truncated instead.
func (c *Compactor) Compact(ctx context.Context, messages []*model.Message) string {
	if len(messages) <= c.threshold {
		return renderMessages(messages)
	}

	split := len(messages) - c.recentKeep
	older, recent := messages[:split], messages[split:]

	summary, err := c.summarizer.Summarize(ctx, renderMessages(older))
	if err != nil {
		logging.From(ctx).Warn("failed to summarize history, truncating instead", "error", err)
		return tailTruncate(renderMessages(messages), c.fallbackChars)
	}

	return "Summary:\n" + strings.TrimSpace(summary) + "\n\nRecent Messages:\n" + renderMessages(recent)
}

func renderMessages(messages []*model.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, m.Role.Label()+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

// tailTruncate keeps the last n characters of s
func tailTruncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
