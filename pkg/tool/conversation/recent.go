package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"github.com/zuychin03/zuychin-assistant/pkg/model"
	"github.com/zuychin03/zuychin-assistant/pkg/tool"
)

const (
	defaultLimit = 10
	maxLimit     = 50
)

// Lister returns the newest messages across channels, newest first
type Lister interface {
	ListRecentMessages(ctx context.Context, limit int) ([]*model.Message, error)
}

// Recent is the list_recent_messages tool
type Recent struct {
	lister Lister
}

// NewRecent creates a new list_recent_messages tool
func NewRecent(lister Lister) *Recent {
	return &Recent{lister: lister}
}

func (x *Recent) Spec() tool.Spec {
	return tool.Spec{
		Name:        "list_recent_messages",
		Description: "List the most recent conversation turns across all channels (web, discord, whatsapp, messenger), newest first",
		Parameters: []tool.Parameter{
			{
				Name:        "limit",
				Type:        tool.TypeNumber,
				Description: fmt.Sprintf("Number of messages (default: %d, max: %d)", defaultLimit, maxLimit),
			},
		},
	}
}

func (x *Recent) Execute(ctx context.Context, args map[string]any) (string, error) {
	limit := defaultLimit
	if n, ok := tool.NumberArg(args, "limit"); ok && n >= 1 {
		limit = int(n)
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	msgs, err := x.lister.ListRecentMessages(ctx, limit)
	if err != nil {
		return "", goerr.Wrap(err, "failed to list recent messages")
	}
	if len(msgs) == 0 {
		return "No messages yet.", nil
	}

	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "[%s] (%s) %s: %s\n",
			m.CreatedAt.Format("2006-01-02 15:04"), m.Channel, m.Role.Label(), m.Content)
	}
	return b.String(), nil
}

func (x *Recent) Prompt(ctx context.Context) string {
	return ""
}

func (x *Recent) Flags() []cli.Flag {
	return nil
}
