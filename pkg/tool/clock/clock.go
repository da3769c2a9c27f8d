package clock

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"github.com/zuychin03/zuychin-assistant/pkg/tool"
)

const toolName = "get_current_time"

// Clock reports the current date and time in a timezone
type Clock struct {
	defaultTZ string
	now       func() time.Time
}

// Option is a functional option for Clock
type Option func(*Clock)

// WithNow replaces the time source
func WithNow(now func() time.Time) Option {
	return func(c *Clock) {
		c.now = now
	}
}

// New creates a new get_current_time tool. defaultTZ is used when the model omits a timezone.
func New(defaultTZ string, opts ...Option) *Clock {
	if defaultTZ == "" {
		defaultTZ = "UTC"
	}
	c := &Clock{
		defaultTZ: defaultTZ,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Clock) Spec() tool.Spec {
	return tool.Spec{
		Name:        toolName,
		Description: "Get the current date and time in a timezone",
		Parameters: []tool.Parameter{
			{
				Name:        "timezone",
				Type:        tool.TypeString,
				Description: fmt.Sprintf("IANA timezone name such as Asia/Tokyo (default: %s)", c.defaultTZ),
			},
		},
	}
}

func (c *Clock) Execute(ctx context.Context, args map[string]any) (string, error) {
	tz, ok := tool.StringArg(args, "timezone")
	if !ok {
		tz = c.defaultTZ
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", goerr.Wrap(err, "unknown timezone", goerr.V("timezone", tz))
	}

	now := c.now().In(loc)
	return fmt.Sprintf("%s (%s) %s [%s]",
		now.Format("2006-01-02 15:04:05"), now.Weekday(), now.Format("MST -07:00"), tz), nil
}

func (c *Clock) Prompt(ctx context.Context) string {
	return ""
}

// Flags binds --timezone to the default timezone
func (c *Clock) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "timezone",
			Usage:       "Default IANA timezone of the clock tool",
			Value:       c.defaultTZ,
			Sources:     cli.EnvVars("ZUYCHIN_TIMEZONE"),
			Destination: &c.defaultTZ,
		},
	}
}
