package cli_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/zuychin03/zuychin-assistant/pkg/channel"
	"github.com/zuychin03/zuychin-assistant/pkg/cli"
	"github.com/zuychin03/zuychin-assistant/pkg/model"
	"github.com/zuychin03/zuychin-assistant/pkg/usecase/chat"
)

type mockProcessor struct {
	ProcessFunc func(ctx context.Context, input *chat.ProcessInput) (*chat.ProcessResult, error)
}

func (m *mockProcessor) Process(ctx context.Context, input *chat.ProcessInput) (*chat.ProcessResult, error) {
	return m.ProcessFunc(ctx, input)
}

type discardSender struct{}

func (discardSender) Send(ctx context.Context, target, text string) error { return nil }

// dispatchedDeadline runs one channel turn in the task runner and reports the deadline
// the processor saw
func dispatchedDeadline(t *testing.T, turnTimeout time.Duration) (time.Duration, bool) {
	t.Helper()

	var (
		remaining time.Duration
		bounded   bool
	)
	dispatcher := channel.NewDispatcher(&mockProcessor{
		ProcessFunc: func(ctx context.Context, input *chat.ProcessInput) (*chat.ProcessResult, error) {
			var deadline time.Time
			deadline, bounded = ctx.Deadline()
			remaining = time.Until(deadline)
			return &chat.ProcessResult{Reply: "ok"}, nil
		},
	}, "owner", channel.WithRateLimit(0, 0))

	runner := cli.NewTaskRunner(turnTimeout)
	task := runner.Go(context.Background(), "discord_message", func(ctx context.Context) error {
		return dispatcher.Handle(ctx, &channel.Inbound{SenderID: "u1", Text: "hi", Channel: model.ChannelDiscord}, discardSender{}, "c1")
	})
	runner.Wait()
	gt.NoError(t, <-task.Err())

	return remaining, bounded
}

func TestTaskRunnerOutlivesTurnTimeout(t *testing.T) {
	t.Run("task deadline exceeds the turn budget", func(t *testing.T) {
		remaining, bounded := dispatchedDeadline(t, 5*time.Minute)
		gt.True(t, bounded)
		gt.True(t, remaining > 5*time.Minute)
	})

	t.Run("disabled turn timeout leaves the task unbounded", func(t *testing.T) {
		_, bounded := dispatchedDeadline(t, 0)
		gt.False(t, bounded)
	})
}

func TestRegistryUsesParsedTimezone(t *testing.T) {
	registry, err := cli.BuildRegistry(context.Background(), "--timezone", "Asia/Tokyo")
	gt.NoError(t, err)

	var found bool
	for _, decl := range registry.Specs()[0].FunctionDeclarations {
		if decl.Name != "get_current_time" {
			continue
		}
		found = true
		gt.S(t, decl.Parameters.Properties["timezone"].Description).Contains("default: Asia/Tokyo")
	}
	gt.True(t, found)
}
