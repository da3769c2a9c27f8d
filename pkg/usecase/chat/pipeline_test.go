package chat_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/zuychin03/zuychin-assistant/pkg/model"
	"github.com/zuychin03/zuychin-assistant/pkg/repository"
	"github.com/zuychin03/zuychin-assistant/pkg/tool"
	"github.com/zuychin03/zuychin-assistant/pkg/tool/clock"
	"github.com/zuychin03/zuychin-assistant/pkg/usecase/chat"
	"google.golang.org/genai"
)

func countMemories(t *testing.T, repo repository.Repository, text, ownerID string) int {
	t.Helper()
	found, err := repo.SearchMemories(context.Background(), &repository.SearchMemoriesInput{
		Embedding: embedText(text, model.EmbeddingDimension),
		Threshold: 0.95,
		Limit:     10,
		OwnerID:   ownerID,
	})
	gt.NoError(t, err)
	return len(found)
}

func groundedGemini(reply string) *mockGemini {
	return &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			if isSummary(config) {
				return textResponse("earlier summary"), nil
			}
			return textResponse(reply), nil
		},
	}
}

func TestProcessGroundedTurn(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	gemini := groundedGemini("Tomorrow looks sunny with a high of 22°C.")
	p := chat.New(repo, gemini, nil)

	convID := model.NewConversationID()
	result, err := p.Process(ctx, &chat.ProcessInput{
		Message:        "What's the weather tomorrow?",
		Channel:        model.ChannelWeb,
		OwnerID:        "owner-1",
		ConversationID: convID,
	})
	gt.NoError(t, err)
	p.Wait()

	gt.Equal(t, result.Reply, "Tomorrow looks sunny with a high of 22°C.")
	gt.A(t, gemini.configs).Length(1)
	gt.True(t, isGrounded(gemini.configs[0]))

	msgs, err := repo.ListMessagesByConversation(ctx, convID, 10)
	gt.NoError(t, err)
	gt.A(t, msgs).Length(2)
	gt.Equal(t, msgs[0].ID, result.UserMessageID)
	gt.Equal(t, msgs[0].Role, model.RoleUser)
	gt.Equal(t, msgs[0].Content, "What's the weather tomorrow?")
	gt.Equal(t, msgs[1].Role, model.RoleAssistant)
	gt.Equal(t, msgs[1].Content, result.Reply)

	conv, err := repo.GetConversation(ctx, convID)
	gt.NoError(t, err)
	gt.Equal(t, conv.Title, "What's the weather tomorrow?")

	gt.Equal(t, countMemories(t, repo, "What's the weather tomorrow?", "owner-1"), 1)
}

func TestProcessDuplicateMessageStoredOnce(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	p := chat.New(repo, groundedGemini("noted"), nil)

	for i := 0; i < 2; i++ {
		_, err := p.Process(ctx, &chat.ProcessInput{
			Message: "My passport number ends with 42",
			Channel: model.ChannelDiscord,
			OwnerID: "owner-1",
		})
		gt.NoError(t, err)
		p.Wait()
	}

	gt.Equal(t, countMemories(t, repo, "My passport number ends with 42", "owner-1"), 1)
}

func TestProcessToolTurn(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()

	fixed := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	var executions int
	clk := clock.New("UTC", clock.WithNow(func() time.Time {
		executions++
		return fixed
	}))
	registry, err := tool.New(clk)
	gt.NoError(t, err)

	var toolRounds int
	gemini := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			switch {
			case isGrounded(config):
				return nil, errors.New("grounding cannot be combined with function calling")
			case isToolMode(config):
				toolRounds++
				if toolRounds == 1 {
					return callResponse("", "get_current_time", map[string]any{"timezone": "UTC"}), nil
				}
				return textResponse("It's noon."), nil
			}
			return nil, errors.New("unexpected request")
		},
	}
	p := chat.New(repo, gemini, registry)

	result, err := p.Process(ctx, &chat.ProcessInput{
		Message: "What time is it?",
		Channel: model.ChannelWhatsApp,
		OwnerID: "owner-1",
	})
	gt.NoError(t, err)
	p.Wait()

	gt.Equal(t, result.Reply, "It's noon.")
	gt.Equal(t, executions, 1)
	gt.Equal(t, toolRounds, 2)
}

func TestProcessGenerationFailure(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	gemini := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return nil, errors.New("backend down")
		},
	}
	p := chat.New(repo, gemini, nil)

	_, err := p.Process(ctx, &chat.ProcessInput{
		Message: "hello",
		Channel: model.ChannelMessenger,
	})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, chat.ErrGenerationFailed))
	p.Wait()

	msgs, err := repo.ListMessagesByChannel(ctx, model.ChannelMessenger, 10)
	gt.NoError(t, err)
	gt.A(t, msgs).Length(1)
	gt.Equal(t, msgs[0].Role, model.RoleUser)
}

func TestProcessTurnTimeout(t *testing.T) {
	gemini := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	p := chat.New(repository.NewMemory(), gemini, nil, chat.WithTurnTimeout(50*time.Millisecond))

	_, err := p.Process(context.Background(), &chat.ProcessInput{Message: "hello", Channel: model.ChannelWeb})
	gt.True(t, errors.Is(err, chat.ErrTurnTimeout))
	p.Wait()
}

func TestProcessRetrievalIsBestEffort(t *testing.T) {
	repo := repository.NewMemory()
	gemini := groundedGemini("still here")
	gemini.embeddingFunc = func(ctx context.Context, text string, dimension int) ([]float32, error) {
		return nil, errors.New("embedding quota exceeded")
	}
	p := chat.New(repo, gemini, nil)

	result, err := p.Process(context.Background(), &chat.ProcessInput{
		Message: "remember this",
		Channel: model.ChannelWeb,
		OwnerID: "owner-1",
	})
	gt.NoError(t, err)
	p.Wait()
	gt.Equal(t, result.Reply, "still here")
	gt.Equal(t, countMemories(t, repo, "remember this", "owner-1"), 0)
}

func TestProcessAssemblesContext(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	convID := model.NewConversationID()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 12; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		msg := model.NewMessage(role, fmt.Sprintf("old-%02d", i), model.ChannelWeb, convID)
		msg.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		gt.NoError(t, repo.PutMessage(ctx, msg))
	}

	gt.NoError(t, repo.PutMemory(ctx, &model.Memory{
		ID:        model.NewMemoryID(),
		Content:   "The user's cat is called Mochi",
		Embedding: embedText("what is my cat called?", model.EmbeddingDimension),
		Metadata:  map[string]string{model.MetadataSource: model.SourceNote, model.MetadataCategory: "pets"},
		OwnerID:   "owner-1",
		CreatedAt: base,
	}))
	gt.NoError(t, repo.PutProfile(ctx, &model.Profile{OwnerID: "owner-1", SystemPrompt: "You are Zuy."}))

	var prompt string
	var system string
	gemini := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			if isSummary(config) {
				return textResponse("They talked about old things."), nil
			}
			prompt = userText(contents)
			system = config.SystemInstruction.Parts[0].Text
			return textResponse("Mochi"), nil
		},
	}
	p := chat.New(repo, gemini, nil)

	_, err := p.Process(ctx, &chat.ProcessInput{
		Message:        "what is my cat called?",
		Channel:        model.ChannelWeb,
		OwnerID:        "owner-1",
		ConversationID: convID,
	})
	gt.NoError(t, err)
	p.Wait()

	gt.Equal(t, system, "You are Zuy.")
	gt.S(t, prompt).Contains("## Relevant Memories\n- [pets] The user's cat is called Mochi")
	gt.S(t, prompt).Contains("Summary:\nThey talked about old things.")
	gt.S(t, prompt).Contains("Recent Messages:\nAssistant: old-07\nUser: old-08")
	gt.S(t, prompt).Contains("## Current Message\nwhat is my cat called?")

	// the inbound message is not part of its own history
	history := prompt[strings.Index(prompt, "## Conversation History"):strings.Index(prompt, "## Current Message")]
	gt.S(t, history).NotContains("what is my cat called?")
}

func TestProcessProfileCache(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()

	var systems []string
	gemini := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			systems = append(systems, config.SystemInstruction.Parts[0].Text)
			return textResponse("ok"), nil
		},
	}
	p := chat.New(repo, gemini, nil, chat.WithSystemPrompt("default prompt"))

	send := func() {
		_, err := p.Process(ctx, &chat.ProcessInput{Message: "hi", Channel: model.ChannelCLI, OwnerID: "me"})
		gt.NoError(t, err)
	}

	send()
	gt.NoError(t, repo.PutProfile(ctx, &model.Profile{OwnerID: "me", SystemPrompt: "custom prompt"}))
	send()
	p.InvalidateProfile("me")
	send()
	p.Wait()

	gt.Equal(t, systems, []string{"default prompt", "default prompt", "custom prompt"})
}

func TestDeriveTitle(t *testing.T) {
	gt.Equal(t, chat.DeriveTitle("What's the weather tomorrow?"), "What's the weather tomorrow?")
	gt.Equal(t, chat.DeriveTitle(strings.Repeat("a", 40)), strings.Repeat("a", 40))
	gt.Equal(t, chat.DeriveTitle(strings.Repeat("b", 41)), strings.Repeat("b", 40)+"...")
	gt.Equal(t, chat.DeriveTitle(strings.Repeat("日", 45)), strings.Repeat("日", 40)+"...")
	gt.Equal(t, chat.DeriveTitle("  line one\nline two "), "line one line two")
}
