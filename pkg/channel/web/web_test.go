package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/gt"
	"github.com/zuychin03/zuychin-assistant/pkg/channel"
	"github.com/zuychin03/zuychin-assistant/pkg/channel/web"
	"github.com/zuychin03/zuychin-assistant/pkg/model"
	"github.com/zuychin03/zuychin-assistant/pkg/repository"
	"github.com/zuychin03/zuychin-assistant/pkg/usecase/chat"
	"github.com/zuychin03/zuychin-assistant/pkg/usecase/conversation"
	"github.com/zuychin03/zuychin-assistant/pkg/usecase/profile"
)

type mockProcessor struct {
	processFunc func(ctx context.Context, input *chat.ProcessInput) (*chat.ProcessResult, error)
	inputs      []*chat.ProcessInput
}

func (m *mockProcessor) Process(ctx context.Context, input *chat.ProcessInput) (*chat.ProcessResult, error) {
	m.inputs = append(m.inputs, input)
	if m.processFunc != nil {
		return m.processFunc(ctx, input)
	}
	return &chat.ProcessResult{Reply: "hello back", UserMessageID: "msg-1"}, nil
}

type mockInvalidator struct {
	owners []string
}

func (m *mockInvalidator) InvalidateProfile(ownerID string) {
	m.owners = append(m.owners, ownerID)
}

type fixture struct {
	router      http.Handler
	repo        *repository.Memory
	proc        *mockProcessor
	invalidator *mockInvalidator
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:        repository.NewMemory(),
		proc:        &mockProcessor{},
		invalidator: &mockInvalidator{},
	}
	h := web.New(
		channel.NewDispatcher(f.proc, "owner-1", channel.WithRateLimit(0, 0)),
		conversation.New(f.repo),
		profile.New(f.repo, f.invalidator),
		"owner-1",
	)
	r := chi.NewRouter()
	r.Route("/api", h.Routes)
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		gt.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	gt.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestChat(t *testing.T) {
	t.Run("new conversation gets an id", func(t *testing.T) {
		f := setup(t)
		rec := f.do(t, http.MethodPost, "/api/chat", map[string]any{"message": "hello", "thinking": true})
		gt.Equal(t, rec.Code, http.StatusOK)

		resp := decodeBody[map[string]string](t, rec)
		gt.Equal(t, resp["reply"], "hello back")
		gt.Equal(t, resp["user_message_id"], "msg-1")
		gt.NotEqual(t, resp["conversation_id"], "")

		gt.A(t, f.proc.inputs).Length(1)
		gt.Equal(t, string(f.proc.inputs[0].ConversationID), resp["conversation_id"])
		gt.Equal(t, f.proc.inputs[0].Channel, model.ChannelWeb)
		gt.True(t, f.proc.inputs[0].Thinking)
	})

	t.Run("inline attachment is passed through", func(t *testing.T) {
		f := setup(t)
		rec := f.do(t, http.MethodPost, "/api/chat", map[string]any{
			"message":         "what is in the picture?",
			"conversation_id": "conv-1",
			"attachments": []map[string]any{
				{"name": "cat.jpg", "mime_type": "image/jpg", "data": []byte("jpegdata")},
			},
		})
		gt.Equal(t, rec.Code, http.StatusOK)
		gt.Equal(t, f.proc.inputs[0].ConversationID, model.ConversationID("conv-1"))
		gt.A(t, f.proc.inputs[0].Attachments).Length(1)
		gt.Equal(t, f.proc.inputs[0].Attachments[0].MIMEType, "image/jpeg")
	})

	t.Run("empty message is rejected", func(t *testing.T) {
		f := setup(t)
		rec := f.do(t, http.MethodPost, "/api/chat", map[string]any{"message": "  "})
		gt.Equal(t, rec.Code, http.StatusBadRequest)
		gt.A(t, f.proc.inputs).Length(0)
	})

	t.Run("timeout maps to 504", func(t *testing.T) {
		f := setup(t)
		f.proc.processFunc = func(ctx context.Context, input *chat.ProcessInput) (*chat.ProcessResult, error) {
			return nil, chat.ErrTurnTimeout
		}
		rec := f.do(t, http.MethodPost, "/api/chat", map[string]any{"message": "hi"})
		gt.Equal(t, rec.Code, http.StatusGatewayTimeout)
		gt.Equal(t, decodeBody[map[string]string](t, rec)["error"], channel.MsgTimeout)
	})

	t.Run("generation failure maps to 500", func(t *testing.T) {
		f := setup(t)
		f.proc.processFunc = func(ctx context.Context, input *chat.ProcessInput) (*chat.ProcessResult, error) {
			return nil, chat.ErrGenerationFailed
		}
		rec := f.do(t, http.MethodPost, "/api/chat", map[string]any{"message": "hi"})
		gt.Equal(t, rec.Code, http.StatusInternalServerError)
		gt.Equal(t, decodeBody[map[string]string](t, rec)["error"], channel.MsgGenerationFailed)
	})
}

func TestConversations(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodPost, "/api/conversations", map[string]string{"title": "Trip planning"})
	gt.Equal(t, rec.Code, http.StatusCreated)
	conv := decodeBody[model.Conversation](t, rec)
	gt.Equal(t, conv.Title, "Trip planning")

	ctx := context.Background()
	gt.NoError(t, f.repo.PutMessage(ctx, model.NewMessage(model.RoleUser, "book a hotel", model.ChannelWeb, conv.ID)))

	rec = f.do(t, http.MethodGet, "/api/conversations", nil)
	gt.Equal(t, rec.Code, http.StatusOK)
	list := decodeBody[map[string][]model.Conversation](t, rec)
	gt.A(t, list["conversations"]).Length(1)

	rec = f.do(t, http.MethodGet, "/api/conversations/"+string(conv.ID), nil)
	gt.Equal(t, rec.Code, http.StatusOK)
	detail := decodeBody[struct {
		Title    string          `json:"title"`
		Messages []model.Message `json:"messages"`
	}](t, rec)
	gt.Equal(t, detail.Title, "Trip planning")
	gt.A(t, detail.Messages).Length(1)
	gt.Equal(t, detail.Messages[0].Content, "book a hotel")

	rec = f.do(t, http.MethodPatch, "/api/conversations/"+string(conv.ID), map[string]string{"title": "Kyoto trip"})
	gt.Equal(t, rec.Code, http.StatusNoContent)
	got, err := f.repo.GetConversation(ctx, conv.ID)
	gt.NoError(t, err)
	gt.Equal(t, got.Title, "Kyoto trip")

	rec = f.do(t, http.MethodPatch, "/api/conversations/"+string(conv.ID), map[string]string{"title": ""})
	gt.Equal(t, rec.Code, http.StatusBadRequest)

	rec = f.do(t, http.MethodDelete, "/api/conversations/"+string(conv.ID), nil)
	gt.Equal(t, rec.Code, http.StatusNoContent)

	rec = f.do(t, http.MethodGet, "/api/conversations/"+string(conv.ID), nil)
	gt.Equal(t, rec.Code, http.StatusNotFound)

	rec = f.do(t, http.MethodPatch, "/api/conversations/missing", map[string]string{"title": "x"})
	gt.Equal(t, rec.Code, http.StatusNotFound)
}

func TestProfile(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodGet, "/api/profile", nil)
	gt.Equal(t, rec.Code, http.StatusOK)
	p := decodeBody[model.Profile](t, rec)
	gt.Equal(t, p.OwnerID, "owner-1")
	gt.Equal(t, p.SystemPrompt, "")

	rec = f.do(t, http.MethodPut, "/api/profile", map[string]string{"system_prompt": "Answer in Vietnamese."})
	gt.Equal(t, rec.Code, http.StatusOK)
	gt.Equal(t, f.invalidator.owners, []string{"owner-1"})

	rec = f.do(t, http.MethodGet, "/api/profile", nil)
	gt.Equal(t, decodeBody[model.Profile](t, rec).SystemPrompt, "Answer in Vietnamese.")
}
