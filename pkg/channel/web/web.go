// Package web serves the JSON API used by the browser client.
package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/zuychin03/zuychin-assistant/pkg/channel"
	"github.com/zuychin03/zuychin-assistant/pkg/model"
	"github.com/zuychin03/zuychin-assistant/pkg/repository"
	"github.com/zuychin03/zuychin-assistant/pkg/usecase/chat"
	"github.com/zuychin03/zuychin-assistant/pkg/usecase/conversation"
	"github.com/zuychin03/zuychin-assistant/pkg/usecase/profile"
	"github.com/zuychin03/zuychin-assistant/pkg/utils/logging"
)

const maxRequestBody = 32 << 20

// Handler serves /api
type Handler struct {
	dispatcher    *channel.Dispatcher
	conversations *conversation.UseCase
	profiles      *profile.UseCase
	ownerID       string
}

// New creates a new Handler
func New(dispatcher *channel.Dispatcher, conversations *conversation.UseCase, profiles *profile.UseCase, ownerID string) *Handler {
	return &Handler{
		dispatcher:    dispatcher,
		conversations: conversations,
		profiles:      profiles,
		ownerID:       ownerID,
	}
}

// Routes registers the API endpoints
func (h *Handler) Routes(r chi.Router) {
	r.Post("/chat", h.chat)

	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", h.listConversations)
		r.Post("/", h.createConversation)
		r.Get("/{id}", h.getConversation)
		r.Patch("/{id}", h.renameConversation)
		r.Delete("/{id}", h.deleteConversation)
	})

	r.Get("/profile", h.getProfile)
	r.Put("/profile", h.putProfile)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string, err error) {
	if err != nil {
		logging.From(r.Context()).Warn("api request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body", nil)
		return false
	}
	return true
}

// statusOf maps a turn error to an HTTP status
func statusOf(err error) int {
	var vErr *channel.ValidationError
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest
	case errors.Is(err, channel.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, chat.ErrTurnTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, channel.ErrAttachmentUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type attachmentRequest struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

type chatRequest struct {
	Message        string              `json:"message"`
	ConversationID string              `json:"conversation_id"`
	Thinking       bool                `json:"thinking"`
	AttachmentURL  string              `json:"attachment_url"`
	Attachments    []attachmentRequest `json:"attachments"`
}

type chatResponse struct {
	Reply          string `json:"reply"`
	UserMessageID  string `json:"user_message_id"`
	ConversationID string `json:"conversation_id"`
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decode(w, r, &req) {
		return
	}

	convID := model.ConversationID(req.ConversationID)
	if convID == "" {
		convID = model.NewConversationID()
	}

	in := &channel.Inbound{
		SenderID:       h.ownerID,
		Text:           req.Message,
		AttachmentURL:  req.AttachmentURL,
		Channel:        model.ChannelWeb,
		ConversationID: convID,
		Thinking:       req.Thinking,
	}
	for _, a := range req.Attachments {
		in.Attachments = append(in.Attachments, &model.Attachment{
			Name:     a.Name,
			MIMEType: a.MIMEType,
			Data:     a.Data,
		})
	}

	result, err := h.dispatcher.Process(r.Context(), in)
	if err != nil {
		writeError(w, r, statusOf(err), channel.UserMessage(err), err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Reply:          result.Reply,
		UserMessageID:  string(result.UserMessageID),
		ConversationID: string(convID),
	})
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func (h *Handler) listConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.conversations.List(r.Context(), queryInt(r, "offset", 0), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to list conversations", err)
		return
	}
	if convs == nil {
		convs = []*model.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

type titleRequest struct {
	Title string `json:"title"`
}

func (h *Handler) createConversation(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if r.ContentLength > 0 && !decode(w, r, &req) {
		return
	}

	conv, err := h.conversations.Create(r.Context(), strings.TrimSpace(req.Title))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to create conversation", err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

type conversationResponse struct {
	*model.Conversation
	Messages []*model.Message `json:"messages"`
}

func (h *Handler) getConversation(w http.ResponseWriter, r *http.Request) {
	id := model.ConversationID(chi.URLParam(r, "id"))
	conv, msgs, err := h.conversations.Show(r.Context(), id, queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, r, statusOf(err), "conversation not available", err)
		return
	}
	if msgs == nil {
		msgs = []*model.Message{}
	}
	writeJSON(w, http.StatusOK, conversationResponse{Conversation: conv, Messages: msgs})
}

func (h *Handler) renameConversation(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if !decode(w, r, &req) {
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeError(w, r, http.StatusBadRequest, "title is required", nil)
		return
	}

	id := model.ConversationID(chi.URLParam(r, "id"))
	if err := h.conversations.Rename(r.Context(), id, title); err != nil {
		writeError(w, r, statusOf(err), "failed to rename conversation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteConversation(w http.ResponseWriter, r *http.Request) {
	id := model.ConversationID(chi.URLParam(r, "id"))
	if err := h.conversations.Delete(r.Context(), id); err != nil {
		writeError(w, r, statusOf(err), "failed to delete conversation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.Get(r.Context(), h.ownerID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to get profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type profileRequest struct {
	SystemPrompt string `json:"system_prompt"`
}

func (h *Handler) putProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !decode(w, r, &req) {
		return
	}

	p, err := h.profiles.SetSystemPrompt(r.Context(), h.ownerID, strings.TrimSpace(req.SystemPrompt))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to update profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
