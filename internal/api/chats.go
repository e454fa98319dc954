package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/assistant"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/auth"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/chat"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/connector"
	"github.com/lileihappy123/AzureSQLChatGPTDemo/internal/transcript"
)

type sendMessageRequest struct {
	Connection   *connector.Connection `json:"connection"`
	DatabaseName string                `json:"databaseName"`
	AssistantID  string                `json:"assistantId"`
	Content      string                `json:"content"`
}

func handleListAssistants(deps Dependencies, w http.ResponseWriter, _ *http.Request) {
	items := []assistant.Assistant{}
	if deps.Assistants != nil {
		items = deps.Assistants.List()
	}
	writeJSON(w, http.StatusOK, map[string]any{"assistants": items})
}

func handleListMessages(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatFromRequest(deps, w, r)
	if !ok {
		return
	}
	messages, err := deps.Transcripts.List(r.Context(), chatID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "TRANSCRIPT_ERROR", "failed to load messages", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat_id": chatID, "messages": nonNil(messages)})
}

func handleDeleteMessages(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatFromRequest(deps, w, r)
	if !ok {
		return
	}
	if deps.Orchestrator != nil && deps.Orchestrator.State(chatID).State != chat.StateIdle {
		writeError(r.Context(), w, http.StatusConflict, "CHAT_BUSY", chat.ErrInFlight.Error(), true, map[string]any{"chat_id": chatID})
		return
	}
	if err := deps.Transcripts.DeleteChat(r.Context(), chatID); err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "TRANSCRIPT_ERROR", "failed to delete messages", true, map[string]any{"details": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleSendMessage(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Orchestrator == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat orchestrator is not configured", false, nil)
		return
	}
	chatID, ok := chatFromRequest(deps, w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid message request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(req.DatabaseName) != "" && req.Connection == nil {
		writeError(r.Context(), w, http.StatusBadRequest, "CONNECTION_REQUIRED", "connection is required when databaseName is set", false, nil)
		return
	}

	turn := chat.Turn{
		ChatID:       chatID,
		Connection:   req.Connection,
		DatabaseName: strings.TrimSpace(req.DatabaseName),
		AssistantID:  strings.TrimSpace(req.AssistantID),
		Content:      req.Content,
	}
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		turn.UserID = identity.UserID
	}

	msg, err := deps.Orchestrator.Send(r.Context(), turn)
	if err != nil {
		writeChatError(w, r, chatID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat_id": chatID, "message": msg})
}

func handleChatState(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Orchestrator == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat orchestrator is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleChat); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	chatID := strings.TrimSpace(r.PathValue("chat"))
	status := deps.Orchestrator.State(chatID)
	writeJSON(w, http.StatusOK, map[string]any{"chat_id": chatID, "state": status.State, "last_error": status.LastError})
}

func chatFromRequest(deps Dependencies, w http.ResponseWriter, r *http.Request) (string, bool) {
	if deps.Transcripts == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSCRIPT_NOT_CONFIGURED", "transcript store is not configured", false, nil)
		return "", false
	}
	if err := requireRole(r, auth.RoleChat); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return "", false
	}
	chatID := strings.TrimSpace(r.PathValue("chat"))
	if chatID == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "CHAT_REQUIRED", "chat path parameter is required", false, nil)
		return "", false
	}
	return chatID, true
}

func writeChatError(w http.ResponseWriter, r *http.Request, chatID string, err error) {
	ctx := r.Context()
	details := map[string]any{"chat_id": chatID}
	var transportErr *chat.TransportError
	switch {
	case errors.Is(err, chat.ErrInFlight):
		writeError(ctx, w, http.StatusConflict, "CHAT_BUSY", err.Error(), true, details)
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(ctx, w, http.StatusBadRequest, "CONTENT_REQUIRED", err.Error(), false, details)
	case errors.Is(err, chat.ErrPromptTooLarge):
		writeError(ctx, w, http.StatusRequestEntityTooLarge, "PROMPT_TOO_LARGE", err.Error(), false, details)
	case errors.Is(err, assistant.ErrNotFound):
		writeError(ctx, w, http.StatusBadRequest, "ASSISTANT_NOT_FOUND", err.Error(), false, details)
	case errors.Is(err, connector.ErrUnsupportedEngine):
		writeError(ctx, w, http.StatusBadRequest, "UNSUPPORTED_ENGINE", err.Error(), false, details)
	case errors.Is(err, connector.ErrConnection):
		writeError(ctx, w, http.StatusBadGateway, "CONNECTION_ERROR", err.Error(), true, details)
	case errors.Is(err, connector.ErrQuery), errors.Is(err, connector.ErrConsistency):
		writeError(ctx, w, http.StatusBadGateway, "SCHEMA_ERROR", err.Error(), false, details)
	case errors.As(err, &transportErr):
		details["upstream_status"] = transportErr.StatusCode
		writeError(ctx, w, http.StatusBadGateway, "COMPLETION_FAILED", err.Error(), true, details)
	case errors.Is(err, chat.ErrTransport):
		writeError(ctx, w, http.StatusBadGateway, "COMPLETION_FAILED", err.Error(), true, details)
	case errors.Is(err, chat.ErrEmptyResponse):
		writeError(ctx, w, http.StatusBadGateway, "EMPTY_COMPLETION", err.Error(), true, details)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "CHAT_FAILED", err.Error(), true, details)
	}
}
