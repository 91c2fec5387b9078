package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"ledgermate-backend/internal/assistant"
	"ledgermate-backend/internal/models"
	"ledgermate-backend/internal/services"
	"ledgermate-backend/internal/store"
	"ledgermate-backend/pkg/httputil"
	"ledgermate-backend/pkg/logger"
)

// AssistantHandler serves the chat endpoint and session management.
type AssistantHandler struct {
	svc *services.AssistantService
	log *logger.Logger
}

func NewAssistantHandler(svc *services.AssistantService) *AssistantHandler {
	return &AssistantHandler{
		svc: svc,
		log: logger.Get().WithComponent("assistant_handler"),
	}
}

// HandleChat handles POST /v1/assistant/chat: one full exchange.
func (h *AssistantHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	if strings.TrimSpace(req.Message) == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Message cannot be empty")
		return
	}

	resp, err := h.svc.Chat(r.Context(), id.OrgID, id.UserID, id.Role, req)
	if err != nil {
		h.respondExchangeError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// respondExchangeError maps the exchange failure taxonomy onto HTTP statuses.
// Classified errors carry a user-safe message; everything else gets a generic
// body and a log line with the detail.
func (h *AssistantHandler) respondExchangeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, assistant.ErrEmptyMessage) {
		httputil.RespondError(w, http.StatusBadRequest, "Message cannot be empty")
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		httputil.RespondError(w, http.StatusNotFound, "Session not found")
		return
	}

	var ae *assistant.Error
	if errors.As(err, &ae) {
		status := http.StatusInternalServerError
		switch ae.Kind {
		case assistant.KindQuotaExceeded:
			status = http.StatusTooManyRequests
		case assistant.KindDisabled:
			status = http.StatusForbidden
		case assistant.KindRateLimited, assistant.KindTransient:
			status = http.StatusServiceUnavailable
		case assistant.KindFatal:
			status = http.StatusBadGateway
		case assistant.KindTimeout:
			status = http.StatusGatewayTimeout
		}
		if status >= 500 {
			h.log.LogError(err, "exchange failed", "kind", ae.Kind.String(), "path", r.URL.Path)
		}
		httputil.RespondError(w, status, ae.Message)
		return
	}

	h.log.LogError(err, "exchange failed", "path", r.URL.Path)
	httputil.RespondError(w, http.StatusInternalServerError, "The assistant could not process this request.")
}

// HandleListSessions handles GET /v1/assistant/sessions.
func (h *AssistantHandler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	resp, err := h.svc.ListSessions(r.Context(), id.OrgID, queryInt(r, "limit", 0))
	if err != nil {
		h.log.LogError(err, "list sessions failed")
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleGetSessionMessages handles GET /v1/assistant/sessions/{sessionID}/messages.
func (h *AssistantHandler) HandleGetSessionMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	sessionID, err := parseUUIDParam(r, "sessionID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid session ID format")
		return
	}

	resp, err := h.svc.GetSessionMessages(r.Context(), id.OrgID, sessionID, queryInt(r, "limit", 0))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.RespondError(w, http.StatusNotFound, "Session not found")
			return
		}
		h.log.LogError(err, "read session transcript failed", "session_id", sessionID.String())
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to read session messages")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleDeleteSession handles DELETE /v1/assistant/sessions/{sessionID}.
func (h *AssistantHandler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	sessionID, err := parseUUIDParam(r, "sessionID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid session ID format")
		return
	}

	if err := h.svc.DeleteSession(r.Context(), id.OrgID, sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.RespondError(w, http.StatusNotFound, "Session not found")
			return
		}
		h.log.LogError(err, "delete session failed", "session_id", sessionID.String())
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
