package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"ledgermate-backend/internal/models"
	"ledgermate-backend/internal/services"
	"ledgermate-backend/pkg/httputil"
	"ledgermate-backend/pkg/logger"
)

// SettingsHandler serves the assistant settings endpoints.
type SettingsHandler struct {
	svc *services.SettingsService
	log *logger.Logger
}

func NewSettingsHandler(svc *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{
		svc: svc,
		log: logger.Get().WithComponent("settings_handler"),
	}
}

// HandleGetSettings handles GET /v1/assistant/settings.
func (h *SettingsHandler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	resp, err := h.svc.Get(r.Context(), id.OrgID)
	if err != nil {
		h.log.LogError(err, "get settings failed", "org_id", id.OrgID.String())
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to load assistant settings")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleUpdateSettings handles PUT /v1/assistant/settings. Only admins can
// change the assistant configuration.
func (h *SettingsHandler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if id.Role != models.UserRoleAdmin {
		httputil.RespondError(w, http.StatusForbidden, "Only admins can change assistant settings")
		return
	}

	var req models.UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	resp, err := h.svc.Update(r.Context(), id.OrgID, req)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			httputil.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.LogError(err, "update settings failed", "org_id", id.OrgID.String())
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to update assistant settings")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}
