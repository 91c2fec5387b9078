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

// CredentialsHandler serves the integration credential endpoints.
type CredentialsHandler struct {
	credService services.CredentialsService
	log         *logger.Logger
}

func NewCredentialsHandler(credSvc services.CredentialsService) *CredentialsHandler {
	return &CredentialsHandler{
		credService: credSvc,
		log:         logger.Get().WithComponent("credentials_handler"),
	}
}

// HandleCreateCredential handles POST /v1/credentials.
func (h *CredentialsHandler) HandleCreateCredential(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req models.CreateCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	if req.ServiceType == "" || len(req.Credentials) == 0 {
		httputil.RespondError(w, http.StatusBadRequest, "Missing required fields: service_type, credentials")
		return
	}

	resp, err := h.credService.CreateCredential(r.Context(), id.OrgID, req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrCredentialValidation),
			errors.Is(err, services.ErrUnsupportedServiceType),
			errors.Is(err, services.ErrCredentialTestFailed):
			httputil.RespondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, services.ErrCredentialEncryption):
			h.log.LogError(err, "credential encryption failed", "org_id", id.OrgID.String())
			httputil.RespondError(w, http.StatusInternalServerError, "Failed to secure credentials")
		default:
			h.log.LogError(err, "create credential failed", "org_id", id.OrgID.String())
			httputil.RespondError(w, http.StatusInternalServerError, "Failed to create credential")
		}
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, resp)
}

// HandleListCredentials handles GET /v1/credentials.
func (h *CredentialsHandler) HandleListCredentials(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var serviceTypeFilter *string
	if serviceTypeQuery := r.URL.Query().Get("service_type"); serviceTypeQuery != "" {
		serviceTypeFilter = &serviceTypeQuery
	}

	creds, err := h.credService.ListCredentials(r.Context(), id.OrgID, serviceTypeFilter)
	if err != nil {
		h.log.LogError(err, "list credentials failed", "org_id", id.OrgID.String())
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to list credentials")
		return
	}

	if creds == nil {
		creds = []models.CredentialResponse{}
	}
	httputil.RespondJSON(w, http.StatusOK, creds)
}

// HandleGetCredential handles GET /v1/credentials/{credentialID}.
func (h *CredentialsHandler) HandleGetCredential(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	credID, err := parseUUIDParam(r, "credentialID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid credential ID format")
		return
	}

	resp, err := h.credService.GetCredential(r.Context(), credID, id.OrgID)
	if err != nil {
		if errors.Is(err, services.ErrCredentialNotFound) {
			httputil.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		h.log.LogError(err, "get credential failed", "credential_id", credID.String())
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to get credential")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleDeleteCredential handles DELETE /v1/credentials/{credentialID}.
func (h *CredentialsHandler) HandleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	credID, err := parseUUIDParam(r, "credentialID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid credential ID format")
		return
	}

	if err := h.credService.DeleteCredential(r.Context(), credID, id.OrgID); err != nil {
		if errors.Is(err, services.ErrCredentialNotFound) {
			httputil.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		h.log.LogError(err, "delete credential failed", "credential_id", credID.String())
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to delete credential")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleTestCredential handles POST /v1/credentials/{credentialID}/test.
// A failed connection test is a 200 with success=false; errors are reserved
// for lookup and system faults.
func (h *CredentialsHandler) HandleTestCredential(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	credID, err := parseUUIDParam(r, "credentialID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid credential ID format")
		return
	}

	resp, err := h.credService.TestCredential(r.Context(), credID, id.OrgID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrCredentialNotFound):
			httputil.RespondError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, services.ErrUnsupportedServiceType):
			httputil.RespondError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.LogError(err, "test credential failed", "credential_id", credID.String())
			httputil.RespondError(w, http.StatusInternalServerError, "Failed to test credential")
		}
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}
