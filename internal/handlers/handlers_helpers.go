package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"ledgermate-backend/internal/auth"
	"ledgermate-backend/pkg/httputil"
)

// identity is the authenticated caller extracted from the request context.
type identity struct {
	UserID uuid.UUID
	OrgID  uuid.UUID
	Role   string
}

// requireIdentity pulls the authenticated identity out of the request
// context. Writes a 401 and returns false when the auth middleware did not
// run or the claims are incomplete.
func requireIdentity(w http.ResponseWriter, r *http.Request) (identity, bool) {
	userID, okUser := auth.GetUserIDFromContext(r.Context())
	orgID, okOrg := auth.GetOrgIDFromContext(r.Context())
	role, okRole := auth.GetUserRoleFromContext(r.Context())
	if !okUser || !okOrg || !okRole {
		httputil.RespondError(w, http.StatusUnauthorized, "Authentication required")
		return identity{}, false
	}
	return identity{UserID: userID, OrgID: orgID, Role: role}, true
}

// parseUUIDParam reads a chi URL parameter as a UUID.
func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

// queryInt reads an optional integer query parameter, falling back on absent
// or malformed values.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
