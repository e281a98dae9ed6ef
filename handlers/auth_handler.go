package handlers

import (
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/roachygames/tournament-orchestrator/middleware"
	"github.com/roachygames/tournament-orchestrator/services"
)

const adminTokenTTL = 12 * time.Hour

type AuthHandler struct {
	authService services.AuthService
	jwtSecret   []byte
	clock       clockwork.Clock
}

func NewAuthHandler(authService services.AuthService, jwtSecret string, clock clockwork.Clock) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		jwtSecret:   []byte(jwtSecret),
		clock:       clock,
	}
}

type tokenInput struct {
	Password string `json:"password"`
}

// IssueAdminToken exchanges the operator password for an admin JWT.
func (h *AuthHandler) IssueAdminToken(w http.ResponseWriter, r *http.Request) {
	var input tokenInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.authService.AdminLogin(r.Context(), input.Password); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	now := h.clock.Now()
	token, err := middleware.IssueToken(h.jwtSecret, services.AdminSubject, services.RoleAdmin, now, adminTokenTTL)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}

	response := jsonResponse{
		"token":      token,
		"expires_at": now.Add(adminTokenTTL).UTC(),
	}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
