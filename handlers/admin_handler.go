package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/roachygames/tournament-orchestrator/services"
)

// Ticker is satisfied by *services.Orchestrator.
type Ticker interface {
	Tick(ctx context.Context) error
	ConsecutiveFailures() int
}

// TournamentStarter is satisfied by *services.RegistrationGate.
type TournamentStarter interface {
	StartTournament(ctx context.Context, tournamentID int64) error
}

type AdminHandler struct {
	orchestrator Ticker
	starter      TournamentStarter
}

func NewAdminHandler(orchestrator Ticker, starter TournamentStarter) *AdminHandler {
	return &AdminHandler{orchestrator: orchestrator, starter: starter}
}

// TriggerTick runs one orchestrator tick synchronously. Step failures are
// reported in the body; the tick itself always completes.
func (h *AdminHandler) TriggerTick(w http.ResponseWriter, r *http.Request) {
	err := h.orchestrator.Tick(r.Context())

	response := jsonResponse{
		"result":               services.TickOK,
		"consecutive_failures": h.orchestrator.ConsecutiveFailures(),
	}
	if err != nil {
		response["result"] = services.TickFailed
		response["error"] = err.Error()
	}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// StartTournament forces a registering tournament to start with its current participants.
func (h *AdminHandler) StartTournament(w http.ResponseWriter, r *http.Request) {
	id, err := tournamentIDParam(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	err = h.starter.StartTournament(r.Context(), id)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrNotEnoughParticipants):
		errorResponse(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	default:
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament_id": id, "status": "started"}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
