package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/roachygames/tournament-orchestrator/middleware"
	"github.com/roachygames/tournament-orchestrator/models"
	"github.com/roachygames/tournament-orchestrator/services"
)

type TournamentHandler struct {
	view         services.TournamentViewService
	registration services.RegistrationService
}

func NewTournamentHandler(view services.TournamentViewService, registration services.RegistrationService) *TournamentHandler {
	return &TournamentHandler{view: view, registration: registration}
}

// ListTournaments handles GET /tournaments?status=registering,active&format=bracket&type=sit_and_go&limit=&offset=
func (h *TournamentHandler) ListTournaments(w http.ResponseWriter, r *http.Request) {
	input, err := parseListInput(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	list, err := h.view.List(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournaments": list}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *TournamentHandler) GetTournament(w http.ResponseWriter, r *http.Request) {
	id, err := tournamentIDParam(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	t, err := h.view.Get(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": t}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *TournamentHandler) GetBracket(w http.ResponseWriter, r *http.Request) {
	id, err := tournamentIDParam(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	rounds, err := h.view.GetBracket(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament_id": id, "rounds": rounds}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type joinInput struct {
	DisplayName string `json:"display_name"`
}

// JoinTournament registers the authenticated player. The body is optional.
func (h *TournamentHandler) JoinTournament(w http.ResponseWriter, r *http.Request) {
	id, err := tournamentIDParam(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	playerID, err := middleware.GetPlayerIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var input joinInput
	if r.ContentLength != 0 {
		if err := readJSON(w, r, &input); err != nil {
			badRequestResponse(w, r, err)
			return
		}
	}

	participant, err := h.registration.Join(r.Context(), id, playerID, input.DisplayName)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"participant": participant}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func parseListInput(r *http.Request) (services.TournamentListInput, error) {
	q := r.URL.Query()
	var input services.TournamentListInput

	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := models.TournamentStatus(strings.TrimSpace(s))
			switch status {
			case models.StatusRegistering, models.StatusActive, models.StatusCompleted, models.StatusCancelled:
				input.Statuses = append(input.Statuses, status)
			default:
				return input, fmt.Errorf("unknown status %q", s)
			}
		}
	}

	if raw := q.Get("format"); raw != "" {
		format := models.TournamentFormat(raw)
		if format != models.FormatBracket && format != models.FormatArena {
			return input, fmt.Errorf("unknown format %q", raw)
		}
		input.Format = &format
	}

	if raw := q.Get("type"); raw != "" {
		tt := models.TournamentType(raw)
		switch tt {
		case models.TypeSitAndGo, models.TypeDaily, models.TypeWeekly, models.TypeMonthly:
			input.Type = &tt
		default:
			return input, fmt.Errorf("unknown type %q", raw)
		}
	}

	var err error
	if input.Limit, err = intQuery(q.Get("limit")); err != nil {
		return input, errors.New("limit must be a non-negative integer")
	}
	if input.Offset, err = intQuery(q.Get("offset")); err != nil {
		return input, errors.New("offset must be a non-negative integer")
	}
	return input, nil
}

func intQuery(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid value %q", raw)
	}
	return v, nil
}
