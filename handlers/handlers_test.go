package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v4"
	"github.com/jonboulle/clockwork"
	"github.com/roachygames/tournament-orchestrator/middleware"
	"github.com/roachygames/tournament-orchestrator/models"
	"github.com/roachygames/tournament-orchestrator/repositories"
	"github.com/roachygames/tournament-orchestrator/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeView struct {
	list   []*models.Tournament
	tour   *models.Tournament
	rounds []models.BracketRound
	err    error

	gotInput services.TournamentListInput
}

func (f *fakeView) List(ctx context.Context, input services.TournamentListInput) ([]*models.Tournament, error) {
	f.gotInput = input
	return f.list, f.err
}

func (f *fakeView) Get(ctx context.Context, id int64) (*models.Tournament, error) {
	return f.tour, f.err
}

func (f *fakeView) GetBracket(ctx context.Context, id int64) ([]models.BracketRound, error) {
	return f.rounds, f.err
}

type fakeRegistration struct {
	err error

	gotTournament int64
	gotPlayer     string
	gotName       string
}

func (f *fakeRegistration) Join(ctx context.Context, tournamentID int64, playerID, displayName string) (*models.Participant, error) {
	f.gotTournament, f.gotPlayer, f.gotName = tournamentID, playerID, displayName
	if f.err != nil {
		return nil, f.err
	}
	return &models.Participant{ID: 1, TournamentID: tournamentID, PlayerID: playerID, DisplayName: displayName}, nil
}

type fakeTicker struct {
	err      error
	failures int
}

func (f *fakeTicker) Tick(ctx context.Context) error { return f.err }
func (f *fakeTicker) ConsecutiveFailures() int       { return f.failures }

type fakeStarter struct{ err error }

func (f fakeStarter) StartTournament(ctx context.Context, id int64) error { return f.err }

type fakeAuth struct{ err error }

func (f fakeAuth) AdminLogin(ctx context.Context, password string) error { return f.err }

type fakePinger struct{ err error }

func (f fakePinger) PingContext(ctx context.Context) error { return f.err }

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

// asPlayer injects verified claims the way Authenticate would.
func asPlayer(playerID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := jwt.MapClaims{"user_id": playerID, "role": services.RolePlayer}
			next.ServeHTTP(w, r.WithContext(middleware.WithClaims(r.Context(), claims)))
		})
	}
}

func tournamentRouter(h *TournamentHandler, player string) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/tournaments", h.ListTournaments)
	r.Get("/tournaments/{tournamentID}", h.GetTournament)
	r.Get("/tournaments/{tournamentID}/bracket", h.GetBracket)
	r.Group(func(r chi.Router) {
		if player != "" {
			r.Use(asPlayer(player))
		}
		r.Post("/tournaments/{tournamentID}/join", h.JoinTournament)
	})
	return r
}

func serve(handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestListTournaments_ParsesFilters(t *testing.T) {
	view := &fakeView{list: []*models.Tournament{{ID: 4, TemplateName: "Daily Blitz", Status: models.StatusRegistering}}}
	router := tournamentRouter(NewTournamentHandler(view, &fakeRegistration{}), "")

	rec := serve(router, http.MethodGet, "/tournaments?status=registering,active&format=bracket&type=daily&limit=5&offset=10", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []models.TournamentStatus{models.StatusRegistering, models.StatusActive}, view.gotInput.Statuses)
	require.NotNil(t, view.gotInput.Format)
	assert.Equal(t, models.FormatBracket, *view.gotInput.Format)
	require.NotNil(t, view.gotInput.Type)
	assert.Equal(t, models.TypeDaily, *view.gotInput.Type)
	assert.Equal(t, 5, view.gotInput.Limit)
	assert.Equal(t, 10, view.gotInput.Offset)

	list := decode(t, rec)["tournaments"].([]interface{})
	require.Len(t, list, 1)
	assert.Equal(t, "Daily Blitz", list[0].(map[string]interface{})["template_name"])
}

func TestListTournaments_RejectsBadQuery(t *testing.T) {
	for _, query := range []string{"status=paused", "format=swiss", "type=hourly", "limit=-1", "offset=abc"} {
		t.Run(query, func(t *testing.T) {
			view := &fakeView{}
			rec := serve(tournamentRouter(NewTournamentHandler(view, &fakeRegistration{}), ""), http.MethodGet, "/tournaments?"+query, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetTournament(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		view := &fakeView{tour: &models.Tournament{ID: 9, Status: models.StatusActive}}
		rec := serve(tournamentRouter(NewTournamentHandler(view, &fakeRegistration{}), ""), http.MethodGet, "/tournaments/9", "")
		require.Equal(t, http.StatusOK, rec.Code)
		tour := decode(t, rec)["tournament"].(map[string]interface{})
		assert.Equal(t, "active", tour["status"])
	})

	t.Run("not found", func(t *testing.T) {
		view := &fakeView{err: fmt.Errorf("load: %w", repositories.ErrTournamentNotFound)}
		rec := serve(tournamentRouter(NewTournamentHandler(view, &fakeRegistration{}), ""), http.MethodGet, "/tournaments/9", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		rec := serve(tournamentRouter(NewTournamentHandler(&fakeView{}, &fakeRegistration{}), ""), http.MethodGet, "/tournaments/zero/bracket", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetBracket(t *testing.T) {
	view := &fakeView{rounds: []models.BracketRound{{Round: 1}}}
	rec := serve(tournamentRouter(NewTournamentHandler(view, &fakeRegistration{}), ""), http.MethodGet, "/tournaments/3/bracket", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.EqualValues(t, 3, body["tournament_id"])
	assert.Len(t, body["rounds"], 1)
}

func TestJoinTournament(t *testing.T) {
	t.Run("uses the token subject", func(t *testing.T) {
		reg := &fakeRegistration{}
		router := tournamentRouter(NewTournamentHandler(&fakeView{}, reg), "player-7")

		rec := serve(router, http.MethodPost, "/tournaments/12/join", `{"display_name":"Seven"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, int64(12), reg.gotTournament)
		assert.Equal(t, "player-7", reg.gotPlayer)
		assert.Equal(t, "Seven", reg.gotName)
	})

	t.Run("body is optional", func(t *testing.T) {
		reg := &fakeRegistration{}
		rec := serve(tournamentRouter(NewTournamentHandler(&fakeView{}, reg), "player-7"), http.MethodPost, "/tournaments/12/join", "")
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Empty(t, reg.gotName)
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		rec := serve(tournamentRouter(NewTournamentHandler(&fakeView{}, &fakeRegistration{}), "player-7"),
			http.MethodPost, "/tournaments/12/join", `{"player_id":"someone-else"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("requires claims", func(t *testing.T) {
		rec := serve(tournamentRouter(NewTournamentHandler(&fakeView{}, &fakeRegistration{}), ""), http.MethodPost, "/tournaments/12/join", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestJoinTournament_MapsServiceErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("join: %w", services.ErrTournamentFull), http.StatusConflict},
		{services.ErrAlreadyRegistered, http.StatusConflict},
		{services.ErrRegistrationNotOpen, http.StatusForbidden},
		{services.ErrReservedPlayerID, http.StatusForbidden},
		{fmt.Errorf("%w: player id is required", services.ErrValidationFailed), http.StatusBadRequest},
		{services.ErrTournamentNotFound, http.StatusNotFound},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			reg := &fakeRegistration{err: tt.err}
			rec := serve(tournamentRouter(NewTournamentHandler(&fakeView{}, reg), "player-7"), http.MethodPost, "/tournaments/12/join", "")
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}
}

func TestAdminHandler_TriggerTick(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		rec := serve(http.HandlerFunc(NewAdminHandler(&fakeTicker{}, fakeStarter{}).TriggerTick), http.MethodPost, "/", "")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "ok", body["result"])
		assert.NotContains(t, body, "error")
	})

	t.Run("failed step is reported in the body", func(t *testing.T) {
		ticker := &fakeTicker{err: errors.New("dispatcher: engine unavailable"), failures: 3}
		rec := serve(http.HandlerFunc(NewAdminHandler(ticker, fakeStarter{}).TriggerTick), http.MethodPost, "/", "")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "failed", body["result"])
		assert.Equal(t, "dispatcher: engine unavailable", body["error"])
		assert.EqualValues(t, 3, body["consecutive_failures"])
	})
}

func TestAdminHandler_StartTournament(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"started", nil, http.StatusOK},
		{"too few players", services.ErrNotEnoughParticipants, http.StatusUnprocessableEntity},
		{"already started", repositories.ErrTournamentStateChanged, http.StatusConflict},
		{"unknown", repositories.ErrTournamentNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Post("/admin/tournaments/{tournamentID}/start", NewAdminHandler(&fakeTicker{}, fakeStarter{err: tt.err}).StartTournament)
			rec := serve(r, http.MethodPost, "/admin/tournaments/5/start", "")
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAuthHandler_IssueAdminToken(t *testing.T) {
	secret := "handler-secret"
	now := time.Now()

	t.Run("valid password", func(t *testing.T) {
		h := NewAuthHandler(fakeAuth{}, secret, clockwork.NewFakeClockAt(now))
		rec := serve(http.HandlerFunc(h.IssueAdminToken), http.MethodPost, "/auth/token", `{"password":"hunter2"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		token := decode(t, rec)["token"].(string)
		claims, err := middleware.ParseToken(token, []byte(secret))
		require.NoError(t, err)
		assert.Equal(t, services.RoleAdmin, claims["role"])
		assert.Equal(t, services.AdminSubject, claims["user_id"])
	})

	t.Run("wrong password", func(t *testing.T) {
		h := NewAuthHandler(fakeAuth{err: services.ErrAuthInvalidCredentials}, secret, clockwork.NewFakeClockAt(now))
		rec := serve(http.HandlerFunc(h.IssueAdminToken), http.MethodPost, "/auth/token", `{"password":"nope"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("not configured", func(t *testing.T) {
		h := NewAuthHandler(fakeAuth{err: services.ErrAuthNotConfigured}, secret, clockwork.NewFakeClockAt(now))
		rec := serve(http.HandlerFunc(h.IssueAdminToken), http.MethodPost, "/auth/token", `{"password":"x"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		h := NewAuthHandler(fakeAuth{}, secret, clockwork.NewFakeClockAt(now))
		rec := serve(http.HandlerFunc(h.IssueAdminToken), http.MethodPost, "/auth/token", `{"password":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHealthHandler(t *testing.T) {
	rec := serve(http.HandlerFunc(NewHealthHandler(fakePinger{}).Health), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(http.HandlerFunc(NewHealthHandler(fakePinger{err: errors.New("dial tcp: refused")}).Health), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
