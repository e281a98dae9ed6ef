package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/roachygames/tournament-orchestrator/brackets"
	"github.com/roachygames/tournament-orchestrator/metrics"
	"github.com/roachygames/tournament-orchestrator/models"
	"github.com/roachygames/tournament-orchestrator/repositories"
)

type TournamentStartedPayload struct {
	TournamentID int64                  `json:"tournament_id"`
	Players      int                    `json:"players"`
	TotalRounds  int                    `json:"total_rounds"`
	Matches      []*models.BracketMatch `json:"matches,omitempty"`
}

// RegistrationGate starts registering tournaments that are full, or that have
// quorum once their scheduled start has passed. A scheduled tournament nobody
// joined is cancelled at its start time.
type RegistrationGate struct {
	store     Store
	templates *TemplateRegistry
	generator brackets.RoundGenerator
	rng       brackets.RandomSource
	clock     clockwork.Clock
	events    EventPublisher
	logger    *slog.Logger
	metrics   metrics.Recorder
	isolate   bool
}

func NewRegistrationGate(
	store Store,
	templates *TemplateRegistry,
	generator brackets.RoundGenerator,
	rng brackets.RandomSource,
	clock clockwork.Clock,
	events EventPublisher,
	logger *slog.Logger,
	recorder metrics.Recorder,
	isolate bool,
) *RegistrationGate {
	return &RegistrationGate{
		store:     store,
		templates: templates,
		generator: generator,
		rng:       rng,
		clock:     clock,
		events:    publisherOrNoop(events),
		logger:    logger,
		metrics:   recorderOrNoop(recorder),
		isolate:   isolate,
	}
}

func (g *RegistrationGate) Name() string { return "registration_gate" }

func ReadyToStart(t *models.Tournament, now time.Time) bool {
	if t.CurrentPlayers >= t.MaxPlayers {
		return true
	}
	return t.CurrentPlayers >= t.MinPlayers && scheduledStartPassed(t, now)
}

func scheduledStartPassed(t *models.Tournament, now time.Time) bool {
	return t.ScheduledStartAt != nil && !now.Before(*t.ScheduledStartAt)
}

func (g *RegistrationGate) Run(ctx context.Context) error {
	pools, err := listByStatus(ctx, g.store.Tournaments, models.StatusRegistering)
	if err != nil {
		return fmt.Errorf("failed to list registering tournaments: %w", err)
	}

	now := g.clock.Now()
	f := failures{isolate: g.isolate}
	for _, t := range pools {
		var stepErr error
		switch {
		case ReadyToStart(t, now):
			stepErr = g.StartTournament(ctx, t.ID)
			if errors.Is(stepErr, ErrNotEnoughParticipants) {
				g.logger.WarnContext(ctx, "tournament not started", tournamentAttrs(t), slog.Any("error", stepErr))
				stepErr = nil
			}
		case t.CurrentPlayers == 0 && scheduledStartPassed(t, now):
			stepErr = g.cancelEmpty(ctx, t, now)
		}
		if f.add(stepErr) {
			break
		}
	}
	return f.err()
}

// StartTournament seeds the participants, creates round 1 and activates the
// tournament in a single transaction. Arena tournaments get no bracket.
func (g *RegistrationGate) StartTournament(ctx context.Context, tournamentID int64) error {
	now := g.clock.Now().UTC()
	var started *models.Tournament
	var round1 []*models.BracketMatch
	var players int

	err := g.store.Tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := g.store.Tournaments.GetByIDForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if t.Status != models.StatusRegistering {
			return fmt.Errorf("%w: status is %s", ErrRegistrationNotOpen, t.Status)
		}

		participants, err := g.store.Participants.ListByTournament(ctx, exec, t.ID)
		if err != nil {
			return err
		}
		if len(participants) < 2 {
			return fmt.Errorf("%w: tournament %d has %d", ErrNotEnoughParticipants, t.ID, len(participants))
		}
		players = len(participants)

		var scheduledEnd *time.Time
		if t.Format == models.FormatArena {
			if t.ScheduledEndAt == nil {
				tpl, ok := g.templates.Lookup(t.PoolKey())
				if !ok {
					return fmt.Errorf("%w: %q", ErrUnknownTemplate, t.TemplateName)
				}
				end := now.Add(tpl.ArenaDuration)
				scheduledEnd = &end
			}
		} else {
			round1, err = g.buildFirstRound(ctx, exec, t, participants, now)
			if err != nil {
				return err
			}
		}

		if err := g.store.Tournaments.MarkStarted(ctx, exec, t.ID, now, scheduledEnd); err != nil {
			return err
		}
		started = t
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to start tournament %d: %w", tournamentID, err)
	}

	g.metrics.TournamentTransitioned(string(models.StatusActive))
	g.logger.InfoContext(ctx, "tournament started", tournamentAttrs(started), slog.Int("players", players), slog.Int("round1_matches", len(round1)))
	g.events.Publish(started.ID, brackets.EventTournamentStarted, TournamentStartedPayload{
		TournamentID: started.ID,
		Players:      players,
		TotalRounds:  started.TotalRounds,
		Matches:      round1,
	})
	return nil
}

func (g *RegistrationGate) buildFirstRound(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, participants []*models.Participant, now time.Time) ([]*models.BracketMatch, error) {
	seeded := brackets.Seed(participants, g.rng)
	for _, p := range seeded {
		if err := g.store.Participants.AssignSeed(ctx, exec, p.ID, *p.Seed); err != nil {
			return nil, err
		}
	}

	matches, err := g.generator.GenerateRound(brackets.GenerateRoundParams{
		TournamentID: t.ID,
		Round:        1,
		PlayerIDs:    brackets.PlayerIDs(seeded),
		Now:          now,
	})
	if err != nil {
		return nil, err
	}
	if err := g.store.Matches.CreateBatch(ctx, exec, matches); err != nil {
		return nil, err
	}
	return matches, nil
}

func (g *RegistrationGate) cancelEmpty(ctx context.Context, t *models.Tournament, now time.Time) error {
	err := g.store.Tournaments.Cancel(ctx, nil, t.ID, now.UTC())
	if errors.Is(err, repositories.ErrTournamentStateChanged) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to cancel tournament %d: %w", t.ID, err)
	}
	g.metrics.TournamentTransitioned(string(models.StatusCancelled))
	g.logger.InfoContext(ctx, "cancelled empty tournament at scheduled start", tournamentAttrs(t))
	g.events.Publish(t.ID, brackets.EventTournamentCancelled, map[string]int64{"tournament_id": t.ID})
	return nil
}
