package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/roachygames/tournament-orchestrator/brackets"
	"github.com/roachygames/tournament-orchestrator/engine"
	"github.com/roachygames/tournament-orchestrator/models"
	"github.com/roachygames/tournament-orchestrator/repositories"
)

// MatchDispatcher gets pending bracket matches played. Bot-vs-bot matches are
// decided on the spot with a uniformly random winner; every other pairing is
// handed to the game engine and linked to the resulting game match.
type MatchDispatcher struct {
	store   Store
	engine  engine.GameEngine
	rng     brackets.RandomSource
	clock   clockwork.Clock
	events  EventPublisher
	logger  *slog.Logger
	isolate bool
}

func NewMatchDispatcher(store Store, gameEngine engine.GameEngine, rng brackets.RandomSource, clock clockwork.Clock, events EventPublisher, logger *slog.Logger, isolate bool) *MatchDispatcher {
	return &MatchDispatcher{
		store:   store,
		engine:  gameEngine,
		rng:     rng,
		clock:   clock,
		events:  publisherOrNoop(events),
		logger:  logger,
		isolate: isolate,
	}
}

func (d *MatchDispatcher) Name() string { return "match_dispatcher" }

func (d *MatchDispatcher) Run(ctx context.Context) error {
	pending, err := d.store.Matches.ListByStatus(ctx, models.MatchStatusPending)
	if err != nil {
		return fmt.Errorf("failed to list pending matches: %w", err)
	}

	tournaments := make(map[int64]*models.Tournament)
	f := failures{isolate: d.isolate}
	for _, m := range pending {
		if m.IsBye() {
			continue
		}
		t, ok := tournaments[m.TournamentID]
		if !ok {
			t, err = d.store.Tournaments.GetByID(ctx, nil, m.TournamentID)
			if err != nil {
				if f.add(fmt.Errorf("match %d: %w", m.ID, err)) {
					break
				}
				continue
			}
			tournaments[m.TournamentID] = t
		}
		if t.Status != models.StatusActive {
			continue
		}
		if f.add(d.dispatch(ctx, t, m)) {
			break
		}
	}
	return f.err()
}

func (d *MatchDispatcher) dispatch(ctx context.Context, t *models.Tournament, m *models.BracketMatch) error {
	p2 := derefString(m.Player2ID)

	if models.IsBotPlayer(m.Player1ID) && models.IsBotPlayer(p2) {
		winner := m.Player1ID
		if d.rng.Number(0, 1) == 1 {
			winner = p2
		}
		_, err := recordMatchResult(ctx, d.store, d.events, m, winner, d.clock.Now().UTC())
		return err
	}

	gm, err := d.engine.CreateMatch(ctx, engine.GameMatchID(t.ID, m.Round, m.MatchNumber), m.Player1ID, p2, t.TimeControl)
	if err != nil {
		return fmt.Errorf("tournament %d match %d: %w", t.ID, m.ID, err)
	}
	err = d.store.Matches.Activate(ctx, m.ID, gm.ID, d.clock.Now().UTC())
	if errors.Is(err, repositories.ErrBracketMatchNotPending) {
		d.logger.WarnContext(ctx, "bracket match left pending state before linking", slog.Int64("match_id", m.ID), slog.String("game_match_id", gm.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("tournament %d match %d: %w", t.ID, m.ID, err)
	}
	d.logger.DebugContext(ctx, "dispatched match to game engine", slog.Int64("tournament_id", t.ID), slog.Int64("match_id", m.ID), slog.String("game_match_id", gm.ID))
	return nil
}
