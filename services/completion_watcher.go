package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/roachygames/tournament-orchestrator/engine"
	"github.com/roachygames/tournament-orchestrator/models"
)

// CompletionWatcher reconciles active bracket matches with their game engine
// records. Undecided games are polled again on the next tick with no timeout.
type CompletionWatcher struct {
	store   Store
	engine  engine.GameEngine
	clock   clockwork.Clock
	events  EventPublisher
	logger  *slog.Logger
	isolate bool
}

func NewCompletionWatcher(store Store, gameEngine engine.GameEngine, clock clockwork.Clock, events EventPublisher, logger *slog.Logger, isolate bool) *CompletionWatcher {
	return &CompletionWatcher{
		store:   store,
		engine:  gameEngine,
		clock:   clock,
		events:  publisherOrNoop(events),
		logger:  logger,
		isolate: isolate,
	}
}

func (w *CompletionWatcher) Name() string { return "completion_watcher" }

func (w *CompletionWatcher) Run(ctx context.Context) error {
	active, err := w.store.Matches.ListByStatus(ctx, models.MatchStatusActive)
	if err != nil {
		return fmt.Errorf("failed to list active matches: %w", err)
	}

	f := failures{isolate: w.isolate}
	for _, m := range active {
		if m.GameMatchID == nil {
			continue
		}
		if f.add(w.reconcile(ctx, m)) {
			break
		}
	}
	return f.err()
}

func (w *CompletionWatcher) reconcile(ctx context.Context, m *models.BracketMatch) error {
	gm, err := w.engine.GetMatch(ctx, *m.GameMatchID)
	if err != nil {
		return fmt.Errorf("tournament %d match %d: %w", m.TournamentID, m.ID, err)
	}

	switch {
	case gm.Status == models.GameMatchCompleted && gm.WinnerID != nil:
	case gm.Status == models.GameMatchCompleted, gm.Status == models.GameMatchAborted:
		w.logger.DebugContext(ctx, "game finished without a winner, bracket match stays active",
			slog.Int64("match_id", m.ID), slog.String("game_match_id", gm.ID), slog.String("game_status", string(gm.Status)))
		return nil
	default:
		return nil
	}

	recorded, err := recordMatchResult(ctx, w.store, w.events, m, *gm.WinnerID, w.clock.Now().UTC())
	if err != nil {
		return err
	}
	if recorded {
		w.logger.InfoContext(ctx, "bracket match completed",
			slog.Int64("tournament_id", m.TournamentID), slog.Int64("match_id", m.ID),
			slog.Int("round", m.Round), slog.String("winner_id", *gm.WinnerID))
	}
	return nil
}
