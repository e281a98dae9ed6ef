package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/roachygames/tournament-orchestrator/metrics"
	"github.com/roachygames/tournament-orchestrator/models"
)

// BracketFinalizer closes bracket tournaments whose final match is decided.
// The winner is 1st and the other finalist 2nd; there is no third-place match,
// so no 3rd prize is paid in this format.
type BracketFinalizer struct {
	settler
	isolate bool
}

func NewBracketFinalizer(store Store, archiver ResultsArchiver, clock clockwork.Clock, events EventPublisher, logger *slog.Logger, recorder metrics.Recorder, isolate bool) *BracketFinalizer {
	return &BracketFinalizer{
		settler: settler{
			store:    store,
			archiver: archiver,
			clock:    clock,
			events:   publisherOrNoop(events),
			logger:   logger,
			metrics:  recorderOrNoop(recorder),
		},
		isolate: isolate,
	}
}

func (b *BracketFinalizer) Name() string { return "bracket_finalizer" }

func (b *BracketFinalizer) Run(ctx context.Context) error {
	active, err := activeBrackets(ctx, b.store.Tournaments)
	if err != nil {
		return fmt.Errorf("failed to list active brackets: %w", err)
	}

	f := failures{isolate: b.isolate}
	for _, t := range active {
		if f.add(b.finalize(ctx, t)) {
			break
		}
	}
	return f.err()
}

func (b *BracketFinalizer) finalize(ctx context.Context, t *models.Tournament) error {
	matches, err := b.store.Matches.ListByRound(ctx, nil, t.ID, t.CurrentRound)
	if err != nil {
		return fmt.Errorf("tournament %d: %w", t.ID, err)
	}
	if !models.RoundResolved(matches) || !IsFinalRound(t, matches) {
		return nil
	}
	placements, err := BracketPlacements(t, matches)
	if err != nil {
		return fmt.Errorf("tournament %d: %w", t.ID, err)
	}
	return b.settle(ctx, t, placements)
}

// BracketPlacements derives 1st and 2nd from the resolved final round.
func BracketPlacements(t *models.Tournament, final []*models.BracketMatch) ([]Placement, error) {
	if len(final) != 1 {
		return nil, fmt.Errorf("%w: round %d has %d", ErrFinalNotSingleMatch, t.CurrentRound, len(final))
	}
	m := final[0]
	if m.WinnerID == nil {
		return nil, fmt.Errorf("final match %d has no winner", m.ID)
	}

	prizes := PlacementPrizes(t.PrizePool)
	placements := []Placement{{PlayerID: *m.WinnerID, Placement: 1, Prize: prizes[0]}}
	if runnerUp := m.Opponent(*m.WinnerID); runnerUp != "" {
		placements = append(placements, Placement{PlayerID: runnerUp, Placement: 2, Prize: prizes[1]})
	}
	return placements, nil
}
