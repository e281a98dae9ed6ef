package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/roachygames/tournament-orchestrator/brackets"
	"github.com/roachygames/tournament-orchestrator/models"
	"github.com/roachygames/tournament-orchestrator/repositories"
)

type RoundAdvancedPayload struct {
	TournamentID int64                  `json:"tournament_id"`
	Round        int                    `json:"round"`
	Matches      []*models.BracketMatch `json:"matches"`
}

// IsFinalRound reports whether matches, the resolved current round of t, ends
// the bracket. Quorum starts below max players reach a single match before
// TotalRounds.
func IsFinalRound(t *models.Tournament, matches []*models.BracketMatch) bool {
	return t.CurrentRound >= t.TotalRounds || len(matches) == 1
}

func activeBrackets(ctx context.Context, repo repositories.TournamentRepository) ([]*models.Tournament, error) {
	format := models.FormatBracket
	return repo.List(ctx, repositories.ListTournamentsFilter{
		Statuses: []models.TournamentStatus{models.StatusActive},
		Format:   &format,
	})
}

// BracketAdvancer builds the next round once every match of the current round is completed.
type BracketAdvancer struct {
	store     Store
	generator brackets.RoundGenerator
	clock     clockwork.Clock
	events    EventPublisher
	logger    *slog.Logger
	isolate   bool
}

func NewBracketAdvancer(store Store, generator brackets.RoundGenerator, clock clockwork.Clock, events EventPublisher, logger *slog.Logger, isolate bool) *BracketAdvancer {
	return &BracketAdvancer{
		store:     store,
		generator: generator,
		clock:     clock,
		events:    publisherOrNoop(events),
		logger:    logger,
		isolate:   isolate,
	}
}

func (a *BracketAdvancer) Name() string { return "bracket_advancer" }

func (a *BracketAdvancer) Run(ctx context.Context) error {
	active, err := activeBrackets(ctx, a.store.Tournaments)
	if err != nil {
		return fmt.Errorf("failed to list active brackets: %w", err)
	}

	f := failures{isolate: a.isolate}
	for _, t := range active {
		if f.add(a.advance(ctx, t)) {
			break
		}
	}
	return f.err()
}

func (a *BracketAdvancer) advance(ctx context.Context, t *models.Tournament) error {
	current, err := a.store.Matches.ListByRound(ctx, nil, t.ID, t.CurrentRound)
	if err != nil {
		return fmt.Errorf("tournament %d: %w", t.ID, err)
	}
	if !models.RoundResolved(current) || IsFinalRound(t, current) {
		return nil
	}

	winners, err := brackets.Winners(current)
	if err != nil {
		return fmt.Errorf("tournament %d: %w", t.ID, err)
	}
	next, err := a.generator.GenerateRound(brackets.GenerateRoundParams{
		TournamentID: t.ID,
		Round:        t.CurrentRound + 1,
		PlayerIDs:    winners,
		Now:          a.clock.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("tournament %d: %w", t.ID, err)
	}

	err = a.store.Tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := a.store.Matches.CreateBatch(ctx, exec, next); err != nil {
			return err
		}
		return a.store.Tournaments.AdvanceRound(ctx, exec, t.ID, t.CurrentRound)
	})
	if errors.Is(err, repositories.ErrTournamentStateChanged) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("tournament %d: failed to advance from round %d: %w", t.ID, t.CurrentRound, err)
	}

	a.logger.InfoContext(ctx, "bracket advanced", tournamentAttrs(t), slog.Int("round", t.CurrentRound+1), slog.Int("matches", len(next)))
	a.events.Publish(t.ID, brackets.EventRoundAdvanced, RoundAdvancedPayload{
		TournamentID: t.ID,
		Round:        t.CurrentRound + 1,
		Matches:      next,
	})
	return nil
}
