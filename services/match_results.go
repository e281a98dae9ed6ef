package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roachygames/tournament-orchestrator/brackets"
	"github.com/roachygames/tournament-orchestrator/models"
	"github.com/roachygames/tournament-orchestrator/repositories"
)

type MatchCompletedPayload struct {
	MatchID     int64  `json:"match_id"`
	Round       int    `json:"round"`
	MatchNumber int    `json:"match_number"`
	WinnerID    string `json:"winner_id"`
	LoserID     string `json:"loser_id"`
}

// recordMatchResult completes m with winner and updates both players' stats in
// one transaction. It reports false when m was already completed, in which case
// nothing is written.
func recordMatchResult(ctx context.Context, store Store, events EventPublisher, m *models.BracketMatch, winner string, now time.Time) (bool, error) {
	loser := m.Opponent(winner)
	if loser == "" {
		return false, fmt.Errorf("%w: match %d, winner %q", ErrUnexpectedWinner, m.ID, winner)
	}

	err := store.Tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := store.Matches.Complete(ctx, exec, m.ID, winner, now); err != nil {
			return err
		}
		if err := store.Participants.RecordWin(ctx, exec, m.TournamentID, winner); err != nil {
			return err
		}
		return store.Participants.RecordLoss(ctx, exec, m.TournamentID, loser)
	})
	if errors.Is(err, repositories.ErrBracketMatchAlreadyCompleted) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("tournament %d match %d: %w", m.TournamentID, m.ID, err)
	}

	m.Status = models.MatchStatusCompleted
	m.WinnerID = &winner
	m.EndedAt = &now

	events.Publish(m.TournamentID, brackets.EventMatchCompleted, MatchCompletedPayload{
		MatchID:     m.ID,
		Round:       m.Round,
		MatchNumber: m.MatchNumber,
		WinnerID:    winner,
		LoserID:     loser,
	})
	return true, nil
}
