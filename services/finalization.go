package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/roachygames/tournament-orchestrator/brackets"
	"github.com/roachygames/tournament-orchestrator/metrics"
	"github.com/roachygames/tournament-orchestrator/models"
	"github.com/roachygames/tournament-orchestrator/repositories"
)

type Placement struct {
	PlayerID  string `json:"player_id"`
	Placement int    `json:"placement"`
	Prize     int64  `json:"prize"`
}

type TournamentCompletedPayload struct {
	TournamentID int64       `json:"tournament_id"`
	WinnerID     string      `json:"winner_id"`
	Placements   []Placement `json:"placements"`
	ResultsURL   string      `json:"results_url,omitempty"`
}

// settler writes final placements, payouts and the completed status, then
// announces and archives the result. Shared by both finalizers.
type settler struct {
	store    Store
	archiver ResultsArchiver
	clock    clockwork.Clock
	events   EventPublisher
	logger   *slog.Logger
	metrics  metrics.Recorder
}

func (s *settler) settle(ctx context.Context, t *models.Tournament, placements []Placement) error {
	if len(placements) == 0 {
		return fmt.Errorf("tournament %d: no placements to settle", t.ID)
	}
	winner := placements[0].PlayerID
	now := s.clock.Now().UTC()
	var paid int64

	err := s.store.Tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		paid = 0
		for _, p := range placements {
			if err := s.store.Participants.SetPlacement(ctx, exec, t.ID, p.PlayerID, p.Placement, p.Prize); err != nil {
				return err
			}
			if p.Prize <= 0 || models.IsBotPlayer(p.PlayerID) {
				continue
			}
			recorded, err := s.store.Payouts.Record(ctx, exec, &models.PrizePayout{
				TournamentID: t.ID,
				PlayerID:     p.PlayerID,
				Placement:    p.Placement,
				Amount:       p.Prize,
				PaidAt:       now,
			})
			if err != nil {
				return err
			}
			if recorded {
				paid += p.Prize
			}
		}
		return s.store.Tournaments.Complete(ctx, exec, t.ID, &winner, now)
	})
	if errors.Is(err, repositories.ErrTournamentStateChanged) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("tournament %d: failed to finalize: %w", t.ID, err)
	}

	t.Status = models.StatusCompleted
	t.WinnerID = &winner
	t.EndedAt = &now

	s.metrics.TournamentTransitioned(string(models.StatusCompleted))
	if paid > 0 {
		s.metrics.PrizePaid(paid)
	}
	s.logger.InfoContext(ctx, "tournament completed", tournamentAttrs(t), slog.String("winner_id", winner), slog.Int64("paid", paid))

	s.events.Publish(t.ID, brackets.EventTournamentCompleted, TournamentCompletedPayload{
		TournamentID: t.ID,
		WinnerID:     winner,
		Placements:   placements,
		ResultsURL:   s.archive(ctx, t),
	})
	return nil
}

func (s *settler) cancel(ctx context.Context, t *models.Tournament) error {
	err := s.store.Tournaments.Cancel(ctx, nil, t.ID, s.clock.Now().UTC())
	if errors.Is(err, repositories.ErrTournamentStateChanged) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("tournament %d: failed to cancel: %w", t.ID, err)
	}
	s.metrics.TournamentTransitioned(string(models.StatusCancelled))
	s.logger.InfoContext(ctx, "tournament cancelled", tournamentAttrs(t))
	s.events.Publish(t.ID, brackets.EventTournamentCancelled, map[string]int64{"tournament_id": t.ID})
	return nil
}

// archive never fails finalization; upload errors are only logged.
func (s *settler) archive(ctx context.Context, t *models.Tournament) string {
	if s.archiver == nil {
		return ""
	}
	participants, err := s.store.Participants.ListByTournament(ctx, nil, t.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load standings for archive", tournamentAttrs(t), slog.Any("error", err))
		return ""
	}
	location, err := s.archiver.Archive(ctx, t, participants)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to archive results", tournamentAttrs(t), slog.Any("error", err))
		return ""
	}
	return location
}
