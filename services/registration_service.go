package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/roachygames/tournament-orchestrator/models"
	"github.com/roachygames/tournament-orchestrator/repositories"
)

type RegistrationService interface {
	Join(ctx context.Context, tournamentID int64, playerID, displayName string) (*models.Participant, error)
}

type registrationService struct {
	store  Store
	clock  clockwork.Clock
	logger *slog.Logger
}

func NewRegistrationService(store Store, clock clockwork.Clock, logger *slog.Logger) RegistrationService {
	return &registrationService{store: store, clock: clock, logger: logger}
}

// Join registers a human player. The participant row and the player count
// are written in one transaction so a full pool rolls the insert back.
func (s *registrationService) Join(ctx context.Context, tournamentID int64, playerID, displayName string) (*models.Participant, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, fmt.Errorf("%w: player id is required", ErrValidationFailed)
	}
	if models.IsBotPlayer(playerID) {
		return nil, ErrReservedPlayerID
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = playerID
	}

	p := &models.Participant{
		TournamentID: tournamentID,
		PlayerID:     playerID,
		DisplayName:  displayName,
		JoinedAt:     s.clock.Now().UTC(),
	}

	err := s.store.Tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.store.Tournaments.GetByIDForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if t.Status != models.StatusRegistering {
			return ErrRegistrationNotOpen
		}

		created, err := s.store.Participants.Create(ctx, exec, p)
		if err != nil {
			return err
		}
		if !created {
			return ErrAlreadyRegistered
		}
		return s.store.Tournaments.IncrementPlayers(ctx, exec, tournamentID)
	})

	switch {
	case err == nil:
	case errors.Is(err, repositories.ErrTournamentNotFound), errors.Is(err, repositories.ErrParticipantTournamentInvalid):
		return nil, ErrTournamentNotFound
	case errors.Is(err, repositories.ErrTournamentNotJoinable):
		return nil, ErrTournamentFull
	case errors.Is(err, ErrRegistrationNotOpen), errors.Is(err, ErrAlreadyRegistered):
		return nil, err
	default:
		return nil, fmt.Errorf("failed to join tournament %d: %w", tournamentID, err)
	}

	s.logger.InfoContext(ctx, "player joined tournament",
		slog.Int64("tournament_id", tournamentID),
		slog.String("player_id", playerID))
	return p, nil
}
