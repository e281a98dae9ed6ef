package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roachygames/tournament-orchestrator/models"
)

var (
	ErrParticipantNotFound          = errors.New("participant not found")
	ErrParticipantTournamentInvalid = errors.New("participant tournament does not exist")
	ErrSeedAlreadyAssigned          = errors.New("participant seed already assigned")
	ErrSeedConflict                 = errors.New("seed already taken in this tournament")
)

type ParticipantRepository interface {
	// Create inserts p and returns false if the player is already registered.
	Create(ctx context.Context, exec SQLExecutor, p *models.Participant) (bool, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int64) ([]*models.Participant, error)
	AssignSeed(ctx context.Context, exec SQLExecutor, participantID int64, seed int) error
	RecordWin(ctx context.Context, exec SQLExecutor, tournamentID int64, playerID string) error
	RecordLoss(ctx context.Context, exec SQLExecutor, tournamentID int64, playerID string) error
	SetPlacement(ctx context.Context, exec SQLExecutor, tournamentID int64, playerID string, placement int, prize int64) error
}

type postgresParticipantRepository struct {
	db *sql.DB
}

func NewPostgresParticipantRepository(db *sql.DB) ParticipantRepository {
	return &postgresParticipantRepository{db: db}
}

func (r *postgresParticipantRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresParticipantRepository) Create(ctx context.Context, exec SQLExecutor, p *models.Participant) (bool, error) {
	query := `
		INSERT INTO participants (tournament_id, player_id, display_name, is_bot, joined_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tournament_id, player_id) DO NOTHING
		RETURNING id`

	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now().UTC()
	}

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		p.TournamentID,
		p.PlayerID,
		p.DisplayName,
		p.IsBot,
		p.JoinedAt,
	).Scan(&p.ID)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		if constraint, ok := pqConstraint(err, pqForeignKeyViolation); ok && constraint == "participants_tournament_id_fkey" {
			return false, ErrParticipantTournamentInvalid
		}
		return false, fmt.Errorf("failed to create participant %s: %w", p.PlayerID, err)
	}
	return true, nil
}

func scanParticipant(row rowScanner) (*models.Participant, error) {
	p := &models.Participant{}
	err := row.Scan(
		&p.ID,
		&p.TournamentID,
		&p.PlayerID,
		&p.DisplayName,
		&p.IsBot,
		&p.Seed,
		&p.Wins,
		&p.Losses,
		&p.Points,
		&p.GamesPlayed,
		&p.IsEliminated,
		&p.FinalPlacement,
		&p.PrizesWon,
		&p.JoinedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListByTournament returns participants in join order.
func (r *postgresParticipantRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int64) ([]*models.Participant, error) {
	query := `
		SELECT id, tournament_id, player_id, display_name, is_bot, seed, wins, losses, points,
		       games_played, is_eliminated, final_placement, prizes_won, joined_at
		FROM participants
		WHERE tournament_id = $1
		ORDER BY joined_at ASC, id ASC`

	rows, err := r.getExecutor(exec).QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	participants := make([]*models.Participant, 0)
	for rows.Next() {
		p, scanErr := scanParticipant(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", scanErr)
		}
		participants = append(participants, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during participant rows iteration: %w", err)
	}
	return participants, nil
}

func (r *postgresParticipantRepository) AssignSeed(ctx context.Context, exec SQLExecutor, participantID int64, seed int) error {
	query := `UPDATE participants SET seed = $1 WHERE id = $2 AND seed IS NULL`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, seed, participantID)
	if err != nil {
		if constraint, ok := pqConstraint(err, pqUniqueViolation); ok && constraint == "participants_tournament_seed_key" {
			return ErrSeedConflict
		}
		return fmt.Errorf("failed to assign seed to participant %d: %w", participantID, err)
	}
	return checkAffectedRows(result, ErrSeedAlreadyAssigned)
}

func (r *postgresParticipantRepository) RecordWin(ctx context.Context, exec SQLExecutor, tournamentID int64, playerID string) error {
	query := `
		UPDATE participants SET wins = wins + 1, games_played = games_played + 1
		WHERE tournament_id = $1 AND player_id = $2`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, tournamentID, playerID)
	if err != nil {
		return fmt.Errorf("failed to record win for %s: %w", playerID, err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) RecordLoss(ctx context.Context, exec SQLExecutor, tournamentID int64, playerID string) error {
	query := `
		UPDATE participants SET losses = losses + 1, games_played = games_played + 1, is_eliminated = TRUE
		WHERE tournament_id = $1 AND player_id = $2`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, tournamentID, playerID)
	if err != nil {
		return fmt.Errorf("failed to record loss for %s: %w", playerID, err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) SetPlacement(ctx context.Context, exec SQLExecutor, tournamentID int64, playerID string, placement int, prize int64) error {
	query := `
		UPDATE participants SET final_placement = $1, prizes_won = $2
		WHERE tournament_id = $3 AND player_id = $4`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, placement, prize, tournamentID, playerID)
	if err != nil {
		return fmt.Errorf("failed to set placement for %s: %w", playerID, err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}
