package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roachygames/tournament-orchestrator/models"
)

type PayoutRepository interface {
	// Record inserts a payout and returns false if the player was already paid for the tournament.
	Record(ctx context.Context, exec SQLExecutor, p *models.PrizePayout) (bool, error)
	ListByTournament(ctx context.Context, tournamentID int64) ([]*models.PrizePayout, error)
}

type postgresPayoutRepository struct {
	db *sql.DB
}

func NewPostgresPayoutRepository(db *sql.DB) PayoutRepository {
	return &postgresPayoutRepository{db: db}
}

func (r *postgresPayoutRepository) Record(ctx context.Context, exec SQLExecutor, p *models.PrizePayout) (bool, error) {
	e := exec
	if e == nil {
		e = r.db
	}
	query := `
		INSERT INTO prize_payouts (tournament_id, player_id, placement, amount, paid_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tournament_id, player_id) DO NOTHING
		RETURNING id`
	err := e.QueryRowContext(ctx, query, p.TournamentID, p.PlayerID, p.Placement, p.Amount, p.PaidAt).Scan(&p.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to record payout for %s in tournament %d: %w", p.PlayerID, p.TournamentID, err)
	}
	return true, nil
}

func (r *postgresPayoutRepository) ListByTournament(ctx context.Context, tournamentID int64) ([]*models.PrizePayout, error) {
	query := `
		SELECT id, tournament_id, player_id, placement, amount, paid_at
		FROM prize_payouts WHERE tournament_id = $1 ORDER BY placement ASC`
	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	payouts := make([]*models.PrizePayout, 0)
	for rows.Next() {
		p := &models.PrizePayout{}
		if err := rows.Scan(&p.ID, &p.TournamentID, &p.PlayerID, &p.Placement, &p.Amount, &p.PaidAt); err != nil {
			return nil, fmt.Errorf("failed to scan payout row: %w", err)
		}
		payouts = append(payouts, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during payout rows iteration: %w", err)
	}
	return payouts, nil
}
