// Package engine is the boundary to the game engine that plays matches.
// The orchestrator only creates matches and polls their status and winner.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/roachygames/tournament-orchestrator/models"
)

var ErrGameMatchNotFound = errors.New("game match not found")

type GameEngine interface {
	// CreateMatch creates the game id once. Calling it again with the same id
	// returns the existing game instead of starting a second one.
	CreateMatch(ctx context.Context, id, player1ID, player2ID, timeControl string) (*models.GameMatch, error)
	GetMatch(ctx context.Context, id string) (*models.GameMatch, error)
}

var gameMatchNamespace = uuid.MustParse("5b1d7c3e-2f4a-4e8b-9c6d-0a7e3f91b2c4")

// GameMatchID is the engine id of a bracket match. It depends only on the
// match position, so a retried dispatch finds the game it created before.
func GameMatchID(tournamentID int64, round, matchNumber int) string {
	name := fmt.Sprintf("tournament/%d/round/%d/match/%d", tournamentID, round, matchNumber)
	return uuid.NewSHA1(gameMatchNamespace, []byte(name)).String()
}

// PostgresEngine talks to the engine through its game_matches table.
type PostgresEngine struct {
	db *sql.DB
}

func NewPostgresEngine(db *sql.DB) *PostgresEngine {
	return &PostgresEngine{db: db}
}

func (e *PostgresEngine) CreateMatch(ctx context.Context, id, player1ID, player2ID, timeControl string) (*models.GameMatch, error) {
	m := &models.GameMatch{
		ID:          id,
		Player1ID:   player1ID,
		Player2ID:   player2ID,
		TimeControl: timeControl,
		Status:      models.GameMatchWaiting,
		CreatedAt:   time.Now().UTC(),
	}
	query := `
		INSERT INTO game_matches (id, player1_id, player2_id, time_control, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`
	result, err := e.db.ExecContext(ctx, query, m.ID, m.Player1ID, m.Player2ID, m.TimeControl, m.Status, m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create game match %s vs %s: %w", player1ID, player2ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to create game match %s vs %s: %w", player1ID, player2ID, err)
	}
	if rows == 0 {
		return e.GetMatch(ctx, id)
	}
	return m, nil
}

func (e *PostgresEngine) GetMatch(ctx context.Context, id string) (*models.GameMatch, error) {
	query := `
		SELECT id, player1_id, player2_id, time_control, status, winner_id, created_at
		FROM game_matches WHERE id = $1`
	m := &models.GameMatch{}
	err := e.db.QueryRowContext(ctx, query, id).Scan(
		&m.ID, &m.Player1ID, &m.Player2ID, &m.TimeControl, &m.Status, &m.WinnerID, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGameMatchNotFound
		}
		return nil, fmt.Errorf("failed to get game match %s: %w", id, err)
	}
	return m, nil
}
