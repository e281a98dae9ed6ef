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
	ErrBracketMatchNotFound         = errors.New("bracket match not found")
	ErrBracketMatchAlreadyCompleted = errors.New("bracket match already completed")
	ErrBracketMatchNotPending       = errors.New("bracket match is not pending")
)

type BracketMatchRepository interface {
	// CreateBatch inserts matches, ignoring slots that already exist.
	CreateBatch(ctx context.Context, exec SQLExecutor, matches []*models.BracketMatch) error
	ListByRound(ctx context.Context, exec SQLExecutor, tournamentID int64, round int) ([]*models.BracketMatch, error)
	ListByTournament(ctx context.Context, tournamentID int64) ([]*models.BracketMatch, error)
	ListByStatus(ctx context.Context, status models.MatchStatus) ([]*models.BracketMatch, error)
	Activate(ctx context.Context, id int64, gameMatchID string, startedAt time.Time) error
	Complete(ctx context.Context, exec SQLExecutor, id int64, winnerID string, endedAt time.Time) error
}

type postgresBracketMatchRepository struct {
	db *sql.DB
}

func NewPostgresBracketMatchRepository(db *sql.DB) BracketMatchRepository {
	return &postgresBracketMatchRepository{db: db}
}

func (r *postgresBracketMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const bracketMatchColumns = `
	id, tournament_id, round, match_number, player1_id, player2_id, status,
	winner_id, game_match_id, started_at, ended_at`

func scanBracketMatch(row rowScanner) (*models.BracketMatch, error) {
	m := &models.BracketMatch{}
	err := row.Scan(
		&m.ID, &m.TournamentID, &m.Round, &m.MatchNumber, &m.Player1ID, &m.Player2ID, &m.Status,
		&m.WinnerID, &m.GameMatchID, &m.StartedAt, &m.EndedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *postgresBracketMatchRepository) CreateBatch(ctx context.Context, exec SQLExecutor, matches []*models.BracketMatch) error {
	query := `
		INSERT INTO bracket_matches (
			tournament_id, round, match_number, player1_id, player2_id, status, winner_id, started_at, ended_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tournament_id, round, match_number) DO NOTHING
		RETURNING id`

	e := r.getExecutor(exec)
	for _, m := range matches {
		err := e.QueryRowContext(ctx, query,
			m.TournamentID, m.Round, m.MatchNumber, m.Player1ID, m.Player2ID, m.Status, m.WinnerID, m.StartedAt, m.EndedAt,
		).Scan(&m.ID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to insert match %d of round %d for tournament %d: %w",
				m.MatchNumber, m.Round, m.TournamentID, err)
		}
	}
	return nil
}

func (r *postgresBracketMatchRepository) query(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) ([]*models.BracketMatch, error) {
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bracket matches: %w", err)
	}
	defer rows.Close()

	matches := make([]*models.BracketMatch, 0)
	for rows.Next() {
		m, scanErr := scanBracketMatch(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan bracket match row: %w", scanErr)
		}
		matches = append(matches, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during bracket match rows iteration: %w", err)
	}
	return matches, nil
}

func (r *postgresBracketMatchRepository) ListByRound(ctx context.Context, exec SQLExecutor, tournamentID int64, round int) ([]*models.BracketMatch, error) {
	return r.query(ctx, exec,
		`SELECT `+bracketMatchColumns+` FROM bracket_matches
		 WHERE tournament_id = $1 AND round = $2 ORDER BY match_number ASC`,
		tournamentID, round)
}

func (r *postgresBracketMatchRepository) ListByTournament(ctx context.Context, tournamentID int64) ([]*models.BracketMatch, error) {
	return r.query(ctx, nil,
		`SELECT `+bracketMatchColumns+` FROM bracket_matches
		 WHERE tournament_id = $1 ORDER BY round ASC, match_number ASC`,
		tournamentID)
}

func (r *postgresBracketMatchRepository) ListByStatus(ctx context.Context, status models.MatchStatus) ([]*models.BracketMatch, error) {
	return r.query(ctx, nil,
		`SELECT `+bracketMatchColumns+` FROM bracket_matches
		 WHERE status = $1 ORDER BY tournament_id ASC, round ASC, match_number ASC`,
		status)
}

func (r *postgresBracketMatchRepository) Activate(ctx context.Context, id int64, gameMatchID string, startedAt time.Time) error {
	query := `
		UPDATE bracket_matches SET status = $1, game_match_id = $2, started_at = $3
		WHERE id = $4 AND status = $5`
	result, err := r.db.ExecContext(ctx, query,
		models.MatchStatusActive, gameMatchID, startedAt, id, models.MatchStatusPending)
	if err != nil {
		return fmt.Errorf("failed to activate bracket match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrBracketMatchNotPending)
}

func (r *postgresBracketMatchRepository) Complete(ctx context.Context, exec SQLExecutor, id int64, winnerID string, endedAt time.Time) error {
	query := `
		UPDATE bracket_matches SET status = $1, winner_id = $2, ended_at = $3
		WHERE id = $4 AND status <> $1`
	result, err := r.getExecutor(exec).ExecContext(ctx, query,
		models.MatchStatusCompleted, winnerID, endedAt, id)
	if err != nil {
		return fmt.Errorf("failed to complete bracket match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrBracketMatchAlreadyCompleted)
}
