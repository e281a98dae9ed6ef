package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/roachygames/tournament-orchestrator/models"
)

var (
	ErrTournamentNotFound     = errors.New("tournament not found")
	ErrTournamentStateChanged = errors.New("tournament state changed concurrently")
	ErrTournamentNotJoinable  = errors.New("tournament is not registering or already full")
)

type ListTournamentsFilter struct {
	Statuses []models.TournamentStatus
	Format   *models.TournamentFormat
	Type     *models.TournamentType
	Limit    int
	Offset   int
}

type TournamentRepository interface {
	// CreateOpenPool inserts a registering pool. It returns false when an open
	// pool for the same (template, fee) already exists.
	CreateOpenPool(ctx context.Context, t *models.Tournament) (bool, error)
	GetByID(ctx context.Context, exec SQLExecutor, id int64) (*models.Tournament, error)
	// GetByIDForUpdate reads the row under FOR UPDATE. Callers that check the
	// status and then write inside exec serialize on this lock.
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int64) (*models.Tournament, error)
	List(ctx context.Context, filter ListTournamentsFilter) ([]*models.Tournament, error)
	DeleteEmptyPool(ctx context.Context, id int64) error
	IncrementPlayers(ctx context.Context, exec SQLExecutor, id int64) error
	MarkStarted(ctx context.Context, exec SQLExecutor, id int64, startedAt time.Time, scheduledEndAt *time.Time) error
	AdvanceRound(ctx context.Context, exec SQLExecutor, id int64, fromRound int) error
	Complete(ctx context.Context, exec SQLExecutor, id int64, winnerID *string, endedAt time.Time) error
	Cancel(ctx context.Context, exec SQLExecutor, id int64, endedAt time.Time) error
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const tournamentColumns = `
	id, template_name, type, format, time_control, entry_fee, prize_pool, rake_amount,
	min_players, max_players, current_players, current_round, total_rounds, status,
	scheduled_start_at, scheduled_end_at, winner_id, created_at, started_at, ended_at`

func scanTournament(row rowScanner) (*models.Tournament, error) {
	t := &models.Tournament{}
	err := row.Scan(
		&t.ID, &t.TemplateName, &t.Type, &t.Format, &t.TimeControl, &t.EntryFee, &t.PrizePool, &t.RakeAmount,
		&t.MinPlayers, &t.MaxPlayers, &t.CurrentPlayers, &t.CurrentRound, &t.TotalRounds, &t.Status,
		&t.ScheduledStartAt, &t.ScheduledEndAt, &t.WinnerID, &t.CreatedAt, &t.StartedAt, &t.EndedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *postgresTournamentRepository) CreateOpenPool(ctx context.Context, t *models.Tournament) (bool, error) {
	query := `
		INSERT INTO tournaments (
			template_name, type, format, time_control, entry_fee, prize_pool, rake_amount,
			min_players, max_players, current_players, current_round, total_rounds, status,
			scheduled_start_at, scheduled_end_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, 0, $10, $11, $12, $13, $14)
		ON CONFLICT (template_name, entry_fee) WHERE status = 'registering' DO NOTHING
		RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		t.TemplateName, t.Type, t.Format, t.TimeControl, t.EntryFee, t.PrizePool, t.RakeAmount,
		t.MinPlayers, t.MaxPlayers, t.TotalRounds, models.StatusRegistering,
		t.ScheduledStartAt, t.ScheduledEndAt, t.CreatedAt,
	).Scan(&t.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert open pool for template %q: %w", t.TemplateName, err)
	}
	t.Status = models.StatusRegistering
	return true, nil
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, exec SQLExecutor, id int64) (*models.Tournament, error) {
	return r.getByID(ctx, exec, id, ``)
}

func (r *postgresTournamentRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int64) (*models.Tournament, error) {
	return r.getByID(ctx, exec, id, ` FOR UPDATE`)
}

func (r *postgresTournamentRepository) getByID(ctx context.Context, exec SQLExecutor, id int64, lock string) (*models.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE id = $1` + lock
	t, err := scanTournament(r.getExecutor(exec).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to get tournament %d: %w", id, err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) List(ctx context.Context, filter ListTournamentsFilter) ([]*models.Tournament, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + tournamentColumns + ` FROM tournaments WHERE 1=1`)

	args := []interface{}{}
	argID := 1

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		queryBuilder.WriteString(fmt.Sprintf(" AND status = ANY($%d)", argID))
		args = append(args, pq.Array(statuses))
		argID++
	}
	if filter.Format != nil {
		queryBuilder.WriteString(fmt.Sprintf(" AND format = $%d", argID))
		args = append(args, *filter.Format)
		argID++
	}
	if filter.Type != nil {
		queryBuilder.WriteString(fmt.Sprintf(" AND type = $%d", argID))
		args = append(args, *filter.Type)
		argID++
	}

	queryBuilder.WriteString(" ORDER BY created_at ASC, id ASC")

	if filter.Limit > 0 {
		queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d", argID))
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		queryBuilder.WriteString(fmt.Sprintf(" OFFSET $%d", argID))
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tournaments: %w", err)
	}
	defer rows.Close()

	tournaments := make([]*models.Tournament, 0)
	for rows.Next() {
		t, scanErr := scanTournament(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan tournament row: %w", scanErr)
		}
		tournaments = append(tournaments, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during tournament rows iteration: %w", err)
	}
	return tournaments, nil
}

func (r *postgresTournamentRepository) DeleteEmptyPool(ctx context.Context, id int64) error {
	query := `DELETE FROM tournaments WHERE id = $1 AND status = $2 AND current_players = 0`
	result, err := r.db.ExecContext(ctx, query, id, models.StatusRegistering)
	if err != nil {
		return fmt.Errorf("failed to delete empty pool %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentStateChanged)
}

func (r *postgresTournamentRepository) IncrementPlayers(ctx context.Context, exec SQLExecutor, id int64) error {
	query := `
		UPDATE tournaments SET current_players = current_players + 1
		WHERE id = $1 AND status = $2 AND current_players < max_players`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, id, models.StatusRegistering)
	if err != nil {
		return fmt.Errorf("failed to increment players for tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotJoinable)
}

func (r *postgresTournamentRepository) MarkStarted(ctx context.Context, exec SQLExecutor, id int64, startedAt time.Time, scheduledEndAt *time.Time) error {
	query := `
		UPDATE tournaments SET
			status = $1,
			current_round = 1,
			started_at = $2,
			scheduled_end_at = COALESCE(scheduled_end_at, $3)
		WHERE id = $4 AND status = $5`
	result, err := r.getExecutor(exec).ExecContext(ctx, query,
		models.StatusActive, startedAt, scheduledEndAt, id, models.StatusRegistering)
	if err != nil {
		return fmt.Errorf("failed to mark tournament %d started: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentStateChanged)
}

func (r *postgresTournamentRepository) AdvanceRound(ctx context.Context, exec SQLExecutor, id int64, fromRound int) error {
	query := `
		UPDATE tournaments SET current_round = current_round + 1
		WHERE id = $1 AND status = $2 AND current_round = $3`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, id, models.StatusActive, fromRound)
	if err != nil {
		return fmt.Errorf("failed to advance tournament %d from round %d: %w", id, fromRound, err)
	}
	return checkAffectedRows(result, ErrTournamentStateChanged)
}

func (r *postgresTournamentRepository) Complete(ctx context.Context, exec SQLExecutor, id int64, winnerID *string, endedAt time.Time) error {
	query := `
		UPDATE tournaments SET status = $1, winner_id = $2, ended_at = $3
		WHERE id = $4 AND status = $5`
	result, err := r.getExecutor(exec).ExecContext(ctx, query,
		models.StatusCompleted, winnerID, endedAt, id, models.StatusActive)
	if err != nil {
		return fmt.Errorf("failed to complete tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentStateChanged)
}

func (r *postgresTournamentRepository) Cancel(ctx context.Context, exec SQLExecutor, id int64, endedAt time.Time) error {
	query := `
		UPDATE tournaments SET status = $1, ended_at = $2
		WHERE id = $3 AND status IN ($4, $5)`
	result, err := r.getExecutor(exec).ExecContext(ctx, query,
		models.StatusCancelled, endedAt, id, models.StatusRegistering, models.StatusActive)
	if err != nil {
		return fmt.Errorf("failed to cancel tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentStateChanged)
}
