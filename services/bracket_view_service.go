package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/roachygames/tournament-orchestrator/models"
	"github.com/roachygames/tournament-orchestrator/repositories"
	"golang.org/x/sync/errgroup"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type TournamentListInput struct {
	Statuses []models.TournamentStatus
	Format   *models.TournamentFormat
	Type     *models.TournamentType
	Limit    int
	Offset   int
}

// TournamentViewService serves the read API. It never mutates state.
type TournamentViewService interface {
	List(ctx context.Context, input TournamentListInput) ([]*models.Tournament, error)
	Get(ctx context.Context, id int64) (*models.Tournament, error)
	GetBracket(ctx context.Context, id int64) ([]models.BracketRound, error)
}

type tournamentViewService struct {
	tournaments  repositories.TournamentRepository
	participants repositories.ParticipantRepository
	matches      repositories.BracketMatchRepository
}

func NewTournamentViewService(
	tournaments repositories.TournamentRepository,
	participants repositories.ParticipantRepository,
	matches repositories.BracketMatchRepository,
) TournamentViewService {
	return &tournamentViewService{
		tournaments:  tournaments,
		participants: participants,
		matches:      matches,
	}
}

func (s *tournamentViewService) List(ctx context.Context, input TournamentListInput) ([]*models.Tournament, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if input.Offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", ErrValidationFailed)
	}

	list, err := s.tournaments.List(ctx, repositories.ListTournamentsFilter{
		Statuses: input.Statuses,
		Format:   input.Format,
		Type:     input.Type,
		Limit:    limit,
		Offset:   input.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	if list == nil {
		list = []*models.Tournament{}
	}
	return list, nil
}

// Get returns the tournament with its participants and bracket rounds loaded.
func (s *tournamentViewService) Get(ctx context.Context, id int64) (*models.Tournament, error) {
	t, err := s.tournaments.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to get tournament %d: %w", id, err)
	}

	var (
		participants []*models.Participant
		matches      []*models.BracketMatch
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		participants, err = s.participants.ListByTournament(gCtx, nil, id)
		if err != nil {
			return fmt.Errorf("failed to list participants of tournament %d: %w", id, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		matches, err = s.matches.ListByTournament(gCtx, id)
		if err != nil {
			return fmt.Errorf("failed to list matches of tournament %d: %w", id, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	t.Participants = make([]models.Participant, 0, len(participants))
	for _, p := range participants {
		if p != nil {
			t.Participants = append(t.Participants, *p)
		}
	}
	t.BracketRounds = GroupRounds(matches)
	return t, nil
}

func (s *tournamentViewService) GetBracket(ctx context.Context, id int64) ([]models.BracketRound, error) {
	if _, err := s.tournaments.GetByID(ctx, nil, id); err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to get tournament %d: %w", id, err)
	}
	matches, err := s.matches.ListByTournament(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches of tournament %d: %w", id, err)
	}
	return GroupRounds(matches), nil
}

// GroupRounds buckets matches by round, rounds ascending and matches by number.
func GroupRounds(matches []*models.BracketMatch) []models.BracketRound {
	byRound := make(map[int][]models.BracketMatch)
	for _, m := range matches {
		if m == nil {
			continue
		}
		byRound[m.Round] = append(byRound[m.Round], *m)
	}

	rounds := make([]models.BracketRound, 0, len(byRound))
	for round, ms := range byRound {
		sort.Slice(ms, func(i, j int) bool { return ms[i].MatchNumber < ms[j].MatchNumber })
		rounds = append(rounds, models.BracketRound{Round: round, Matches: ms})
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i].Round < rounds[j].Round })
	return rounds
}
