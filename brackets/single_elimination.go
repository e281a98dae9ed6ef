package brackets

import (
	"errors"
	"fmt"

	"github.com/roachygames/tournament-orchestrator/models"
)

var (
	ErrNotEnoughPlayers = errors.New("not enough players to build a round (minimum 2)")
	ErrDuplicatePlayer  = errors.New("player appears twice in one round")
)

type SingleEliminationGenerator struct{}

func NewSingleEliminationGenerator() RoundGenerator {
	return &SingleEliminationGenerator{}
}

func (g *SingleEliminationGenerator) GetName() string {
	return "SingleElimination"
}

// GenerateRound pairs consecutive players (1v2, 3v4, ...). With an odd count the
// last player gets a bye: a match with no opponent, already completed, won by that player.
func (g *SingleEliminationGenerator) GenerateRound(params GenerateRoundParams) ([]*models.BracketMatch, error) {
	n := len(params.PlayerIDs)
	if n < 2 {
		return nil, ErrNotEnoughPlayers
	}
	if params.Round < 1 {
		return nil, fmt.Errorf("invalid round number %d", params.Round)
	}

	seen := make(map[string]struct{}, n)
	for _, id := range params.PlayerIDs {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePlayer, id)
		}
		seen[id] = struct{}{}
	}

	matches := make([]*models.BracketMatch, 0, MatchesInRound(n))
	for i := 0; i < n; i += 2 {
		m := &models.BracketMatch{
			TournamentID: params.TournamentID,
			Round:        params.Round,
			MatchNumber:  i/2 + 1,
			Player1ID:    params.PlayerIDs[i],
			Status:       models.MatchStatusPending,
		}
		if i+1 < n {
			p2 := params.PlayerIDs[i+1]
			m.Player2ID = &p2
		} else {
			winner := params.PlayerIDs[i]
			now := params.Now
			m.Status = models.MatchStatusCompleted
			m.WinnerID = &winner
			m.StartedAt = &now
			m.EndedAt = &now
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// MatchesInRound is ceil(players/2).
func MatchesInRound(players int) int {
	return (players + 1) / 2
}

// Winners returns the winners of a resolved round in match order.
func Winners(matches []*models.BracketMatch) ([]string, error) {
	winners := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Status != models.MatchStatusCompleted || m.WinnerID == nil {
			return nil, fmt.Errorf("match %d of round %d is not resolved", m.MatchNumber, m.Round)
		}
		winners = append(winners, *m.WinnerID)
	}
	return winners, nil
}
