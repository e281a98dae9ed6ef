package brackets

import (
	"time"

	"github.com/roachygames/tournament-orchestrator/models"
)

type GenerateRoundParams struct {
	TournamentID int64
	Round        int
	// PlayerIDs in bracket order: seed order for round 1, match order of winners afterwards.
	PlayerIDs []string
	Now       time.Time
}

type RoundGenerator interface {
	GenerateRound(params GenerateRoundParams) ([]*models.BracketMatch, error)

	GetName() string
}
