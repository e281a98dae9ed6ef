package models

import "time"

type MatchStatus string

const (
	MatchStatusPending   MatchStatus = "pending"
	MatchStatusActive    MatchStatus = "active"
	MatchStatusCompleted MatchStatus = "completed"
)

// BracketMatch is one slot of a single-elimination round. Player2ID == nil is a bye.
type BracketMatch struct {
	ID           int64       `json:"id" db:"id"`
	TournamentID int64       `json:"tournament_id" db:"tournament_id"`
	Round        int         `json:"round" db:"round"`
	MatchNumber  int         `json:"match_number" db:"match_number"`
	Player1ID    string      `json:"player1_id" db:"player1_id"`
	Player2ID    *string     `json:"player2_id,omitempty" db:"player2_id"`
	Status       MatchStatus `json:"status" db:"status"`
	WinnerID     *string     `json:"winner_id,omitempty" db:"winner_id"`
	GameMatchID  *string     `json:"game_match_id,omitempty" db:"game_match_id"`
	StartedAt    *time.Time  `json:"started_at,omitempty" db:"started_at"`
	EndedAt      *time.Time  `json:"ended_at,omitempty" db:"ended_at"`
}

func (m *BracketMatch) IsBye() bool {
	return m.Player2ID == nil
}

// Opponent returns the other player of the match, or "" for a bye or an unknown player.
func (m *BracketMatch) Opponent(playerID string) string {
	if m.Player2ID == nil {
		return ""
	}
	switch playerID {
	case m.Player1ID:
		return *m.Player2ID
	case *m.Player2ID:
		return m.Player1ID
	}
	return ""
}

// BracketRound groups the matches of one round for read models.
type BracketRound struct {
	Round   int            `json:"round"`
	Matches []BracketMatch `json:"matches"`
}

// RoundResolved reports whether every match of a non-empty round is completed.
func RoundResolved(matches []*BracketMatch) bool {
	if len(matches) == 0 {
		return false
	}
	for _, m := range matches {
		if m.Status != MatchStatusCompleted {
			return false
		}
	}
	return true
}

// GameMatchStatus values written by the game engine.
type GameMatchStatus string

const (
	GameMatchWaiting   GameMatchStatus = "waiting"
	GameMatchActive    GameMatchStatus = "active"
	GameMatchCompleted GameMatchStatus = "completed"
	GameMatchAborted   GameMatchStatus = "aborted"
)

// GameMatch is the engine-owned record of a played game.
type GameMatch struct {
	ID          string          `json:"id" db:"id"`
	Player1ID   string          `json:"player1_id" db:"player1_id"`
	Player2ID   string          `json:"player2_id" db:"player2_id"`
	TimeControl string          `json:"time_control" db:"time_control"`
	Status      GameMatchStatus `json:"status" db:"status"`
	WinnerID    *string         `json:"winner_id,omitempty" db:"winner_id"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
