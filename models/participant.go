package models

import (
	"strings"
	"time"
)

// BotPlayerPrefix marks synthetic player identities.
const BotPlayerPrefix = "BOT_"

type Participant struct {
	ID             int64     `json:"id" db:"id"`
	TournamentID   int64     `json:"tournament_id" db:"tournament_id"`
	PlayerID       string    `json:"player_id" db:"player_id"`
	DisplayName    string    `json:"display_name" db:"display_name"`
	IsBot          bool      `json:"is_bot" db:"is_bot"`
	Seed           *int      `json:"seed,omitempty" db:"seed"`
	Wins           int       `json:"wins" db:"wins"`
	Losses         int       `json:"losses" db:"losses"`
	Points         int       `json:"points" db:"points"`
	GamesPlayed    int       `json:"games_played" db:"games_played"`
	IsEliminated   bool      `json:"is_eliminated" db:"is_eliminated"`
	FinalPlacement *int      `json:"final_placement,omitempty" db:"final_placement"`
	PrizesWon      int64     `json:"prizes_won" db:"prizes_won"`
	JoinedAt       time.Time `json:"joined_at" db:"joined_at"`
}

func IsBotPlayer(playerID string) bool {
	return strings.HasPrefix(playerID, BotPlayerPrefix)
}

// PrizePayout is a ledger row for a prize credited to a human player.
type PrizePayout struct {
	ID           int64     `json:"id" db:"id"`
	TournamentID int64     `json:"tournament_id" db:"tournament_id"`
	PlayerID     string    `json:"player_id" db:"player_id"`
	Placement    int       `json:"placement" db:"placement"`
	Amount       int64     `json:"amount" db:"amount"`
	PaidAt       time.Time `json:"paid_at" db:"paid_at"`
}
