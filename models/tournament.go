package models

import (
	"math/bits"
	"time"
)

// TournamentStatus mirrors the tournament_status column.
type TournamentStatus string

const (
	StatusRegistering TournamentStatus = "registering"
	StatusActive      TournamentStatus = "active"
	StatusCompleted   TournamentStatus = "completed"
	StatusCancelled   TournamentStatus = "cancelled"
)

type TournamentType string

const (
	TypeSitAndGo TournamentType = "sit_and_go"
	TypeDaily    TournamentType = "daily"
	TypeWeekly   TournamentType = "weekly"
	TypeMonthly  TournamentType = "monthly"
)

type TournamentFormat string

const (
	FormatBracket TournamentFormat = "bracket"
	FormatArena   TournamentFormat = "arena"
)

// Tournament is a competition pool created from a Template.
type Tournament struct {
	ID               int64            `json:"id" db:"id"`
	TemplateName     string           `json:"template_name" db:"template_name"`
	Type             TournamentType   `json:"type" db:"type"`
	Format           TournamentFormat `json:"format" db:"format"`
	TimeControl      string           `json:"time_control" db:"time_control"`
	EntryFee         int64            `json:"entry_fee" db:"entry_fee"`
	PrizePool        int64            `json:"prize_pool" db:"prize_pool"`
	RakeAmount       int64            `json:"rake_amount" db:"rake_amount"`
	MinPlayers       int              `json:"min_players" db:"min_players"`
	MaxPlayers       int              `json:"max_players" db:"max_players"`
	CurrentPlayers   int              `json:"current_players" db:"current_players"`
	CurrentRound     int              `json:"current_round" db:"current_round"`
	TotalRounds      int              `json:"total_rounds" db:"total_rounds"`
	Status           TournamentStatus `json:"status" db:"status"`
	ScheduledStartAt *time.Time       `json:"scheduled_start_at,omitempty" db:"scheduled_start_at"`
	ScheduledEndAt   *time.Time       `json:"scheduled_end_at,omitempty" db:"scheduled_end_at"`
	WinnerID         *string          `json:"winner_id,omitempty" db:"winner_id"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	StartedAt        *time.Time       `json:"started_at,omitempty" db:"started_at"`
	EndedAt          *time.Time       `json:"ended_at,omitempty" db:"ended_at"`

	Participants  []Participant  `json:"participants,omitempty" db:"-"`
	BracketRounds []BracketRound `json:"bracket_rounds,omitempty" db:"-"`
}

// PoolKey identifies the open pool slot of a template.
type PoolKey struct {
	TemplateName string
	EntryFee     int64
}

func (t *Tournament) PoolKey() PoolKey {
	return PoolKey{TemplateName: t.TemplateName, EntryFee: t.EntryFee}
}

func (t *Tournament) IsFull() bool {
	return t.CurrentPlayers >= t.MaxPlayers
}

// TotalRoundsFor returns ceil(log2(n)) for n >= 2, and 0 below that.
func TotalRoundsFor(n int) int {
	if n < 2 {
		return 0
	}
	return bits.Len(uint(n - 1))
}
