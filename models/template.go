package models

import "time"

// Template describes a recurring pool. RegistrationWindow of zero means the
// pool starts only once full.
type Template struct {
	Name               string           `json:"name"`
	Type               TournamentType   `json:"type"`
	Format             TournamentFormat `json:"format"`
	TimeControl        string           `json:"time_control"`
	EntryFee           int64            `json:"entry_fee"`
	MinPlayers         int              `json:"min_players"`
	MaxPlayers         int              `json:"max_players"`
	RegistrationWindow time.Duration    `json:"registration_window"`
	ArenaDuration      time.Duration    `json:"arena_duration,omitempty"`
}

func (t Template) PoolKey() PoolKey {
	return PoolKey{TemplateName: t.Name, EntryFee: t.EntryFee}
}
