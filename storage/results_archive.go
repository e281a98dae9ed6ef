package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/roachygames/tournament-orchestrator/models"
)

// Standings is the archived document for a finished tournament.
type Standings struct {
	TournamentID int64                   `json:"tournament_id"`
	TemplateName string                  `json:"template_name"`
	Format       models.TournamentFormat `json:"format"`
	Status       models.TournamentStatus `json:"status"`
	WinnerID     *string                 `json:"winner_id,omitempty"`
	PrizePool    int64                   `json:"prize_pool"`
	EndedAt      *time.Time              `json:"ended_at,omitempty"`
	Players      []StandingsRow          `json:"players"`
}

type StandingsRow struct {
	PlayerID       string `json:"player_id"`
	DisplayName    string `json:"display_name"`
	IsBot          bool   `json:"is_bot"`
	Seed           *int   `json:"seed,omitempty"`
	Wins           int    `json:"wins"`
	Losses         int    `json:"losses"`
	Points         int    `json:"points"`
	FinalPlacement *int   `json:"final_placement,omitempty"`
	PrizesWon      int64  `json:"prizes_won"`
}

type UploadResult struct {
	Key      string
	Location string
	ETag     string
}

// FileUploader puts objects into a public bucket.
type FileUploader interface {
	Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error)
	GetPublicURL(key string) string
}

type ResultsArchiver struct {
	uploader FileUploader
}

func NewResultsArchiver(uploader FileUploader) *ResultsArchiver {
	return &ResultsArchiver{uploader: uploader}
}

func ResultsKey(tournamentID int64) string {
	return fmt.Sprintf("results/tournament_%d.json", tournamentID)
}

func BuildStandings(t *models.Tournament, participants []*models.Participant) Standings {
	s := Standings{
		TournamentID: t.ID,
		TemplateName: t.TemplateName,
		Format:       t.Format,
		Status:       t.Status,
		WinnerID:     t.WinnerID,
		PrizePool:    t.PrizePool,
		EndedAt:      t.EndedAt,
		Players:      make([]StandingsRow, 0, len(participants)),
	}
	for _, p := range participants {
		s.Players = append(s.Players, StandingsRow{
			PlayerID:       p.PlayerID,
			DisplayName:    p.DisplayName,
			IsBot:          p.IsBot,
			Seed:           p.Seed,
			Wins:           p.Wins,
			Losses:         p.Losses,
			Points:         p.Points,
			FinalPlacement: p.FinalPlacement,
			PrizesWon:      p.PrizesWon,
		})
	}
	return s
}

// Archive uploads the standings of t and returns the public location.
func (a *ResultsArchiver) Archive(ctx context.Context, t *models.Tournament, participants []*models.Participant) (string, error) {
	body, err := json.Marshal(BuildStandings(t, participants))
	if err != nil {
		return "", fmt.Errorf("failed to encode standings for tournament %d: %w", t.ID, err)
	}
	res, err := a.uploader.Upload(ctx, ResultsKey(t.ID), "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	return res.Location, nil
}
