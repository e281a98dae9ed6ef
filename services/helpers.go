package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roachygames/tournament-orchestrator/metrics"
	"github.com/roachygames/tournament-orchestrator/models"
	"github.com/roachygames/tournament-orchestrator/repositories"
)

// Step is one stage of an orchestrator tick.
type Step interface {
	Name() string
	Run(ctx context.Context) error
}

// Store bundles the repositories the orchestrator steps share.
type Store struct {
	Tx           repositories.Transactor
	Tournaments  repositories.TournamentRepository
	Participants repositories.ParticipantRepository
	Matches      repositories.BracketMatchRepository
	Payouts      repositories.PayoutRepository
}

// EventPublisher pushes live tournament events. *brackets.Hub implements it.
type EventPublisher interface {
	Publish(tournamentID int64, eventType string, payload interface{})
}

// ResultsArchiver stores final standings. *storage.ResultsArchiver implements it.
type ResultsArchiver interface {
	Archive(ctx context.Context, t *models.Tournament, participants []*models.Participant) (string, error)
}

type noopPublisher struct{}

func (noopPublisher) Publish(int64, string, interface{}) {}

func publisherOrNoop(p EventPublisher) EventPublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}

func recorderOrNoop(r metrics.Recorder) metrics.Recorder {
	if r == nil {
		return metrics.NoOp{}
	}
	return r
}

// failures collects per-tournament errors of a step. When isolate is false
// the first failure stops the step.
type failures struct {
	isolate bool
	errs    []error
}

// add records err and reports whether the caller should stop iterating.
func (f *failures) add(err error) bool {
	if err == nil {
		return false
	}
	f.errs = append(f.errs, err)
	return !f.isolate
}

func (f *failures) err() error {
	return errors.Join(f.errs...)
}

func listByStatus(ctx context.Context, repo repositories.TournamentRepository, status models.TournamentStatus) ([]*models.Tournament, error) {
	return repo.List(ctx, repositories.ListTournamentsFilter{Statuses: []models.TournamentStatus{status}})
}

func tournamentAttrs(t *models.Tournament) slog.Attr {
	return slog.Group("tournament",
		slog.Int64("id", t.ID),
		slog.String("template", t.TemplateName),
		slog.String("status", string(t.Status)),
	)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
