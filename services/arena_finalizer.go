package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jonboulle/clockwork"
	"github.com/roachygames/tournament-orchestrator/metrics"
	"github.com/roachygames/tournament-orchestrator/models"
	"github.com/roachygames/tournament-orchestrator/repositories"
)

// ArenaFinalizer closes arena tournaments at their scheduled end.
type ArenaFinalizer struct {
	settler
	isolate bool
}

func NewArenaFinalizer(store Store, archiver ResultsArchiver, clock clockwork.Clock, events EventPublisher, logger *slog.Logger, recorder metrics.Recorder, isolate bool) *ArenaFinalizer {
	return &ArenaFinalizer{
		settler: settler{
			store:    store,
			archiver: archiver,
			clock:    clock,
			events:   publisherOrNoop(events),
			logger:   logger,
			metrics:  recorderOrNoop(recorder),
		},
		isolate: isolate,
	}
}

func (a *ArenaFinalizer) Name() string { return "arena_finalizer" }

func (a *ArenaFinalizer) Run(ctx context.Context) error {
	format := models.FormatArena
	arenas, err := a.store.Tournaments.List(ctx, repositories.ListTournamentsFilter{
		Statuses: []models.TournamentStatus{models.StatusActive},
		Format:   &format,
	})
	if err != nil {
		return fmt.Errorf("failed to list active arenas: %w", err)
	}

	now := a.clock.Now()
	f := failures{isolate: a.isolate}
	for _, t := range arenas {
		if t.ScheduledEndAt == nil || now.Before(*t.ScheduledEndAt) {
			continue
		}
		if f.add(a.finalize(ctx, t)) {
			break
		}
	}
	return f.err()
}

func (a *ArenaFinalizer) finalize(ctx context.Context, t *models.Tournament) error {
	participants, err := a.store.Participants.ListByTournament(ctx, nil, t.ID)
	if err != nil {
		return fmt.Errorf("tournament %d: %w", t.ID, err)
	}
	if len(participants) == 0 {
		return a.cancel(ctx, t)
	}
	return a.settle(ctx, t, ArenaPlacements(t.PrizePool, participants))
}

// RankArena orders by points, then wins, then games played, all descending.
// Ties keep the input (join) order.
func RankArena(participants []*models.Participant) []*models.Participant {
	ranked := make([]*models.Participant, len(participants))
	copy(ranked, participants)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		return a.GamesPlayed > b.GamesPlayed
	})
	return ranked
}

func ArenaPlacements(pool int64, participants []*models.Participant) []Placement {
	ranked := RankArena(participants)
	placements := make([]Placement, len(ranked))
	for i, p := range ranked {
		placements[i] = Placement{PlayerID: p.PlayerID, Placement: i + 1, Prize: PrizeFor(pool, i+1)}
	}
	return placements
}
