package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/roachygames/tournament-orchestrator/brackets"
	"github.com/roachygames/tournament-orchestrator/metrics"
	"github.com/roachygames/tournament-orchestrator/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func activeArena(db *memDB, end time.Time, pool int64, players ...string) int64 {
	tour := NewPool(weeklyArena, testStart.Add(-8*24*time.Hour))
	tour.Status = models.StatusActive
	tour.CurrentRound = 1
	tour.PrizePool = pool
	tour.ScheduledEndAt = &end
	id := db.seedTournament(tour)
	for i, p := range players {
		db.seedParticipant(id, p, testStart.Add(-time.Hour+time.Duration(i)*time.Second))
	}
	return id
}

func newArenaFinalizer(db *memDB, archiver ResultsArchiver, events EventPublisher) *ArenaFinalizer {
	return NewArenaFinalizer(db.store(), archiver, clockwork.NewFakeClockAt(testStart), events, discardLogger(), metrics.NoOp{}, true)
}

func TestArenaFinalizer_WaitsForScheduledEnd(t *testing.T) {
	db := newMemDB()
	id := activeArena(db, testStart.Add(time.Minute), 1000, "alice", "bob")

	require.NoError(t, newArenaFinalizer(db, nil, nil).Run(context.Background()))
	assert.Equal(t, models.StatusActive, db.tournament(id).Status)
}

func TestArenaFinalizer_CancelsEmptyArena(t *testing.T) {
	db := newMemDB()
	events := &recordingPublisher{}
	id := activeArena(db, testStart, 0)

	require.NoError(t, newArenaFinalizer(db, nil, events).Run(context.Background()))
	assert.Equal(t, models.StatusCancelled, db.tournament(id).Status)
	assert.Nil(t, db.tournament(id).WinnerID)
	assert.Len(t, events.ofType(brackets.EventTournamentCancelled), 1)
}

func TestArenaFinalizer_BotsPlaceButAreNotPaid(t *testing.T) {
	db := newMemDB()
	bot := "BOT_rook_00000000000000aa"
	id := activeArena(db, testStart.Add(-time.Second), 1000, bot, "alice", "bob")
	db.setStats(id, bot, 10, 5, 5)
	db.setStats(id, "alice", 8, 4, 5)
	db.setStats(id, "bob", 1, 0, 5)

	require.NoError(t, newArenaFinalizer(db, nil, nil).Run(context.Background()))

	done := db.tournament(id)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.Equal(t, bot, *done.WinnerID)
	assert.Equal(t, int64(600), db.participant(id, bot).PrizesWon)

	payouts := db.payoutsOf(id)
	require.Len(t, payouts, 2)
	assert.Equal(t, "alice", payouts[0].PlayerID)
	assert.Equal(t, 2, payouts[0].Placement)
	assert.Equal(t, int64(250), payouts[0].Amount)
	assert.Equal(t, "bob", payouts[1].PlayerID)
	assert.Equal(t, int64(150), payouts[1].Amount)
	assert.Equal(t, testStart, payouts[1].PaidAt)
}

func TestArenaFinalizer_ArchiveFailureDoesNotBlockCompletion(t *testing.T) {
	db := newMemDB()
	events := &recordingPublisher{}
	archiver := &stubArchiver{err: errors.New("bucket unavailable")}
	id := activeArena(db, testStart, 500, "alice", "bob")

	require.NoError(t, newArenaFinalizer(db, archiver, events).Run(context.Background()))

	assert.Equal(t, models.StatusCompleted, db.tournament(id).Status)
	completed := events.ofType(brackets.EventTournamentCompleted)
	require.Len(t, completed, 1)
	assert.Empty(t, completed[0].Payload.(TournamentCompletedPayload).ResultsURL)
}

func TestArenaFinalizer_FailedCompletionRollsBackPlacements(t *testing.T) {
	db := newMemDB()
	boom := errors.New("serialization failure")
	id := activeArena(db, testStart, 1000, "alice", "bob")
	db.failOnID("Tournaments.Complete", id, boom)

	err := newArenaFinalizer(db, nil, nil).Run(context.Background())
	require.ErrorIs(t, err, boom)

	assert.Equal(t, models.StatusActive, db.tournament(id).Status)
	assert.Nil(t, db.participant(id, "alice").FinalPlacement)
	assert.Empty(t, db.payoutsOf(id))

	delete(db.faults, "Tournaments.Complete")
	require.NoError(t, newArenaFinalizer(db, nil, nil).Run(context.Background()))
	assert.Equal(t, models.StatusCompleted, db.tournament(id).Status)
	assert.Len(t, db.payoutsOf(id), 2)
}

func TestFinalizers_NilRecorder(t *testing.T) {
	db := newMemDB()
	arena := activeArena(db, testStart, 0)

	tour := NewPool(paidSitAndGo, testStart.Add(-time.Hour))
	tour.Status = models.StatusActive
	tour.CurrentRound = 1
	tour.TotalRounds = 1
	tour.PrizePool = 1000
	bracket := db.seedTournament(tour)
	db.seedParticipant(bracket, "alice", testStart.Add(-time.Hour))
	db.seedParticipant(bracket, "bob", testStart.Add(-time.Hour+time.Second))
	require.NoError(t, db.store().Matches.CreateBatch(context.Background(), nil, []*models.BracketMatch{{
		TournamentID: bracket,
		Round:        1,
		MatchNumber:  1,
		Player1ID:    "alice",
		Player2ID:    strPtr("bob"),
		Status:       models.MatchStatusCompleted,
		WinnerID:     strPtr("alice"),
	}}))

	clock := clockwork.NewFakeClockAt(testStart)
	arenaFinalizer := NewArenaFinalizer(db.store(), nil, clock, nil, discardLogger(), nil, true)
	bracketFinalizer := NewBracketFinalizer(db.store(), nil, clock, nil, discardLogger(), nil, true)

	assert.NotPanics(t, func() { require.NoError(t, arenaFinalizer.Run(context.Background())) })
	assert.NotPanics(t, func() { require.NoError(t, bracketFinalizer.Run(context.Background())) })
	assert.Equal(t, models.StatusCancelled, db.tournament(arena).Status)
	assert.Equal(t, models.StatusCompleted, db.tournament(bracket).Status)
	require.NotNil(t, db.tournament(bracket).WinnerID)
	assert.Equal(t, "alice", *db.tournament(bracket).WinnerID)
}

func TestRankArena_TieBreaks(t *testing.T) {
	in := []*models.Participant{
		{PlayerID: "a", Points: 4, Wins: 2, GamesPlayed: 4},
		{PlayerID: "b", Points: 4, Wins: 3, GamesPlayed: 4},
		{PlayerID: "c", Points: 4, Wins: 3, GamesPlayed: 6},
		{PlayerID: "d", Points: 6, Wins: 0, GamesPlayed: 1},
		{PlayerID: "e", Points: 4, Wins: 2, GamesPlayed: 4},
	}
	ranked := RankArena(in)

	ids := make([]string, len(ranked))
	for i, p := range ranked {
		ids[i] = p.PlayerID
	}
	assert.Equal(t, []string{"d", "c", "b", "a", "e"}, ids)
	assert.Equal(t, "a", in[0].PlayerID, "input order is left alone")
}

func TestBracketPlacements(t *testing.T) {
	tour := &models.Tournament{ID: 3, PrizePool: 340, CurrentRound: 2}

	final := []*models.BracketMatch{{ID: 9, Player1ID: "p2", Player2ID: strPtr("p4"), Status: models.MatchStatusCompleted, WinnerID: strPtr("p4")}}
	placements, err := BracketPlacements(tour, final)
	require.NoError(t, err)
	assert.Equal(t, []Placement{
		{PlayerID: "p4", Placement: 1, Prize: 204},
		{PlayerID: "p2", Placement: 2, Prize: 85},
	}, placements)

	two := append(final, &models.BracketMatch{ID: 10, Player1ID: "p5", Status: models.MatchStatusCompleted, WinnerID: strPtr("p5")})
	_, err = BracketPlacements(tour, two)
	assert.ErrorIs(t, err, ErrFinalNotSingleMatch)

	_, err = BracketPlacements(tour, []*models.BracketMatch{{ID: 11, Player1ID: "p1", Player2ID: strPtr("p2")}})
	assert.Error(t, err)
}

func TestIsFinalRound(t *testing.T) {
	one := []*models.BracketMatch{{}}
	two := []*models.BracketMatch{{}, {}}

	assert.True(t, IsFinalRound(&models.Tournament{CurrentRound: 3, TotalRounds: 3}, one))
	assert.True(t, IsFinalRound(&models.Tournament{CurrentRound: 2, TotalRounds: 3}, one), "quorum start reaches a single match early")
	assert.False(t, IsFinalRound(&models.Tournament{CurrentRound: 1, TotalRounds: 3}, two))
}

func TestPlacementPrizesNeverExceedPool(t *testing.T) {
	for pool := int64(0); pool <= 5000; pool += 7 {
		prizes := PlacementPrizes(pool)
		sum := prizes[0] + prizes[1] + prizes[2]
		assert.LessOrEqual(t, sum, pool, "pool %d", pool)
		assert.GreaterOrEqual(t, prizes[0], prizes[1])
		assert.GreaterOrEqual(t, prizes[1], prizes[2])
	}

	assert.Equal(t, [3]int64{600, 250, 150}, PlacementPrizes(1000))
	assert.Equal(t, [3]int64{0, 0, 0}, PlacementPrizes(-5))
	assert.Equal(t, int64(0), PrizeFor(1000, 4))
	assert.Equal(t, int64(0), PrizeFor(1000, 0))
}

func TestSplitEntryFees(t *testing.T) {
	pool, rake := SplitEntryFees(100, 8)
	assert.Equal(t, int64(680), pool)
	assert.Equal(t, int64(120), rake)

	pool, rake = SplitEntryFees(0, 8)
	assert.Zero(t, pool)
	assert.Zero(t, rake)

	pool, rake = SplitEntryFees(7, 3)
	assert.Equal(t, int64(17), pool)
	assert.Equal(t, int64(3), rake)
	assert.LessOrEqual(t, pool+rake, int64(21))
}
