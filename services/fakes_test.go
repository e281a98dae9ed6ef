package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/roachygames/tournament-orchestrator/engine"
	"github.com/roachygames/tournament-orchestrator/models"
	"github.com/roachygames/tournament-orchestrator/repositories"
)

// memDB is an in-memory stand-in for the PostgreSQL store. Every mutation
// honours the same guards as the SQL WHERE clauses, and reads return copies.
type memDB struct {
	mu           sync.Mutex
	nextID       int64
	tournaments  map[int64]*models.Tournament
	participants []*models.Participant
	matches      []*models.BracketMatch
	payouts      []*models.PrizePayout

	// faults maps "Repo.Method" to an error; faultIDs restricts it to one id.
	faults   map[string]error
	faultIDs map[string]int64
}

func newMemDB() *memDB {
	return &memDB{
		tournaments: make(map[int64]*models.Tournament),
		faults:      make(map[string]error),
		faultIDs:    make(map[string]int64),
	}
}

func (db *memDB) store() Store {
	return Store{
		Tx:           memTx{db},
		Tournaments:  memTournaments{db},
		Participants: memParticipants{db},
		Matches:      memMatches{db},
		Payouts:      memPayouts{db},
	}
}

func (db *memDB) failOn(op string, err error) { db.faults[op] = err }

func (db *memDB) failOnID(op string, id int64, err error) {
	db.faults[op] = err
	db.faultIDs[op] = id
}

func (db *memDB) clearFault(op string) {
	delete(db.faults, op)
	delete(db.faultIDs, op)
}

func (db *memDB) fault(op string, id int64) error {
	err, ok := db.faults[op]
	if !ok {
		return nil
	}
	if want, scoped := db.faultIDs[op]; scoped && want != id {
		return nil
	}
	return err
}

// errFakeDuplicate makes Participants.Create report an existing row.
var errFakeDuplicate = errors.New("fake duplicate")

func (db *memDB) setStats(tournamentID int64, playerID string, points, wins, games int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, p := range db.participants {
		if p.TournamentID == tournamentID && p.PlayerID == playerID {
			p.Points = points
			p.Wins = wins
			p.GamesPlayed = games
		}
	}
}

func (db *memDB) id() int64 {
	db.nextID++
	return db.nextID
}

// seedTournament inserts t as is and returns its id.
func (db *memDB) seedTournament(t *models.Tournament) int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	t.ID = db.id()
	cp := *t
	db.tournaments[t.ID] = &cp
	return t.ID
}

func (db *memDB) seedParticipant(tournamentID int64, playerID string, joinedAt time.Time) *models.Participant {
	db.mu.Lock()
	defer db.mu.Unlock()
	p := &models.Participant{
		ID:           db.id(),
		TournamentID: tournamentID,
		PlayerID:     playerID,
		DisplayName:  playerID,
		IsBot:        models.IsBotPlayer(playerID),
		JoinedAt:     joinedAt,
	}
	db.participants = append(db.participants, p)
	if t, ok := db.tournaments[tournamentID]; ok {
		t.CurrentPlayers++
	}
	cp := *p
	return &cp
}

func (db *memDB) tournament(id int64) *models.Tournament {
	db.mu.Lock()
	defer db.mu.Unlock()
	t, ok := db.tournaments[id]
	if !ok {
		return nil
	}
	cp := *t
	return &cp
}

func (db *memDB) participantsOf(tournamentID int64) []*models.Participant {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.participantsLocked(tournamentID)
}

func (db *memDB) participantsLocked(tournamentID int64) []*models.Participant {
	var out []*models.Participant
	for _, p := range db.participants {
		if p.TournamentID == tournamentID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (db *memDB) participant(tournamentID int64, playerID string) *models.Participant {
	for _, p := range db.participantsOf(tournamentID) {
		if p.PlayerID == playerID {
			return p
		}
	}
	return nil
}

func (db *memDB) matchesOf(tournamentID int64) []*models.BracketMatch {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.matchesLocked(func(m *models.BracketMatch) bool { return m.TournamentID == tournamentID })
}

func (db *memDB) matchesLocked(keep func(*models.BracketMatch) bool) []*models.BracketMatch {
	var out []*models.BracketMatch
	for _, m := range db.matches {
		if keep(m) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.TournamentID != b.TournamentID {
			return a.TournamentID < b.TournamentID
		}
		if a.Round != b.Round {
			return a.Round < b.Round
		}
		return a.MatchNumber < b.MatchNumber
	})
	return out
}

func (db *memDB) payoutsOf(tournamentID int64) []*models.PrizePayout {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []*models.PrizePayout
	for _, p := range db.payouts {
		if p.TournamentID == tournamentID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out
}

type memSnapshot struct {
	nextID       int64
	tournaments  map[int64]models.Tournament
	participants []models.Participant
	matches      []models.BracketMatch
	payouts      []models.PrizePayout
}

func (db *memDB) snapshot() memSnapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	s := memSnapshot{nextID: db.nextID, tournaments: make(map[int64]models.Tournament, len(db.tournaments))}
	for id, t := range db.tournaments {
		s.tournaments[id] = *t
	}
	for _, p := range db.participants {
		s.participants = append(s.participants, *p)
	}
	for _, m := range db.matches {
		s.matches = append(s.matches, *m)
	}
	for _, p := range db.payouts {
		s.payouts = append(s.payouts, *p)
	}
	return s
}

func (db *memDB) restore(s memSnapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.nextID = s.nextID
	db.tournaments = make(map[int64]*models.Tournament, len(s.tournaments))
	for id, t := range s.tournaments {
		cp := t
		db.tournaments[id] = &cp
	}
	db.participants = nil
	for i := range s.participants {
		cp := s.participants[i]
		db.participants = append(db.participants, &cp)
	}
	db.matches = nil
	for i := range s.matches {
		cp := s.matches[i]
		db.matches = append(db.matches, &cp)
	}
	db.payouts = nil
	for i := range s.payouts {
		cp := s.payouts[i]
		db.payouts = append(db.payouts, &cp)
	}
}

// memTx rolls the whole store back when fn fails.
type memTx struct{ db *memDB }

func (tx memTx) WithinTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	snap := tx.db.snapshot()
	if err := fn(nil); err != nil {
		tx.db.restore(snap)
		return err
	}
	return nil
}

type memTournaments struct{ db *memDB }

func (r memTournaments) CreateOpenPool(ctx context.Context, t *models.Tournament) (bool, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fault("Tournaments.CreateOpenPool", 0); err != nil {
		return false, err
	}
	for _, existing := range db.tournaments {
		if existing.Status == models.StatusRegistering && existing.PoolKey() == t.PoolKey() {
			return false, nil
		}
	}
	t.ID = db.id()
	t.Status = models.StatusRegistering
	t.CurrentPlayers = 0
	t.CurrentRound = 0
	cp := *t
	db.tournaments[t.ID] = &cp
	return true, nil
}

func (r memTournaments) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int64) (*models.Tournament, error) {
	return r.get("Tournaments.GetByID", id)
}

// GetByIDForUpdate needs no lock of its own: memDB serializes every call.
func (r memTournaments) GetByIDForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int64) (*models.Tournament, error) {
	return r.get("Tournaments.GetByIDForUpdate", id)
}

func (r memTournaments) get(op string, id int64) (*models.Tournament, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fault(op, id); err != nil {
		return nil, err
	}
	t, ok := db.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	cp := *t
	return &cp, nil
}

func (r memTournaments) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]*models.Tournament, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fault("Tournaments.List", 0); err != nil {
		return nil, err
	}
	out := make([]*models.Tournament, 0)
	for _, t := range db.tournaments {
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
			continue
		}
		if filter.Format != nil && t.Format != *filter.Format {
			continue
		}
		if filter.Type != nil && t.Type != *filter.Type {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*models.Tournament{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func containsStatus(list []models.TournamentStatus, s models.TournamentStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (r memTournaments) DeleteEmptyPool(ctx context.Context, id int64) error {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	t, ok := db.tournaments[id]
	if !ok || t.Status != models.StatusRegistering || t.CurrentPlayers != 0 {
		return repositories.ErrTournamentStateChanged
	}
	delete(db.tournaments, id)
	return nil
}

func (r memTournaments) IncrementPlayers(ctx context.Context, exec repositories.SQLExecutor, id int64) error {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fault("Tournaments.IncrementPlayers", id); err != nil {
		return err
	}
	t, ok := db.tournaments[id]
	if !ok || t.Status != models.StatusRegistering || t.CurrentPlayers >= t.MaxPlayers {
		return repositories.ErrTournamentNotJoinable
	}
	t.CurrentPlayers++
	return nil
}

func (r memTournaments) MarkStarted(ctx context.Context, exec repositories.SQLExecutor, id int64, startedAt time.Time, scheduledEndAt *time.Time) error {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fault("Tournaments.MarkStarted", id); err != nil {
		return err
	}
	t, ok := db.tournaments[id]
	if !ok || t.Status != models.StatusRegistering {
		return repositories.ErrTournamentStateChanged
	}
	t.Status = models.StatusActive
	t.CurrentRound = 1
	started := startedAt
	t.StartedAt = &started
	if t.ScheduledEndAt == nil && scheduledEndAt != nil {
		end := *scheduledEndAt
		t.ScheduledEndAt = &end
	}
	return nil
}

func (r memTournaments) AdvanceRound(ctx context.Context, exec repositories.SQLExecutor, id int64, fromRound int) error {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	t, ok := db.tournaments[id]
	if !ok || t.Status != models.StatusActive || t.CurrentRound != fromRound {
		return repositories.ErrTournamentStateChanged
	}
	t.CurrentRound++
	return nil
}

func (r memTournaments) Complete(ctx context.Context, exec repositories.SQLExecutor, id int64, winnerID *string, endedAt time.Time) error {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fault("Tournaments.Complete", id); err != nil {
		return err
	}
	t, ok := db.tournaments[id]
	if !ok || t.Status != models.StatusActive {
		return repositories.ErrTournamentStateChanged
	}
	t.Status = models.StatusCompleted
	if winnerID != nil {
		w := *winnerID
		t.WinnerID = &w
	}
	ended := endedAt
	t.EndedAt = &ended
	return nil
}

func (r memTournaments) Cancel(ctx context.Context, exec repositories.SQLExecutor, id int64, endedAt time.Time) error {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	t, ok := db.tournaments[id]
	if !ok || (t.Status != models.StatusRegistering && t.Status != models.StatusActive) {
		return repositories.ErrTournamentStateChanged
	}
	t.Status = models.StatusCancelled
	ended := endedAt
	t.EndedAt = &ended
	return nil
}

type memParticipants struct{ db *memDB }

func (r memParticipants) Create(ctx context.Context, exec repositories.SQLExecutor, p *models.Participant) (bool, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fault("Participants.Create", p.TournamentID); err != nil {
		if errors.Is(err, errFakeDuplicate) {
			return false, nil
		}
		return false, err
	}
	if _, ok := db.tournaments[p.TournamentID]; !ok {
		return false, repositories.ErrParticipantTournamentInvalid
	}
	for _, existing := range db.participants {
		if existing.TournamentID == p.TournamentID && existing.PlayerID == p.PlayerID {
			return false, nil
		}
	}
	p.ID = db.id()
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now().UTC()
	}
	cp := *p
	db.participants = append(db.participants, &cp)
	return true, nil
}

func (r memParticipants) ListByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int64) ([]*models.Participant, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fault("Participants.ListByTournament", tournamentID); err != nil {
		return nil, err
	}
	out := db.participantsLocked(tournamentID)
	if out == nil {
		out = []*models.Participant{}
	}
	return out, nil
}

func (r memParticipants) AssignSeed(ctx context.Context, exec repositories.SQLExecutor, participantID int64, seed int) error {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	var target *models.Participant
	for _, p := range db.participants {
		if p.ID == participantID {
			target = p
		}
	}
	if target == nil || target.Seed != nil {
		return repositories.ErrSeedAlreadyAssigned
	}
	for _, p := range db.participants {
		if p.TournamentID == target.TournamentID && p.Seed != nil && *p.Seed == seed {
			return repositories.ErrSeedConflict
		}
	}
	s := seed
	target.Seed = &s
	return nil
}

func (r memParticipants) update(tournamentID int64, playerID string, fn func(p *models.Participant)) error {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, p := range db.participants {
		if p.TournamentID == tournamentID && p.PlayerID == playerID {
			fn(p)
			return nil
		}
	}
	return repositories.ErrParticipantNotFound
}

func (r memParticipants) RecordWin(ctx context.Context, exec repositories.SQLExecutor, tournamentID int64, playerID string) error {
	return r.update(tournamentID, playerID, func(p *models.Participant) {
		p.Wins++
		p.GamesPlayed++
	})
}

func (r memParticipants) RecordLoss(ctx context.Context, exec repositories.SQLExecutor, tournamentID int64, playerID string) error {
	return r.update(tournamentID, playerID, func(p *models.Participant) {
		p.Losses++
		p.GamesPlayed++
		p.IsEliminated = true
	})
}

func (r memParticipants) SetPlacement(ctx context.Context, exec repositories.SQLExecutor, tournamentID int64, playerID string, placement int, prize int64) error {
	return r.update(tournamentID, playerID, func(p *models.Participant) {
		pl := placement
		p.FinalPlacement = &pl
		p.PrizesWon = prize
	})
}

type memMatches struct{ db *memDB }

func (r memMatches) CreateBatch(ctx context.Context, exec repositories.SQLExecutor, matches []*models.BracketMatch) error {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, m := range matches {
		if err := db.fault("Matches.CreateBatch", m.TournamentID); err != nil {
			return err
		}
		exists := false
		for _, existing := range db.matches {
			if existing.TournamentID == m.TournamentID && existing.Round == m.Round && existing.MatchNumber == m.MatchNumber {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		m.ID = db.id()
		cp := *m
		db.matches = append(db.matches, &cp)
	}
	return nil
}

func (r memMatches) ListByRound(ctx context.Context, exec repositories.SQLExecutor, tournamentID int64, round int) ([]*models.BracketMatch, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fault("Matches.ListByRound", tournamentID); err != nil {
		return nil, err
	}
	return db.matchesLocked(func(m *models.BracketMatch) bool {
		return m.TournamentID == tournamentID && m.Round == round
	}), nil
}

func (r memMatches) ListByTournament(ctx context.Context, tournamentID int64) ([]*models.BracketMatch, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.matchesLocked(func(m *models.BracketMatch) bool { return m.TournamentID == tournamentID }), nil
}

func (r memMatches) ListByStatus(ctx context.Context, status models.MatchStatus) ([]*models.BracketMatch, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.matchesLocked(func(m *models.BracketMatch) bool { return m.Status == status }), nil
}

func (r memMatches) find(id int64) *models.BracketMatch {
	for _, m := range r.db.matches {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (r memMatches) Activate(ctx context.Context, id int64, gameMatchID string, startedAt time.Time) error {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.fault("Matches.Activate", id); err != nil {
		return err
	}
	m := r.find(id)
	if m == nil || m.Status != models.MatchStatusPending {
		return repositories.ErrBracketMatchNotPending
	}
	m.Status = models.MatchStatusActive
	g := gameMatchID
	m.GameMatchID = &g
	s := startedAt
	m.StartedAt = &s
	return nil
}

func (r memMatches) Complete(ctx context.Context, exec repositories.SQLExecutor, id int64, winnerID string, endedAt time.Time) error {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	m := r.find(id)
	if m == nil || m.Status == models.MatchStatusCompleted {
		return repositories.ErrBracketMatchAlreadyCompleted
	}
	m.Status = models.MatchStatusCompleted
	w := winnerID
	m.WinnerID = &w
	e := endedAt
	m.EndedAt = &e
	return nil
}

type memPayouts struct{ db *memDB }

func (r memPayouts) Record(ctx context.Context, exec repositories.SQLExecutor, p *models.PrizePayout) (bool, error) {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, existing := range db.payouts {
		if existing.TournamentID == p.TournamentID && existing.PlayerID == p.PlayerID {
			return false, nil
		}
	}
	p.ID = db.id()
	cp := *p
	db.payouts = append(db.payouts, &cp)
	return true, nil
}

func (r memPayouts) ListByTournament(ctx context.Context, tournamentID int64) ([]*models.PrizePayout, error) {
	return r.db.payoutsOf(tournamentID), nil
}

// memEngine plays the game engine: tests decide outcomes with finish.
type memEngine struct {
	mu        sync.Mutex
	games     map[string]*models.GameMatch
	createErr error
	getErr    error
	calls     int
}

func newMemEngine() *memEngine {
	return &memEngine{games: make(map[string]*models.GameMatch)}
}

var _ engine.GameEngine = (*memEngine)(nil)

func (e *memEngine) CreateMatch(ctx context.Context, id, player1ID, player2ID, timeControl string) (*models.GameMatch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.createErr != nil {
		return nil, e.createErr
	}
	g, ok := e.games[id]
	if !ok {
		g = &models.GameMatch{
			ID:          id,
			Player1ID:   player1ID,
			Player2ID:   player2ID,
			TimeControl: timeControl,
			Status:      models.GameMatchWaiting,
		}
		e.games[id] = g
	}
	cp := *g
	return &cp, nil
}

func (e *memEngine) GetMatch(ctx context.Context, id string) (*models.GameMatch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.getErr != nil {
		return nil, e.getErr
	}
	g, ok := e.games[id]
	if !ok {
		return nil, engine.ErrGameMatchNotFound
	}
	cp := *g
	return &cp, nil
}

func (e *memEngine) finish(id string, status models.GameMatchStatus, winnerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g := e.games[id]
	g.Status = status
	if winnerID != "" {
		w := winnerID
		g.WinnerID = &w
	}
}

func (e *memEngine) gameCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.games)
}

// finishAll completes every open game in favour of player 1.
func (e *memEngine) finishAll() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, g := range e.games {
		if g.Status == models.GameMatchWaiting || g.Status == models.GameMatchActive {
			g.Status = models.GameMatchCompleted
			w := g.Player1ID
			g.WinnerID = &w
			n++
		}
	}
	return n
}

type publishedEvent struct {
	TournamentID int64
	Type         string
	Payload      interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(tournamentID int64, eventType string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{TournamentID: tournamentID, Type: eventType, Payload: payload})
}

func (p *recordingPublisher) ofType(eventType string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type stubArchiver struct {
	mu       sync.Mutex
	archived []int64
	err      error
}

func (a *stubArchiver) Archive(ctx context.Context, t *models.Tournament, participants []*models.Participant) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	a.archived = append(a.archived, t.ID)
	return fmt.Sprintf("https://results.example/results/tournament_%d.json", t.ID), nil
}

// fixedSource always returns the lowest value: Seed rotates the join order
// left by one and bot-vs-bot games go to player 1.
type fixedSource struct{}

func (fixedSource) Number(min, max int) int { return min }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
