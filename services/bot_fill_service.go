package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jonboulle/clockwork"
	"github.com/roachygames/tournament-orchestrator/metrics"
	"github.com/roachygames/tournament-orchestrator/models"
	"github.com/roachygames/tournament-orchestrator/repositories"
)

var errBotIdentityTaken = errors.New("bot identity taken")

type BotFillConfig struct {
	FillDelay    time.Duration
	NameAttempts int
}

// BotFillService tops up free sit-and-go pools with synthetic players once they
// have waited FillDelay with at least one human in them.
type BotFillService struct {
	store   Store
	faker   *gofakeit.Faker
	clock   clockwork.Clock
	cfg     BotFillConfig
	logger  *slog.Logger
	metrics metrics.Recorder
	isolate bool
}

func NewBotFillService(store Store, faker *gofakeit.Faker, clock clockwork.Clock, cfg BotFillConfig, logger *slog.Logger, recorder metrics.Recorder, isolate bool) *BotFillService {
	if cfg.NameAttempts < 1 {
		cfg.NameAttempts = 1
	}
	return &BotFillService{store: store, faker: faker, clock: clock, cfg: cfg, logger: logger, metrics: recorderOrNoop(recorder), isolate: isolate}
}

func (s *BotFillService) Name() string { return "bot_fill" }

func (s *BotFillService) Eligible(t *models.Tournament, now time.Time) bool {
	return t.Status == models.StatusRegistering &&
		t.EntryFee == 0 &&
		t.Type == models.TypeSitAndGo &&
		now.Sub(t.CreatedAt) >= s.cfg.FillDelay &&
		t.CurrentPlayers > 0 &&
		t.CurrentPlayers < t.MaxPlayers
}

func (s *BotFillService) Run(ctx context.Context) error {
	sitAndGo := models.TypeSitAndGo
	pools, err := s.store.Tournaments.List(ctx, repositories.ListTournamentsFilter{
		Statuses: []models.TournamentStatus{models.StatusRegistering},
		Type:     &sitAndGo,
	})
	if err != nil {
		return fmt.Errorf("failed to list sit-and-go pools: %w", err)
	}

	now := s.clock.Now()
	f := failures{isolate: s.isolate}
	for _, t := range pools {
		if !s.Eligible(t, now) {
			continue
		}
		if f.add(s.Fill(ctx, t)) {
			break
		}
	}
	return f.err()
}

// Fill adds max-current bots to t. Each bot claims a seat with the same atomic
// counter increment a human join uses, so the pool never exceeds MaxPlayers.
func (s *BotFillService) Fill(ctx context.Context, t *models.Tournament) error {
	participants, err := s.store.Participants.ListByTournament(ctx, nil, t.ID)
	if err != nil {
		return fmt.Errorf("tournament %d: failed to list participants: %w", t.ID, err)
	}
	taken := make(map[string]bool, len(participants))
	for _, p := range participants {
		taken[p.PlayerID] = true
	}

	need := t.MaxPlayers - t.CurrentPlayers
	added := 0
	for i := 0; i < need; i++ {
		bot, err := s.addBot(ctx, t.ID, taken)
		if errors.Is(err, repositories.ErrTournamentNotJoinable) {
			break
		}
		if err != nil {
			if added > 0 {
				s.metrics.BotsAdded(added)
			}
			return fmt.Errorf("tournament %d: %w", t.ID, err)
		}
		taken[bot.PlayerID] = true
		added++
	}

	if added > 0 {
		s.metrics.BotsAdded(added)
		s.logger.InfoContext(ctx, "filled pool with bots", tournamentAttrs(t), slog.Int("bots", added))
	}
	return nil
}

func (s *BotFillService) addBot(ctx context.Context, tournamentID int64, taken map[string]bool) (*models.Participant, error) {
	for attempt := 0; attempt < s.cfg.NameAttempts; attempt++ {
		bot := s.newBot(tournamentID)
		if taken[bot.PlayerID] {
			continue
		}
		err := s.store.Tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
			if err := s.store.Tournaments.IncrementPlayers(ctx, exec, tournamentID); err != nil {
				return err
			}
			inserted, err := s.store.Participants.Create(ctx, exec, bot)
			if err != nil {
				return err
			}
			if !inserted {
				return errBotIdentityTaken
			}
			return nil
		})
		if errors.Is(err, errBotIdentityTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return bot, nil
	}
	return nil, ErrBotIdentityExhausted
}

func (s *BotFillService) newBot(tournamentID int64) *models.Participant {
	name := s.faker.Username()
	return &models.Participant{
		TournamentID: tournamentID,
		PlayerID:     BotPlayerID(name, s.faker.Uint64()),
		DisplayName:  name,
		IsBot:        true,
		JoinedAt:     s.clock.Now().UTC(),
	}
}

// BotPlayerID formats BOT_<name>_<hex16>, keeping only letters and digits of name.
func BotPlayerID(name string, suffix uint64) string {
	clean := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return -1
	}, name)
	if clean == "" {
		clean = "Player"
	}
	return fmt.Sprintf("%s%s_%016x", models.BotPlayerPrefix, clean, suffix)
}
