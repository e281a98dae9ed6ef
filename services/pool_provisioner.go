package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jonboulle/clockwork"
	"github.com/roachygames/tournament-orchestrator/models"
	"github.com/roachygames/tournament-orchestrator/repositories"
)

// PoolProvisioner keeps exactly one registering pool per template.
type PoolProvisioner struct {
	store     Store
	templates *TemplateRegistry
	clock     clockwork.Clock
	logger    *slog.Logger
	isolate   bool
}

func NewPoolProvisioner(store Store, templates *TemplateRegistry, clock clockwork.Clock, logger *slog.Logger, isolate bool) *PoolProvisioner {
	return &PoolProvisioner{store: store, templates: templates, clock: clock, logger: logger, isolate: isolate}
}

func (p *PoolProvisioner) Name() string { return "pool_provisioner" }

func (p *PoolProvisioner) Run(ctx context.Context) error {
	open, err := listByStatus(ctx, p.store.Tournaments, models.StatusRegistering)
	if err != nil {
		return fmt.Errorf("failed to list open pools: %w", err)
	}

	f := failures{isolate: p.isolate}
	covered := make(map[models.PoolKey]bool)

	for _, stale := range p.staleEmptyPools(open, covered) {
		err := p.store.Tournaments.DeleteEmptyPool(ctx, stale.ID)
		if errors.Is(err, repositories.ErrTournamentStateChanged) {
			// A player joined in between; the pool stays.
			covered[stale.PoolKey()] = true
			continue
		}
		if err != nil {
			if f.add(fmt.Errorf("tournament %d: %w", stale.ID, err)) {
				return f.err()
			}
			continue
		}
		p.logger.InfoContext(ctx, "removed stale empty pool", tournamentAttrs(stale))
	}

	for _, tpl := range p.templates.All() {
		if covered[tpl.PoolKey()] {
			continue
		}
		pool := NewPool(tpl, p.clock.Now().UTC())
		created, err := p.store.Tournaments.CreateOpenPool(ctx, pool)
		if err != nil {
			if f.add(fmt.Errorf("template %q: %w", tpl.Name, err)) {
				return f.err()
			}
			continue
		}
		if created {
			p.logger.InfoContext(ctx, "provisioned pool", tournamentAttrs(pool), slog.Int64("prize_pool", pool.PrizePool))
		}
	}
	return f.err()
}

// staleEmptyPools returns empty registering pools that are either not backed by a
// template or duplicate another open pool of the same key, and marks the keys
// that keep an open pool in covered. Per key, a pool with players wins over an
// empty one, then the oldest.
func (p *PoolProvisioner) staleEmptyPools(open []*models.Tournament, covered map[models.PoolKey]bool) []*models.Tournament {
	byKey := make(map[models.PoolKey][]*models.Tournament)
	var stale []*models.Tournament

	for _, t := range open {
		if _, known := p.templates.Lookup(t.PoolKey()); !known {
			if t.CurrentPlayers == 0 {
				stale = append(stale, t)
			}
			continue
		}
		byKey[t.PoolKey()] = append(byKey[t.PoolKey()], t)
	}

	for key, pools := range byKey {
		sort.SliceStable(pools, func(i, j int) bool {
			if (pools[i].CurrentPlayers > 0) != (pools[j].CurrentPlayers > 0) {
				return pools[i].CurrentPlayers > 0
			}
			if !pools[i].CreatedAt.Equal(pools[j].CreatedAt) {
				return pools[i].CreatedAt.Before(pools[j].CreatedAt)
			}
			return pools[i].ID < pools[j].ID
		})
		covered[key] = true
		for _, dup := range pools[1:] {
			if dup.CurrentPlayers == 0 {
				stale = append(stale, dup)
			}
		}
	}

	sort.Slice(stale, func(i, j int) bool { return stale[i].ID < stale[j].ID })
	return stale
}
