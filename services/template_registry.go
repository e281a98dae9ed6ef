package services

import (
	"fmt"
	"time"

	"github.com/roachygames/tournament-orchestrator/models"
)

// DefaultTemplates is the static template table the platform runs.
func DefaultTemplates() []models.Template {
	return []models.Template{
		{
			Name:        "Bullet Blitz Free",
			Type:        models.TypeSitAndGo,
			Format:      models.FormatBracket,
			TimeControl: "1+0",
			EntryFee:    0,
			MinPlayers:  2,
			MaxPlayers:  8,
		},
		{
			Name:        "Rapid Sit & Go",
			Type:        models.TypeSitAndGo,
			Format:      models.FormatBracket,
			TimeControl: "10+0",
			EntryFee:    100,
			MinPlayers:  4,
			MaxPlayers:  8,
		},
		{
			Name:               "Daily Blitz",
			Type:               models.TypeDaily,
			Format:             models.FormatBracket,
			TimeControl:        "3+2",
			EntryFee:           50,
			MinPlayers:         4,
			MaxPlayers:         16,
			RegistrationWindow: 24 * time.Hour,
		},
		{
			Name:               "Weekly Arena",
			Type:               models.TypeWeekly,
			Format:             models.FormatArena,
			TimeControl:        "5+0",
			EntryFee:           200,
			MinPlayers:         4,
			MaxPlayers:         64,
			RegistrationWindow: 7 * 24 * time.Hour,
			ArenaDuration:      time.Hour,
		},
	}
}

type TemplateRegistry struct {
	templates []models.Template
	byKey     map[models.PoolKey]models.Template
}

func NewTemplateRegistry(templates []models.Template) (*TemplateRegistry, error) {
	r := &TemplateRegistry{
		templates: make([]models.Template, 0, len(templates)),
		byKey:     make(map[models.PoolKey]models.Template, len(templates)),
	}
	for _, t := range templates {
		if err := validateTemplate(t); err != nil {
			return nil, err
		}
		if _, dup := r.byKey[t.PoolKey()]; dup {
			return nil, fmt.Errorf("%w: duplicate template %q with entry fee %d", ErrInvalidTemplate, t.Name, t.EntryFee)
		}
		r.byKey[t.PoolKey()] = t
		r.templates = append(r.templates, t)
	}
	return r, nil
}

func validateTemplate(t models.Template) error {
	switch {
	case t.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidTemplate)
	case t.EntryFee < 0:
		return fmt.Errorf("%w: %q has a negative entry fee", ErrInvalidTemplate, t.Name)
	case t.MaxPlayers < 2:
		return fmt.Errorf("%w: %q needs at least 2 max players", ErrInvalidTemplate, t.Name)
	case t.MinPlayers < 2 || t.MinPlayers > t.MaxPlayers:
		return fmt.Errorf("%w: %q min players must be within [2, %d]", ErrInvalidTemplate, t.Name, t.MaxPlayers)
	case t.Format == models.FormatArena && t.ArenaDuration <= 0:
		return fmt.Errorf("%w: arena template %q needs a duration", ErrInvalidTemplate, t.Name)
	case t.Format != models.FormatArena && t.Format != models.FormatBracket:
		return fmt.Errorf("%w: %q has unknown format %q", ErrInvalidTemplate, t.Name, t.Format)
	}
	return nil
}

func (r *TemplateRegistry) All() []models.Template {
	out := make([]models.Template, len(r.templates))
	copy(out, r.templates)
	return out
}

func (r *TemplateRegistry) Lookup(key models.PoolKey) (models.Template, bool) {
	t, ok := r.byKey[key]
	return t, ok
}

// NewPool builds the registering tournament row for a template.
func NewPool(t models.Template, now time.Time) *models.Tournament {
	pool, rake := SplitEntryFees(t.EntryFee, t.MaxPlayers)
	tour := &models.Tournament{
		TemplateName: t.Name,
		Type:         t.Type,
		Format:       t.Format,
		TimeControl:  t.TimeControl,
		EntryFee:     t.EntryFee,
		PrizePool:    pool,
		RakeAmount:   rake,
		MinPlayers:   t.MinPlayers,
		MaxPlayers:   t.MaxPlayers,
		TotalRounds:  models.TotalRoundsFor(t.MaxPlayers),
		Status:       models.StatusRegistering,
		CreatedAt:    now,
	}
	if t.RegistrationWindow > 0 {
		start := now.Add(t.RegistrationWindow)
		tour.ScheduledStartAt = &start
		if t.Format == models.FormatArena {
			end := start.Add(t.ArenaDuration)
			tour.ScheduledEndAt = &end
		}
	}
	return tour
}
