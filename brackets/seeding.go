package brackets

import "github.com/roachygames/tournament-orchestrator/models"

// RandomSource is satisfied by *gofakeit.Faker.
type RandomSource interface {
	Number(min, max int) int
}

// Seed returns copies of participants in a uniformly shuffled order with
// Seed set to position+1. The input slice is not modified.
func Seed(participants []*models.Participant, rng RandomSource) []*models.Participant {
	seeded := make([]*models.Participant, len(participants))
	for i, p := range participants {
		cp := *p
		seeded[i] = &cp
	}

	for i := len(seeded) - 1; i > 0; i-- {
		j := rng.Number(0, i)
		seeded[i], seeded[j] = seeded[j], seeded[i]
	}

	for i, p := range seeded {
		seed := i + 1
		p.Seed = &seed
	}
	return seeded
}

func PlayerIDs(participants []*models.Participant) []string {
	ids := make([]string, len(participants))
	for i, p := range participants {
		ids[i] = p.PlayerID
	}
	return ids
}
