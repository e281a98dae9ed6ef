package services

// Integer percentages keep every split a floor of the exact value.
const (
	prizePoolPercent = 85
	rakePercent      = 15
)

var placementPercents = [3]int64{60, 25, 15}

// SplitEntryFees returns the prize pool and rake collected from a full pool.
func SplitEntryFees(entryFee int64, maxPlayers int) (pool, rake int64) {
	gross := entryFee * int64(maxPlayers)
	return gross * prizePoolPercent / 100, gross * rakePercent / 100
}

// PlacementPrizes splits pool 60/25/15 for 1st/2nd/3rd. The sum never exceeds pool.
func PlacementPrizes(pool int64) [3]int64 {
	var prizes [3]int64
	if pool <= 0 {
		return prizes
	}
	for i, pct := range placementPercents {
		prizes[i] = pool * pct / 100
	}
	return prizes
}

// PrizeFor returns the prize of a 1-based placement, zero outside the top 3.
func PrizeFor(pool int64, placement int) int64 {
	if placement < 1 || placement > len(placementPercents) {
		return 0
	}
	return PlacementPrizes(pool)[placement-1]
}
