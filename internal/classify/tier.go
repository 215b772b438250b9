package classify

// Tier sizes a holder by moved token amount, smallest to largest.
type Tier struct {
	Name  string
	Emoji string
}

var tiers = []struct {
	below float64
	tier  Tier
}{
	{1_000, Tier{"shrimp", "🦐"}},
	{10_000, Tier{"fish", "🐠"}},
	{50_000, Tier{"crab", "🦀"}},
	{500_000, Tier{"dolphin", "🐬"}},
	{1_000_000, Tier{"octopus", "🐙"}},
	{2_000_000, Tier{"shark", "🦈"}},
	{10_000_000, Tier{"whale", "🐋"}},
}

// TierFor buckets a transfer amount, in token units, into a holder tier.
func TierFor(amount float64) Tier {
	for _, t := range tiers {
		if amount < t.below {
			return t.tier
		}
	}
	return Tier{"kraken", "🦑"}
}
