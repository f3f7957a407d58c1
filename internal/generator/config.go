package generator

// Config drives the synthetic history generator.
type Config struct {
	NumUsers        int
	NumTransactions int
	// BurstChance is the probability that a transaction follows the previous
	// one from the same sender within a few minutes.
	BurstChance       float64
	HighRiskChance    float64
	LargeAmountChance float64
	Seed              int64
}

// DefaultConfig returns baseline settings for a local dataset.
func DefaultConfig() Config {
	return Config{
		NumUsers:          500,
		NumTransactions:   5000,
		BurstChance:       0.2,
		HighRiskChance:    0.03,
		LargeAmountChance: 0.05,
		Seed:              42,
	}
}
