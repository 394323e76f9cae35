package adapter

// TokenEstimator counts prompt tokens for context budgeting.
type TokenEstimator interface {
	Estimate(text string) int
}
