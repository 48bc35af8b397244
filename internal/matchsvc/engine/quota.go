package engine

import "fmt"

// finalRoundCap is the competition style "final 3" rule: the last round
// never allows more than three likes, whatever the formula says.
const finalRoundCap = 3

// LikeQuota returns how many likes a player may cast in the given round.
// The formula shrinks as rounds progress, never below 1, and the cap only
// ever lowers the result.
func LikeQuota(roundCurrent, roundTotal int) int {
	quota := roundTotal - roundCurrent + 2
	if quota < 1 {
		quota = 1
	}
	if roundCurrent >= roundTotal && quota > finalRoundCap {
		quota = finalRoundCap
	}
	return quota
}

// QuotaExceededError is rejected locally; it never reaches the store.
type QuotaExceededError struct {
	Limit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("like quota of %d reached for this round", e.Limit)
}
