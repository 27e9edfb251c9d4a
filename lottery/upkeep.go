package lottery

import (
	"time"
)

// UpkeepStatus breaks IsUpkeepNeeded down into its conditions.
type UpkeepStatus struct {
	State      State
	Players    int
	Balance    uint64
	IsOpen     bool
	TimePassed bool
	HasPlayers bool
	HasBalance bool
}

// Needed reports whether every condition holds.
func (s UpkeepStatus) Needed() bool {
	return s.IsOpen && s.TimePassed && s.HasPlayers && s.HasBalance
}

// EvaluateUpkeep evaluates each round-closure condition. It has no side
// effects.
func EvaluateUpkeep(now, lastStart time.Time, interval time.Duration,
	state State, participants int, balance uint64) UpkeepStatus {
	return UpkeepStatus{
		State:      state,
		Players:    participants,
		Balance:    balance,
		IsOpen:     state == Open,
		TimePassed: now.Sub(lastStart) >= interval,
		HasPlayers: participants > 0,
		HasBalance: balance > 0,
	}
}

// IsUpkeepNeeded is true iff the round is open, the interval has elapsed and
// the round has both players and funds.
func IsUpkeepNeeded(now, lastStart time.Time, interval time.Duration,
	state State, participants int, balance uint64) bool {
	return EvaluateUpkeep(now, lastStart, interval, state, participants,
		balance).Needed()
}
