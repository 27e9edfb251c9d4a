package lottery

import (
	"time"
)

// State is the state of the current round.
type State int

const (
	// Open accepts entries.
	Open State = iota
	// Calculating waits for the randomness callback.
	Calculating
)

func (s State) String() string {
	switch s {
	case Open:
		return "OPEN"
	case Calculating:
		return "CALCULATING"
	default:
		return "UNKNOWN"
	}
}

// Config holds the immutable parameters of a raffle.
type Config struct {
	EntranceFee uint64
	Interval    time.Duration
	// NumWords is the number of random words requested per round. Only the
	// first one is used to pick the winner.
	NumWords uint32
}

// Clock returns the current time. The raffle never reads the wall clock
// directly.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads time.Now.
var SystemClock Clock = systemClock{}

// Coordinator is the oracle side of the randomness protocol. It must answer
// asynchronously: the callback may not be delivered from inside
// RequestRandomWords.
type Coordinator interface {
	RequestRandomWords(numWords uint32) (uint64, error)
}

// Transferer moves pooled funds to a recipient.
type Transferer interface {
	Transfer(recipient string, amount uint64) error
}

// Collector takes custody of an entry amount on behalf of the pool.
type Collector interface {
	Collect(from string, amount uint64) error
}

// Journal persists the raffle. Commit is called with the raffle locked and
// must not call back into it.
type Journal interface {
	Commit(*Snapshot)
}

// Payout records a successful disbursement.
type Payout struct {
	Round     uint64
	RoundID   string
	RequestID uint64
	Winner    string
	Index     uint64
	Amount    uint64
	Players   uint64
	Time      int64
}

// Snapshot is the full observable state of a raffle. It is protobuf
// friendly so that it can be persisted.
type Snapshot struct {
	State        int
	Round        uint64
	RoundID      string
	LastStart    int64
	PendingID    uint64
	Participants []string
	Balance      uint64
	RecentWinner string
	// Stuck is set when the winner was resolved but the payment failed.
	Stuck *Payout
}
