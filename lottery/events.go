package lottery

// EventKind identifies a raffle notification.
type EventKind int

const (
	Entered EventKind = iota
	RoundClosing
	WinnerPicked
)

func (k EventKind) String() string {
	switch k {
	case Entered:
		return "RaffleEntered"
	case RoundClosing:
		return "RequestedRaffleWinner"
	case WinnerPicked:
		return "WinnerPicked"
	default:
		return "Unknown"
	}
}

// Event is emitted after an operation has committed. Participant is set for
// Entered, RequestID for RoundClosing and Winner, Amount and Payout for
// WinnerPicked.
type Event struct {
	Kind        EventKind
	Round       uint64
	RoundID     string
	Participant string
	RequestID   uint64
	Winner      string
	Amount      uint64
	Payout      *Payout
}

// Listener receives events synchronously, while the raffle is locked. It
// must not call back into the raffle.
type Listener func(Event)
