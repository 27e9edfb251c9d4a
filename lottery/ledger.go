package lottery

// EntryLedger tracks the participants and the pool balance of the current
// round. It is not safe for concurrent use; the Raffle serialises access.
type EntryLedger struct {
	fee          uint64
	participants []string
	balance      uint64
}

// NewEntryLedger returns an empty ledger guarded by fee.
func NewEntryLedger(fee uint64) *EntryLedger {
	return &EntryLedger{fee: fee}
}

// EntranceFee returns the minimum amount accepted by Enter.
func (l *EntryLedger) EntranceFee() uint64 {
	return l.fee
}

// Check validates an entry without recording it.
func (l *EntryLedger) Check(state State, amount uint64) error {
	if state != Open {
		return ErrNotOpen
	}
	if amount < l.fee {
		return ErrInsufficientFee
	}
	if l.balance+amount < l.balance {
		return ErrPoolOverflow
	}
	return nil
}

// Enter appends participant to the list and adds amount to the pool. The
// same participant may enter several times.
func (l *EntryLedger) Enter(state State, participant string, amount uint64) error {
	if err := l.Check(state, amount); err != nil {
		return err
	}
	l.participants = append(l.participants, participant)
	l.balance += amount
	return nil
}

// ParticipantAt returns the participant at index i.
func (l *EntryLedger) ParticipantAt(i int) (string, error) {
	if i < 0 || i >= len(l.participants) {
		return "", ErrIndexOutOfRange
	}
	return l.participants[i], nil
}

func (l *EntryLedger) ParticipantCount() int {
	return len(l.participants)
}

func (l *EntryLedger) PoolBalance() uint64 {
	return l.balance
}

// Participants returns a copy of the participant list.
func (l *EntryLedger) Participants() []string {
	out := make([]string, len(l.participants))
	copy(out, l.participants)
	return out
}

// Reset clears the list and zeroes the balance.
func (l *EntryLedger) Reset() {
	l.participants = nil
	l.balance = 0
}
