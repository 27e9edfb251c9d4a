package lottery

import (
	"fmt"

	"golang.org/x/xerrors"
)

// Validation errors. All of them are returned before any state is mutated.
var (
	ErrInsufficientFee = xerrors.New("not enough funds to enter the raffle")
	ErrNotOpen         = xerrors.New("raffle is not open")
	ErrUpkeepNotNeeded = xerrors.New("upkeep not needed")
	ErrUnknownRequest  = xerrors.New("unknown randomness request")
	ErrAlreadyPending  = xerrors.New("randomness request already pending")
	ErrIndexOutOfRange = xerrors.New("participant index out of range")
	ErrNoPendingPayout = xerrors.New("no pending payout")
	ErrPoolOverflow    = xerrors.New("pool balance overflow")
)

// ErrTransferFailed is matched by every TransferError.
var ErrTransferFailed = xerrors.New("transfer failed")

// UpkeepError reports the raffle figures at the time PerformUpkeep was
// rejected.
type UpkeepError struct {
	Status UpkeepStatus
}

func (e *UpkeepError) Error() string {
	return fmt.Sprintf("%v: balance=%d players=%d state=%s", ErrUpkeepNotNeeded,
		e.Status.Balance, e.Status.Players, e.Status.State)
}

func (e *UpkeepError) Is(target error) bool {
	return target == ErrUpkeepNotNeeded
}

// TransferError wraps the failure of the underlying transfer channel.
type TransferError struct {
	Recipient string
	Amount    uint64
	Err       error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%v: couldn't pay %d to %s: %v", ErrTransferFailed,
		e.Amount, e.Recipient, e.Err)
}

func (e *TransferError) Is(target error) bool {
	return target == ErrTransferFailed
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
