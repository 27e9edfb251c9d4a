package libraffle

import (
	"time"

	"github.com/dedis/raffle/easyrand"
	"github.com/dedis/raffle/easyrand/base"
	"github.com/dedis/raffle/lottery"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/onet/v3/network"
	"golang.org/x/xerrors"
)

func init() {
	network.RegisterMessages(&InitUnitRequest{}, &InitUnitReply{},
		&DepositRequest{}, &DepositReply{}, &GetAccountRequest{},
		&GetAccountReply{}, &EnterRequest{}, &EnterReply{},
		&CheckUpkeepRequest{}, &CheckUpkeepReply{}, &PerformUpkeepRequest{},
		&PerformUpkeepReply{}, &FulfillRequest{}, &FulfillReply{},
		&GetStateRequest{}, &GetStateReply{}, &GetPlayerRequest{},
		&GetPlayerReply{}, &GetPayoutsRequest{}, &GetPayoutsReply{},
		&RetryPayoutRequest{}, &RetryPayoutReply{})
}

type InitUnitRequest struct {
	EntranceFee uint64
	Interval    time.Duration
	NumWords    uint32
	// FulfillDelay > 0 lets the oracle answer on its own after the delay.
	// Otherwise requests are fulfilled through FulfillRequest.
	FulfillDelay      time.Duration
	RequestPrice      uint64
	SubscriptionFunds uint64
	// KeeperInterval > 0 starts an in-process keeper.
	KeeperInterval time.Duration
	// HTTPAddr, if set, serves the operator API.
	HTTPAddr string
}

type InitUnitReply struct {
	// Oracle is the marshalled bn256 key that signs the randomness rounds.
	Oracle   []byte
	Restored bool
	Round    uint64
}

// OraclePublic unmarshals the oracle key.
func (r *InitUnitReply) OraclePublic() (kyber.Point, error) {
	pk := easyrand.Suite().G2().Point()
	if err := pk.UnmarshalBinary(r.Oracle); err != nil {
		return nil, xerrors.Errorf("couldn't unmarshal oracle key: %v", err)
	}
	return pk, nil
}

// DepositRequest credits an account. It stands in for an external funding
// channel.
type DepositRequest struct {
	Account string
	Amount  uint64
}

type DepositReply struct {
	Balance uint64
}

type GetAccountRequest struct {
	Account string
}

type GetAccountReply struct {
	Balance uint64
	Counter uint64
}

// EnterRequest is a signed ticket. Signature is a schnorr signature by
// Public over utils.TicketMessage(Public, Amount, Nonce).
type EnterRequest struct {
	Public    kyber.Point
	Amount    uint64
	Nonce     uint64
	Signature []byte
}

type EnterReply struct {
	Round   uint64
	Players uint64
}

type CheckUpkeepRequest struct{}

type CheckUpkeepReply struct {
	Needed     bool
	IsOpen     bool
	TimePassed bool
	HasPlayers bool
	HasBalance bool
}

type PerformUpkeepRequest struct{}

type PerformUpkeepReply struct {
	RequestID uint64
}

type FulfillRequest struct {
	RequestID uint64
}

// FulfillReply carries the proof of the randomness round. It verifies
// against the oracle key of InitUnitReply.
type FulfillReply struct {
	Round uint64
	Prev  []byte
	Value []byte
	// Digest is the hash of the output, as computed by the oracle.
	Digest []byte
}

// Output rebuilds the randomness output signed with public.
func (r *FulfillReply) Output(public kyber.Point) *base.RandomnessOutput {
	return &base.RandomnessOutput{Public: public, Round: r.Round, Prev: r.Prev,
		Value: r.Value}
}

type GetStateRequest struct{}

type GetStateReply struct {
	State         int
	Round         uint64
	RoundID       string
	EntranceFee   uint64
	Interval      time.Duration
	Players       uint64
	Balance       uint64
	LastTimestamp int64
	RecentWinner  string
	PendingID     uint64
	Stuck         *lottery.Payout
}

type GetPlayerRequest struct {
	Index uint64
}

type GetPlayerReply struct {
	Player string
}

type GetPayoutsRequest struct{}

type GetPayoutsReply struct {
	Payouts []*lottery.Payout
}

type RetryPayoutRequest struct{}

type RetryPayoutReply struct {
	Payout *lottery.Payout
}
