package libraffle

import (
	"github.com/dedis/raffle/utils"
	"go.dedis.ch/cothority/v3"
	"go.dedis.ch/kyber/v3/util/key"
	"go.dedis.ch/onet/v3"
	"golang.org/x/xerrors"
)

type Client struct {
	*onet.Client
	roster *onet.Roster
}

func NewClient(r *onet.Roster) *Client {
	return &Client{Client: onet.NewClient(cothority.Suite, ServiceName), roster: r}
}

func (c *Client) InitUnit(req *InitUnitRequest) (*InitUnitReply, error) {
	reply := &InitUnitReply{}
	err := c.SendProtobuf(c.roster.List[0], req, reply)
	return reply, err
}

func (c *Client) Deposit(account string, amount uint64) (*DepositReply, error) {
	req := &DepositRequest{Account: account, Amount: amount}
	reply := &DepositReply{}
	err := c.SendProtobuf(c.roster.List[0], req, reply)
	return reply, err
}

func (c *Client) GetAccount(account string) (*GetAccountReply, error) {
	reply := &GetAccountReply{}
	err := c.SendProtobuf(c.roster.List[0], &GetAccountRequest{Account: account}, reply)
	return reply, err
}

// Enter signs a ticket for amount with the next nonce of kp and enters the
// current round.
func (c *Client) Enter(kp *key.Pair, amount uint64) (*EnterReply, error) {
	id, err := utils.AccountID(kp.Public)
	if err != nil {
		return nil, err
	}
	acct, err := c.GetAccount(id)
	if err != nil {
		return nil, xerrors.Errorf("couldn't get account: %v", err)
	}
	nonce := acct.Counter + 1
	sig, err := utils.SignTicket(kp.Private, kp.Public, amount, nonce)
	if err != nil {
		return nil, xerrors.Errorf("couldn't sign ticket: %v", err)
	}
	req := &EnterRequest{Public: kp.Public, Amount: amount, Nonce: nonce,
		Signature: sig}
	reply := &EnterReply{}
	err = c.SendProtobuf(c.roster.List[0], req, reply)
	return reply, err
}

func (c *Client) CheckUpkeep() (*CheckUpkeepReply, error) {
	reply := &CheckUpkeepReply{}
	err := c.SendProtobuf(c.roster.List[0], &CheckUpkeepRequest{}, reply)
	return reply, err
}

func (c *Client) PerformUpkeep() (*PerformUpkeepReply, error) {
	reply := &PerformUpkeepReply{}
	err := c.SendProtobuf(c.roster.List[0], &PerformUpkeepRequest{}, reply)
	return reply, err
}

func (c *Client) Fulfill(requestID uint64) (*FulfillReply, error) {
	reply := &FulfillReply{}
	err := c.SendProtobuf(c.roster.List[0], &FulfillRequest{RequestID: requestID}, reply)
	return reply, err
}

func (c *Client) GetState() (*GetStateReply, error) {
	reply := &GetStateReply{}
	err := c.SendProtobuf(c.roster.List[0], &GetStateRequest{}, reply)
	return reply, err
}

func (c *Client) GetPlayer(index uint64) (*GetPlayerReply, error) {
	reply := &GetPlayerReply{}
	err := c.SendProtobuf(c.roster.List[0], &GetPlayerRequest{Index: index}, reply)
	return reply, err
}

func (c *Client) GetPayouts() (*GetPayoutsReply, error) {
	reply := &GetPayoutsReply{}
	err := c.SendProtobuf(c.roster.List[0], &GetPayoutsRequest{}, reply)
	return reply, err
}

func (c *Client) RetryPayout() (*RetryPayoutReply, error) {
	reply := &RetryPayoutReply{}
	err := c.SendProtobuf(c.roster.List[0], &RetryPayoutRequest{}, reply)
	return reply, err
}

// Target adapts the client to keeper.Target.
type Target struct {
	C *Client
}

func (t Target) CheckUpkeep() (bool, error) {
	reply, err := t.C.CheckUpkeep()
	if err != nil {
		return false, err
	}
	return reply.Needed, nil
}

func (t Target) PerformUpkeep() error {
	_, err := t.C.PerformUpkeep()
	return err
}
