// Package libtest holds end-to-end tests of the raffle service and the
// helpers they share.
package libtest

import (
	"github.com/dedis/raffle/libraffle"
	"github.com/dedis/raffle/utils"
	"go.dedis.ch/cothority/v3"
	"go.dedis.ch/kyber/v3/util/key"
	"go.dedis.ch/onet/v3"
	"golang.org/x/xerrors"
)

// Participant is a funded raffle account.
type Participant struct {
	Pair    *key.Pair
	Account string
}

func GenerateParticipants(count int) ([]*Participant, error) {
	ps := make([]*Participant, count)
	for i := 0; i < count; i++ {
		kp := key.NewKeyPair(cothority.Suite)
		id, err := utils.AccountID(kp.Public)
		if err != nil {
			return nil, err
		}
		ps[i] = &Participant{Pair: kp, Account: id}
	}
	return ps, nil
}

// SetupRaffle initializes the raffle unit of roster and credits every
// participant with funds.
func SetupRaffle(roster *onet.Roster, req *libraffle.InitUnitRequest,
	ps []*Participant, funds uint64) (*libraffle.Client, *libraffle.InitUnitReply, error) {
	cl := libraffle.NewClient(roster)
	reply, err := cl.InitUnit(req)
	if err != nil {
		return nil, nil, xerrors.Errorf("couldn't initialize raffle: %v", err)
	}
	for _, p := range ps {
		if _, err := cl.Deposit(p.Account, funds); err != nil {
			return nil, nil, xerrors.Errorf("couldn't fund %s: %v", p.Account, err)
		}
	}
	return cl, reply, nil
}

// Balances returns the vault balance of every participant.
func Balances(cl *libraffle.Client, ps []*Participant) (map[string]uint64, error) {
	bals := make(map[string]uint64)
	for _, p := range ps {
		reply, err := cl.GetAccount(p.Account)
		if err != nil {
			return nil, err
		}
		bals[p.Account] = reply.Balance
	}
	return bals, nil
}
