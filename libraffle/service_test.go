package libraffle

import (
	"testing"
	"time"

	"github.com/dedis/raffle/easyrand"
	"github.com/dedis/raffle/lottery"
	"github.com/dedis/raffle/utils"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/cothority/v3"
	"go.dedis.ch/kyber/v3/util/key"
	"go.dedis.ch/onet/v3"
	"go.dedis.ch/onet/v3/log"
)

func TestMain(m *testing.M) {
	log.MainTest(m)
}

const interval = 200 * time.Millisecond

func setup(t *testing.T, n int) (*onet.LocalTest, *Service, *Client) {
	local := onet.NewTCPTest(cothority.Suite)
	hosts, roster, _ := local.GenTree(n, true)
	s := local.GetServices(hosts, raffleID)[0].(*Service)
	return local, s, NewClient(roster)
}

func players(t *testing.T, cl *Client, n int, funds uint64) ([]*key.Pair, []string) {
	kps := make([]*key.Pair, n)
	ids := make([]string, n)
	for i := range kps {
		kps[i] = key.NewKeyPair(cothority.Suite)
		id, err := utils.AccountID(kps[i].Public)
		require.NoError(t, err)
		ids[i] = id
		reply, err := cl.Deposit(id, funds)
		require.NoError(t, err)
		require.Equal(t, funds, reply.Balance)
	}
	return kps, ids
}

func TestService_Round(t *testing.T) {
	local, s, cl := setup(t, 3)
	defer local.CloseAll()
	defer s.Stop()

	_, err := cl.GetState()
	require.Error(t, err)
	ir, err := cl.InitUnit(&InitUnitRequest{EntranceFee: 10, Interval: interval,
		SubscriptionFunds: 10, RequestPrice: 1})
	require.NoError(t, err)
	require.False(t, ir.Restored)
	require.Equal(t, uint64(1), ir.Round)
	oracle, err := ir.OraclePublic()
	require.NoError(t, err)
	_, err = cl.InitUnit(&InitUnitRequest{EntranceFee: 10, Interval: interval})
	require.Error(t, err)

	kps, ids := players(t, cl, 3, 100)
	for i, kp := range kps {
		reply, err := cl.Enter(kp, 10)
		require.NoError(t, err)
		require.Equal(t, uint64(i+1), reply.Players)
	}
	_, err = cl.Enter(kps[0], 5)
	require.Error(t, err)
	acct, err := cl.GetAccount(ids[0])
	require.NoError(t, err)
	require.Equal(t, uint64(1), acct.Counter)
	require.Equal(t, uint64(90), acct.Balance)

	p, err := cl.GetPlayer(2)
	require.NoError(t, err)
	require.Equal(t, ids[2], p.Player)
	_, err = cl.GetPlayer(3)
	require.Error(t, err)

	up, err := cl.CheckUpkeep()
	require.NoError(t, err)
	require.False(t, up.Needed)
	require.True(t, up.IsOpen && up.HasPlayers && up.HasBalance)
	_, err = cl.PerformUpkeep()
	require.Error(t, err)

	time.Sleep(interval)
	up, err = cl.CheckUpkeep()
	require.NoError(t, err)
	require.True(t, up.Needed)
	pu, err := cl.PerformUpkeep()
	require.NoError(t, err)
	require.Equal(t, uint64(1), pu.RequestID)

	_, err = cl.Enter(kps[1], 10)
	require.Error(t, err)
	st, err := cl.GetState()
	require.NoError(t, err)
	require.Equal(t, int(lottery.Calculating), st.State)
	require.Equal(t, uint64(1), st.PendingID)
	require.Equal(t, uint64(30), st.Balance)

	_, err = cl.Fulfill(2)
	require.Error(t, err)
	fr, err := cl.Fulfill(1)
	require.NoError(t, err)
	out := fr.Output(oracle)
	require.NoError(t, out.Verify(easyrand.Suite(), oracle))
	digest, err := out.Hash()
	require.NoError(t, err)
	require.Equal(t, digest, fr.Digest)
	winner := ids[out.Words(1)[0]%3]

	payouts, err := cl.GetPayouts()
	require.NoError(t, err)
	require.Len(t, payouts.Payouts, 1)
	require.Equal(t, winner, payouts.Payouts[0].Winner)
	require.Equal(t, uint64(30), payouts.Payouts[0].Amount)

	st, err = cl.GetState()
	require.NoError(t, err)
	require.Equal(t, int(lottery.Open), st.State)
	require.Equal(t, uint64(2), st.Round)
	require.Equal(t, winner, st.RecentWinner)
	require.Equal(t, uint64(0), st.Balance)
	for _, id := range ids {
		acct, err := cl.GetAccount(id)
		require.NoError(t, err)
		if id == winner {
			require.Equal(t, uint64(120), acct.Balance)
		} else {
			require.Equal(t, uint64(90), acct.Balance)
		}
	}
	_, err = cl.RetryPayout()
	require.Error(t, err)
}

func TestService_Ticket(t *testing.T) {
	local, s, cl := setup(t, 1)
	defer local.CloseAll()
	defer s.Stop()
	_, err := cl.InitUnit(&InitUnitRequest{EntranceFee: 10, Interval: interval})
	require.NoError(t, err)
	kps, ids := players(t, cl, 2, 15)

	sig, err := utils.SignTicket(kps[0].Private, kps[0].Public, 10, 1)
	require.NoError(t, err)
	req := &EnterRequest{Public: kps[0].Public, Amount: 10, Nonce: 1, Signature: sig}
	_, err = s.Enter(req)
	require.NoError(t, err)
	// replay
	_, err = s.Enter(req)
	require.Error(t, err)
	// someone else's key
	req = &EnterRequest{Public: kps[1].Public, Amount: 10, Nonce: 1, Signature: sig}
	_, err = s.Enter(req)
	require.Error(t, err)
	// not enough funds for a second ticket
	_, err = cl.Enter(kps[0], 10)
	require.Error(t, err)
	acct, err := cl.GetAccount(ids[0])
	require.NoError(t, err)
	require.Equal(t, uint64(1), acct.Counter)
	require.Equal(t, uint64(5), acct.Balance)

	// the rejected ticket gave its nonce back
	_, err = cl.Deposit(ids[0], 5)
	require.NoError(t, err)
	rep, err := cl.Enter(kps[0], 10)
	require.NoError(t, err)
	require.Equal(t, uint64(2), rep.Players)
	acct, err = cl.GetAccount(ids[0])
	require.NoError(t, err)
	require.Equal(t, uint64(2), acct.Counter)
	require.Equal(t, uint64(0), acct.Balance)

	_, err = cl.Deposit("_pool", 10)
	require.Error(t, err)
}

func TestService_Restore(t *testing.T) {
	local, s, cl := setup(t, 1)
	defer local.CloseAll()
	defer s.Stop()
	req := &InitUnitRequest{EntranceFee: 10, Interval: interval, NumWords: 2}
	_, err := cl.InitUnit(req)
	require.NoError(t, err)
	kps, ids := players(t, cl, 2, 10)
	for _, kp := range kps {
		_, err := cl.Enter(kp, 10)
		require.NoError(t, err)
	}
	time.Sleep(interval)
	_, err = cl.PerformUpkeep()
	require.NoError(t, err)

	// Drop the raffle as a restart would.
	s.Stop()
	s.mu.Lock()
	s.raffle = nil
	s.mu.Unlock()

	ir, err := cl.InitUnit(&InitUnitRequest{EntranceFee: 99, Interval: time.Hour})
	require.NoError(t, err)
	require.True(t, ir.Restored)
	st, err := cl.GetState()
	require.NoError(t, err)
	require.Equal(t, int(lottery.Calculating), st.State)
	require.Equal(t, uint64(10), st.EntranceFee)
	require.Equal(t, uint64(2), st.Players)

	_, err = cl.Fulfill(st.PendingID)
	require.NoError(t, err)
	st, err = cl.GetState()
	require.NoError(t, err)
	require.Equal(t, int(lottery.Open), st.State)
	require.Contains(t, ids, st.RecentWinner)
}

func TestService_Automation(t *testing.T) {
	local, s, cl := setup(t, 1)
	defer local.CloseAll()
	defer s.Stop()
	_, err := cl.InitUnit(&InitUnitRequest{EntranceFee: 10, Interval: interval,
		FulfillDelay: 10 * time.Millisecond, KeeperInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	kps, _ := players(t, cl, 2, 100)
	for _, kp := range kps {
		_, err := cl.Enter(kp, 10)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool {
		st, err := cl.GetState()
		return err == nil && st.Round == 2
	}, 5*time.Second, 20*time.Millisecond)
	payouts, err := cl.GetPayouts()
	require.NoError(t, err)
	require.Len(t, payouts.Payouts, 1)
	require.Equal(t, uint64(20), payouts.Payouts[0].Amount)
}

func TestService_StopHaltsAutomation(t *testing.T) {
	local, s, cl := setup(t, 1)
	defer local.CloseAll()
	defer s.Stop()
	_, err := cl.InitUnit(&InitUnitRequest{EntranceFee: 10, Interval: interval,
		FulfillDelay: time.Second, KeeperInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	kps, _ := players(t, cl, 2, 100)
	for _, kp := range kps {
		_, err := cl.Enter(kp, 10)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool {
		st, err := cl.GetState()
		return err == nil && st.State == int(lottery.Calculating)
	}, 5*time.Second, 20*time.Millisecond)

	s.Stop()
	time.Sleep(2 * time.Second)
	st, err := cl.GetState()
	require.NoError(t, err)
	require.Equal(t, int(lottery.Calculating), st.State)
	require.Equal(t, uint64(1), st.Round)
	payouts, err := cl.GetPayouts()
	require.NoError(t, err)
	require.Empty(t, payouts.Payouts)
}
