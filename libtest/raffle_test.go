package libtest

import (
	"testing"
	"time"

	"github.com/dedis/raffle/easyrand"
	"github.com/dedis/raffle/keeper"
	"github.com/dedis/raffle/libraffle"
	"github.com/dedis/raffle/lottery"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/cothority/v3"
	"go.dedis.ch/onet/v3"
	"go.dedis.ch/onet/v3/log"
)

func TestMain(m *testing.M) {
	log.MainTest(m)
}

const fee = 10
const funds = 1000

// Several rounds driven by a remote keeper and the manual oracle. The pool
// is conserved: whatever the participants pay in is paid back out to the
// winners.
func Test_Raffle(t *testing.T) {
	l := onet.NewTCPTest(cothority.Suite)
	_, roster, _ := l.GenTree(4, true)
	defer l.CloseAll()

	ps, err := GenerateParticipants(5)
	require.NoError(t, err)
	interval := 500 * time.Millisecond
	cl, ir, err := SetupRaffle(roster, &libraffle.InitUnitRequest{
		EntranceFee: fee, Interval: interval, NumWords: 3}, ps, funds)
	require.NoError(t, err)
	oracle, err := ir.OraclePublic()
	require.NoError(t, err)
	k := keeper.New(libraffle.Target{C: cl}, interval)

	rounds := 3
	for round := 1; round <= rounds; round++ {
		for i, p := range ps[:round+1] {
			reply, err := cl.Enter(p.Pair, fee)
			require.NoError(t, err)
			require.Equal(t, uint64(round), reply.Round)
			require.Equal(t, uint64(i+1), reply.Players)
		}
		done, err := k.Poll()
		require.NoError(t, err)
		require.False(t, done)
		time.Sleep(interval)
		done, err = k.Poll()
		require.NoError(t, err)
		require.True(t, done)

		st, err := cl.GetState()
		require.NoError(t, err)
		require.Equal(t, int(lottery.Calculating), st.State)
		fr, err := cl.Fulfill(st.PendingID)
		require.NoError(t, err)
		out := fr.Output(oracle)
		require.NoError(t, out.Verify(easyrand.Suite(), oracle))
		digest, err := out.Hash()
		require.NoError(t, err)
		require.Equal(t, digest, fr.Digest)
		require.Equal(t, uint64(round-1), out.Round)

		st, err = cl.GetState()
		require.NoError(t, err)
		require.Equal(t, int(lottery.Open), st.State)
		require.Equal(t, uint64(round+1), st.Round)
		require.Equal(t, uint64(0), st.Players)
		require.Equal(t, ps[out.Words(3)[0]%uint64(round+1)].Account, st.RecentWinner)
	}

	payouts, err := cl.GetPayouts()
	require.NoError(t, err)
	require.Len(t, payouts.Payouts, rounds)
	won := make(map[string]uint64)
	for i, p := range payouts.Payouts {
		require.Equal(t, uint64(i+1), p.Round)
		require.Equal(t, uint64(i+2), p.Players)
		require.Equal(t, uint64(fee*(i+2)), p.Amount)
		won[p.Winner] += p.Amount
	}

	bals, err := Balances(cl, ps)
	require.NoError(t, err)
	var total uint64
	for i, p := range ps {
		entries := uint64(0)
		for round := 1; round <= rounds; round++ {
			if i <= round {
				entries++
			}
		}
		require.Equal(t, funds-fee*entries+won[p.Account], bals[p.Account])
		total += bals[p.Account]
	}
	require.Equal(t, uint64(funds*len(ps)), total)
}
