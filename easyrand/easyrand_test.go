package easyrand

import (
	"sync"
	"testing"
	"time"

	"github.com/dedis/raffle/easyrand/base"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

func TestMain(m *testing.M) {
	log.MainTest(m)
}

type consumer struct {
	sync.Mutex
	got map[uint64][]uint64
	err error
}

func newConsumer() *consumer {
	return &consumer{got: make(map[uint64][]uint64)}
}

func (c *consumer) FulfillRandomWords(id uint64, words []uint64) error {
	c.Lock()
	defer c.Unlock()
	if c.err != nil {
		return c.err
	}
	c.got[id] = words
	return nil
}

func (c *consumer) count() int {
	c.Lock()
	defer c.Unlock()
	return len(c.got)
}

func TestCoordinator_Subscription(t *testing.T) {
	coord := NewCoordinator(Config{RequestPrice: 10})
	cs := newConsumer()
	_, err := coord.RequestRandomWords(1, cs, 1)
	require.Equal(t, ErrInvalidSubscription, err)

	sub := coord.CreateSubscription()
	require.Equal(t, uint64(1), sub)
	_, err = coord.RequestRandomWords(sub, cs, 1)
	require.Equal(t, ErrInvalidConsumer, err)

	require.NoError(t, coord.AddConsumer(sub, cs))
	require.NoError(t, coord.AddConsumer(sub, cs))
	_, n, err := coord.GetSubscription(sub)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = coord.RequestRandomWords(sub, cs, 0)
	require.Equal(t, ErrInvalidNumWords, err)
	_, err = coord.RequestRandomWords(sub, cs, MaxNumWords+1)
	require.Equal(t, ErrInvalidNumWords, err)

	id, err := coord.RequestRandomWords(sub, cs, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)

	// Unfunded subscriptions cannot be fulfilled.
	_, err = coord.FulfillRandomWords(id)
	require.Equal(t, ErrInsufficientBalance, err)
	require.NoError(t, coord.FundSubscription(sub, 15))
	_, err = coord.FulfillRandomWords(id)
	require.NoError(t, err)
	bal, _, err := coord.GetSubscription(sub)
	require.NoError(t, err)
	require.Equal(t, uint64(5), bal)
	require.Len(t, cs.got[id], 2)

	require.NoError(t, coord.RemoveConsumer(sub, cs))
	require.Equal(t, ErrInvalidConsumer, coord.RemoveConsumer(sub, cs))
	require.Equal(t, ErrInvalidSubscription, coord.FundSubscription(9, 1))
}

func TestCoordinator_NonexistentRequest(t *testing.T) {
	coord := NewCoordinator(Config{})
	_, err := coord.FulfillRandomWords(0)
	require.Equal(t, ErrNonexistentRequest, err)
	_, err = coord.FulfillRandomWords(1)
	require.Equal(t, ErrNonexistentRequest, err)

	sub := coord.CreateSubscription()
	cs := newConsumer()
	require.NoError(t, coord.AddConsumer(sub, cs))
	id, err := coord.RequestRandomWords(sub, cs, 1)
	require.NoError(t, err)
	_, err = coord.FulfillRandomWords(id)
	require.NoError(t, err)
	_, err = coord.FulfillRandomWords(id)
	require.Equal(t, ErrNonexistentRequest, err)
}

func TestCoordinator_Chain(t *testing.T) {
	coord := NewCoordinator(Config{})
	sub := coord.CreateSubscription()
	cs := newConsumer()
	require.NoError(t, coord.AddConsumer(sub, cs))

	var prev *base.RandomnessOutput
	digests := map[string]bool{}
	for i := 0; i < 4; i++ {
		id, err := coord.RequestRandomWords(sub, cs, 1)
		require.NoError(t, err)
		out, err := coord.FulfillRandomWords(id)
		require.NoError(t, err)
		require.Equal(t, uint64(i), out.Round)
		require.NoError(t, out.Verify(Suite(), coord.Public()))
		require.Equal(t, out.Words(1), cs.got[id])
		digest, err := out.Hash()
		require.NoError(t, err)
		require.Len(t, digest, 32)
		require.False(t, digests[string(digest)])
		digests[string(digest)] = true
		if prev == nil {
			require.Equal(t, []byte(base.GenesisMsg), out.Prev)
		} else {
			require.Equal(t, prev.Value, out.Prev[8:])
		}
		prev = out
	}

	// Tampered outputs do not verify.
	forged := *prev
	forged.Value = append([]byte{}, prev.Value...)
	forged.Value[0] ^= 0xff
	require.Error(t, forged.Verify(Suite(), coord.Public()))
	fd, err := forged.Hash()
	require.NoError(t, err)
	require.False(t, digests[string(fd)])
	other := NewCoordinator(Config{})
	require.Error(t, prev.Verify(Suite(), other.Public()))
}

func TestCoordinator_ConsumerRejects(t *testing.T) {
	coord := NewCoordinator(Config{})
	sub := coord.CreateSubscription()
	cs := newConsumer()
	cs.err = xerrors.New("nope")
	require.NoError(t, coord.AddConsumer(sub, cs))
	id, err := coord.RequestRandomWords(sub, cs, 1)
	require.NoError(t, err)
	_, err = coord.FulfillRandomWords(id)
	require.True(t, xerrors.Is(err, cs.err))
	_, err = coord.FulfillRandomWords(id)
	require.Equal(t, ErrNonexistentRequest, err)
}

func TestCoordinator_Start(t *testing.T) {
	coord := NewCoordinator(Config{})
	sub := coord.CreateSubscription()
	cs := newConsumer()
	require.NoError(t, coord.AddConsumer(sub, cs))
	coord.Start(10 * time.Millisecond)
	for i := 0; i < 3; i++ {
		_, err := coord.RequestRandomWords(sub, cs, 1)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return cs.count() == 3 },
		time.Second, 10*time.Millisecond)
	coord.Stop()

	// Requests made after Stop stay pending.
	id, err := coord.RequestRandomWords(sub, cs, 1)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 3, cs.count())
	_, err = coord.FulfillRandomWords(id)
	require.NoError(t, err)
}

func TestRequester(t *testing.T) {
	coord := NewCoordinator(Config{})
	sub := coord.CreateSubscription()
	req := &Requester{Coord: coord, SubID: sub}
	_, err := req.RequestRandomWords(1)
	require.Equal(t, ErrInvalidConsumer, err)
	cs := newConsumer()
	req.Consumer = cs
	require.NoError(t, coord.AddConsumer(sub, cs))
	id, err := req.RequestRandomWords(1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)
}

func TestCoordinator_Reissue(t *testing.T) {
	coord := NewCoordinator(Config{})
	sub := coord.CreateSubscription()
	cs := newConsumer()
	require.Equal(t, ErrInvalidConsumer, coord.Reissue(sub, cs, 7, 1))
	require.NoError(t, coord.AddConsumer(sub, cs))
	require.Equal(t, ErrNonexistentRequest, coord.Reissue(sub, cs, 0, 1))
	require.NoError(t, coord.Reissue(sub, cs, 7, 2))
	require.Error(t, coord.Reissue(sub, cs, 7, 2))

	id, err := coord.RequestRandomWords(sub, cs, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(8), id)

	_, err = coord.FulfillRandomWords(7)
	require.NoError(t, err)
	require.Len(t, cs.got[7], 2)
}
