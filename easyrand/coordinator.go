package easyrand

/*
The coordinator answers randomness requests with a chain of BLS signatures:
the message of round r is LE(r) || signature of round r-1, the first one is
the genesis message. Consumers use the words derived from the signature.
*/

import (
	"sync"
	"time"

	"github.com/dedis/raffle/easyrand/base"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing"
	"go.dedis.ch/kyber/v3/sign/bls"
	"go.dedis.ch/kyber/v3/util/random"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

var suite = pairing.NewSuiteBn256()

// Suite returns the pairing suite of the coordinator signatures.
func Suite() pairing.Suite {
	return suite
}

// Coordinator issues request ids and fulfills them with verifiable
// randomness.
type Coordinator struct {
	sync.Mutex
	cfg    Config
	secret kyber.Scalar
	public kyber.Point

	nextSub  uint64
	nextReq  uint64
	subs     map[uint64]*Subscription
	requests map[uint64]*request
	blocks   [][]byte

	delay   time.Duration
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewCoordinator creates a coordinator with a fresh key pair.
func NewCoordinator(cfg Config) *Coordinator {
	secret, public := bls.NewKeyPair(suite, random.New())
	return &Coordinator{
		cfg:      cfg,
		secret:   secret,
		public:   public,
		subs:     make(map[uint64]*Subscription),
		requests: make(map[uint64]*request),
	}
}

// Public returns the key that verifies the randomness.
func (c *Coordinator) Public() kyber.Point {
	return c.public
}

func (c *Coordinator) CreateSubscription() uint64 {
	c.Lock()
	defer c.Unlock()
	c.nextSub++
	c.subs[c.nextSub] = &Subscription{ID: c.nextSub}
	return c.nextSub
}

func (c *Coordinator) FundSubscription(subID uint64, amount uint64) error {
	c.Lock()
	defer c.Unlock()
	sub, ok := c.subs[subID]
	if !ok {
		return ErrInvalidSubscription
	}
	sub.Balance += amount
	return nil
}

// GetSubscription returns the balance of a subscription and its number of
// consumers.
func (c *Coordinator) GetSubscription(subID uint64) (uint64, int, error) {
	c.Lock()
	defer c.Unlock()
	sub, ok := c.subs[subID]
	if !ok {
		return 0, 0, ErrInvalidSubscription
	}
	return sub.Balance, len(sub.consumers), nil
}

func (c *Coordinator) AddConsumer(subID uint64, consumer Consumer) error {
	c.Lock()
	defer c.Unlock()
	sub, ok := c.subs[subID]
	if !ok {
		return ErrInvalidSubscription
	}
	if indexOf(sub.consumers, consumer) < 0 {
		sub.consumers = append(sub.consumers, consumer)
	}
	return nil
}

func (c *Coordinator) RemoveConsumer(subID uint64, consumer Consumer) error {
	c.Lock()
	defer c.Unlock()
	sub, ok := c.subs[subID]
	if !ok {
		return ErrInvalidSubscription
	}
	idx := indexOf(sub.consumers, consumer)
	if idx < 0 {
		return ErrInvalidConsumer
	}
	sub.consumers = append(sub.consumers[:idx], sub.consumers[idx+1:]...)
	return nil
}

func indexOf(consumers []Consumer, consumer Consumer) int {
	for i, cs := range consumers {
		if cs == consumer {
			return i
		}
	}
	return -1
}

// RequestRandomWords registers a request on behalf of consumer and returns
// its id. Ids start at 1. When the coordinator is running the request is
// fulfilled in the background.
func (c *Coordinator) RequestRandomWords(subID uint64, consumer Consumer,
	numWords uint32) (uint64, error) {
	c.Lock()
	defer c.Unlock()
	sub, ok := c.subs[subID]
	if !ok {
		return 0, ErrInvalidSubscription
	}
	if indexOf(sub.consumers, consumer) < 0 {
		return 0, ErrInvalidConsumer
	}
	if numWords == 0 || numWords > MaxNumWords {
		return 0, ErrInvalidNumWords
	}
	c.nextReq++
	id := c.nextReq
	c.requests[id] = &request{subID: subID, consumer: consumer,
		numWords: numWords}
	log.Lvlf3("request %d from subscription %d for %d words", id, subID,
		numWords)
	if c.running {
		c.wg.Add(1)
		go c.deliver(id, c.delay, c.stop)
	}
	return id, nil
}

// Reissue registers again a request that was lost when the coordinator
// restarted. Later requests get larger ids.
func (c *Coordinator) Reissue(subID uint64, consumer Consumer, requestID uint64,
	numWords uint32) error {
	c.Lock()
	defer c.Unlock()
	sub, ok := c.subs[subID]
	if !ok {
		return ErrInvalidSubscription
	}
	if indexOf(sub.consumers, consumer) < 0 {
		return ErrInvalidConsumer
	}
	if requestID == 0 {
		return ErrNonexistentRequest
	}
	if numWords == 0 || numWords > MaxNumWords {
		return ErrInvalidNumWords
	}
	if _, ok := c.requests[requestID]; ok {
		return xerrors.Errorf("request %d is outstanding", requestID)
	}
	c.requests[requestID] = &request{subID: subID, consumer: consumer,
		numWords: numWords}
	if requestID > c.nextReq {
		c.nextReq = requestID
	}
	if c.running {
		c.wg.Add(1)
		go c.deliver(requestID, c.delay, c.stop)
	}
	return nil
}

// FulfillRandomWords generates the randomness of request requestID and hands
// it to the consumer that asked for it. The request is consumed even if the
// consumer rejects the words.
func (c *Coordinator) FulfillRandomWords(requestID uint64) (*base.RandomnessOutput, error) {
	c.Lock()
	req, ok := c.requests[requestID]
	if !ok {
		c.Unlock()
		return nil, ErrNonexistentRequest
	}
	sub := c.subs[req.subID]
	if sub.Balance < c.cfg.RequestPrice {
		c.Unlock()
		return nil, ErrInsufficientBalance
	}
	out, err := c.sign()
	if err != nil {
		c.Unlock()
		return nil, err
	}
	sub.Balance -= c.cfg.RequestPrice
	delete(c.requests, requestID)
	c.Unlock()

	// The consumer takes its own lock and may call RequestRandomWords.
	words := out.Words(req.numWords)
	if err := req.consumer.FulfillRandomWords(requestID, words); err != nil {
		return out, xerrors.Errorf("consumer rejected request %d: %w",
			requestID, err)
	}
	return out, nil
}

func (c *Coordinator) sign() (*base.RandomnessOutput, error) {
	msg := base.NextMsg(c.blocks)
	sig, err := bls.Sign(suite, c.secret, msg)
	if err != nil {
		return nil, xerrors.Errorf("couldn't sign round message: %v", err)
	}
	out := &base.RandomnessOutput{
		Public: c.public,
		Round:  uint64(len(c.blocks)),
		Prev:   msg,
		Value:  sig,
	}
	if err := out.Verify(suite, c.public); err != nil {
		return nil, err
	}
	c.blocks = append(c.blocks, sig)
	return out, nil
}

// Start fulfills every new request after delay.
func (c *Coordinator) Start(delay time.Duration) {
	c.Lock()
	defer c.Unlock()
	if c.running {
		return
	}
	c.delay = delay
	c.stop = make(chan struct{})
	c.running = true
}

// Stop cancels the deliveries that have not happened yet and waits for the
// others.
func (c *Coordinator) Stop() {
	c.Lock()
	if !c.running {
		c.Unlock()
		return
	}
	c.running = false
	close(c.stop)
	c.Unlock()
	c.wg.Wait()
}

func (c *Coordinator) deliver(id uint64, delay time.Duration, stop chan struct{}) {
	defer c.wg.Done()
	select {
	case <-time.After(delay):
	case <-stop:
		return
	}
	if _, err := c.FulfillRandomWords(id); err != nil {
		log.Error("couldn't fulfill request", id, ":", err)
	}
}

// Requester binds a coordinator to one subscription and consumer. It is
// what a raffle sees as its coordinator.
type Requester struct {
	Coord    *Coordinator
	SubID    uint64
	Consumer Consumer
}

func (r *Requester) RequestRandomWords(numWords uint32) (uint64, error) {
	if r.Consumer == nil {
		return 0, ErrInvalidConsumer
	}
	return r.Coord.RequestRandomWords(r.SubID, r.Consumer, numWords)
}
