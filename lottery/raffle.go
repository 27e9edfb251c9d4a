package lottery

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

// Raffle is the round controller. It owns the round state and drives the
// ledger, the randomness gateway and the disbursement. Every exported method
// runs to completion under the raffle lock, so operations never interleave.
type Raffle struct {
	sync.Mutex
	cfg       Config
	clock     Clock
	ledger    *EntryLedger
	gateway   *RandomnessGateway
	disb      *Disbursement
	collector Collector
	journal   Journal
	listeners []Listener

	state        State
	round        uint64
	roundID      string
	lastStart    time.Time
	pendingID    uint64
	recentWinner string
	// stuck holds the resolved payout of a round whose payment failed.
	stuck *Payout
}

// Option configures a Raffle.
type Option func(*Raffle)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(r *Raffle) { r.clock = c }
}

// WithCollector makes Enter take custody of the entry amount before the
// ledger records it.
func WithCollector(c Collector) Option {
	return func(r *Raffle) { r.collector = c }
}

// WithJournal hands a snapshot to j after every committed operation.
func WithJournal(j Journal) Option {
	return func(r *Raffle) { r.journal = j }
}

// WithListener registers l before the raffle starts.
func WithListener(l Listener) Option {
	return func(r *Raffle) { r.listeners = append(r.listeners, l) }
}

// New returns an open raffle with no participants. The first round starts
// now.
func New(cfg Config, coord Coordinator, channel Transferer, opts ...Option) *Raffle {
	r := &Raffle{
		cfg:     cfg,
		clock:   SystemClock,
		ledger:  NewEntryLedger(cfg.EntranceFee),
		gateway: NewRandomnessGateway(coord, cfg.NumWords),
		disb:    NewDisbursement(channel),
		state:   Open,
		round:   1,
		roundID: uuid.New().String(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.lastStart = r.clock.Now()
	return r
}

// Restore rebuilds a raffle from a snapshot taken by Snapshot.
func Restore(cfg Config, snap *Snapshot, coord Coordinator, channel Transferer,
	opts ...Option) (*Raffle, error) {
	state := State(snap.State)
	if state != Open && state != Calculating {
		return nil, xerrors.Errorf("invalid raffle state: %d", snap.State)
	}
	if state == Open && snap.Stuck != nil {
		return nil, xerrors.New("open raffle with a pending payout")
	}
	r := New(cfg, coord, channel, opts...)
	r.state = state
	r.round = snap.Round
	r.roundID = snap.RoundID
	r.lastStart = time.Unix(0, snap.LastStart)
	r.recentWinner = snap.RecentWinner
	for _, p := range snap.Participants {
		r.ledger.participants = append(r.ledger.participants, p)
	}
	r.ledger.balance = snap.Balance
	if state == Calculating {
		r.pendingID = snap.PendingID
		if snap.Stuck != nil {
			p := *snap.Stuck
			r.stuck = &p
		} else {
			r.gateway.restore(snap.PendingID)
		}
	}
	return r, nil
}

// Subscribe registers a listener for raffle events.
func (r *Raffle) Subscribe(l Listener) {
	r.Lock()
	defer r.Unlock()
	r.listeners = append(r.listeners, l)
}

func (r *Raffle) commit() {
	if r.journal != nil {
		r.journal.Commit(r.snapshot())
	}
}

func (r *Raffle) emit(ev Event) {
	ev.Round = r.round
	ev.RoundID = r.roundID
	for _, l := range r.listeners {
		l(ev)
	}
}

// Enter adds participant to the current round. amount must cover the
// entrance fee and the round must be open.
func (r *Raffle) Enter(participant string, amount uint64) error {
	r.Lock()
	defer r.Unlock()
	if err := r.ledger.Check(r.state, amount); err != nil {
		return err
	}
	if r.collector != nil {
		if err := r.collector.Collect(participant, amount); err != nil {
			return xerrors.Errorf("couldn't collect entry: %w", err)
		}
	}
	if err := r.ledger.Enter(r.state, participant, amount); err != nil {
		return err
	}
	log.Lvlf3("%s entered round %d with %d", participant, r.round, amount)
	r.commit()
	r.emit(Event{Kind: Entered, Participant: participant, Amount: amount})
	return nil
}

func (r *Raffle) upkeepStatus() UpkeepStatus {
	return EvaluateUpkeep(r.clock.Now(), r.lastStart, r.cfg.Interval,
		r.state, r.ledger.ParticipantCount(), r.ledger.PoolBalance())
}

// CheckUpkeep reports whether the round can be closed now.
func (r *Raffle) CheckUpkeep() bool {
	r.Lock()
	defer r.Unlock()
	return r.upkeepStatus().Needed()
}

// UpkeepStatus returns every upkeep condition evaluated now.
func (r *Raffle) UpkeepStatus() UpkeepStatus {
	r.Lock()
	defer r.Unlock()
	return r.upkeepStatus()
}

// PerformUpkeep closes the round and requests randomness for it. It returns
// the id of the request.
func (r *Raffle) PerformUpkeep() (uint64, error) {
	r.Lock()
	defer r.Unlock()
	status := r.upkeepStatus()
	if !status.Needed() {
		return 0, &UpkeepError{Status: status}
	}
	id, err := r.gateway.RequestRandomness()
	if err != nil {
		return 0, err
	}
	r.state = Calculating
	r.pendingID = id
	r.commit()
	log.Lvlf2("round %d closing with %d players, request %d", r.round,
		status.Players, id)
	r.emit(Event{Kind: RoundClosing, RequestID: id})
	return id, nil
}

// Fulfill is the oracle callback. A requestID that does not match the
// outstanding request is rejected without side effects. Otherwise the winner
// at randomValue mod players is paid the whole pool and a new round starts.
func (r *Raffle) Fulfill(requestID uint64, randomValue uint64) (*Payout, error) {
	r.Lock()
	defer r.Unlock()
	if err := r.gateway.Match(requestID); err != nil {
		log.Lvlf2("rejected fulfillment for request %d", requestID)
		return nil, err
	}
	n := r.ledger.ParticipantCount()
	if n == 0 {
		return nil, xerrors.New("no participants in a closed round")
	}
	value, err := r.gateway.Fulfill(requestID, randomValue)
	if err != nil {
		return nil, err
	}
	idx := value % uint64(n)
	winner, err := r.ledger.ParticipantAt(int(idx))
	if err != nil {
		return nil, err
	}
	p := &Payout{
		Round:     r.round,
		RoundID:   r.roundID,
		RequestID: requestID,
		Winner:    winner,
		Index:     idx,
		Amount:    r.ledger.PoolBalance(),
		Players:   uint64(n),
	}
	return r.disburse(p)
}

// FulfillRandomWords adapts Fulfill to oracles that deliver several words.
// The first word picks the winner.
func (r *Raffle) FulfillRandomWords(requestID uint64, words []uint64) error {
	if len(words) == 0 {
		return xerrors.New("no random words")
	}
	_, err := r.Fulfill(requestID, words[0])
	return err
}

// RetryPayout pays the winner of a round whose payment failed. No new
// randomness is requested.
func (r *Raffle) RetryPayout() (*Payout, error) {
	r.Lock()
	defer r.Unlock()
	if r.stuck == nil {
		return nil, ErrNoPendingPayout
	}
	return r.disburse(r.stuck)
}

func (r *Raffle) disburse(p *Payout) (*Payout, error) {
	if err := r.disb.Pay(p.Winner, p.Amount); err != nil {
		r.stuck = p
		r.commit()
		log.Errorf("round %d stuck: %v", r.round, err)
		return nil, err
	}
	now := r.clock.Now()
	p.Time = now.Unix()
	r.ledger.Reset()
	r.lastStart = now
	r.state = Open
	r.pendingID = 0
	r.stuck = nil
	r.recentWinner = p.Winner
	log.Infof("round %d: %s won %d", p.Round, p.Winner, p.Amount)
	r.emit(Event{Kind: WinnerPicked, Winner: p.Winner, Amount: p.Amount,
		RequestID: p.RequestID, Payout: p})
	r.round++
	r.roundID = uuid.New().String()
	r.commit()
	return p, nil
}

func (r *Raffle) State() State {
	r.Lock()
	defer r.Unlock()
	return r.state
}

func (r *Raffle) PoolBalance() uint64 {
	r.Lock()
	defer r.Unlock()
	return r.ledger.PoolBalance()
}

func (r *Raffle) ParticipantCount() int {
	r.Lock()
	defer r.Unlock()
	return r.ledger.ParticipantCount()
}

func (r *Raffle) ParticipantAt(i int) (string, error) {
	r.Lock()
	defer r.Unlock()
	return r.ledger.ParticipantAt(i)
}

func (r *Raffle) EntranceFee() uint64 {
	return r.cfg.EntranceFee
}

func (r *Raffle) Interval() time.Duration {
	return r.cfg.Interval
}

// LastTimestamp returns the start of the current round.
func (r *Raffle) LastTimestamp() time.Time {
	r.Lock()
	defer r.Unlock()
	return r.lastStart
}

// RecentWinner returns the winner of the last completed round, or "".
func (r *Raffle) RecentWinner() string {
	r.Lock()
	defer r.Unlock()
	return r.recentWinner
}

// Round returns the number of the current round, starting at 1.
func (r *Raffle) Round() uint64 {
	r.Lock()
	defer r.Unlock()
	return r.round
}

// PendingRequest returns the request id of a closed round.
func (r *Raffle) PendingRequest() (uint64, bool) {
	r.Lock()
	defer r.Unlock()
	return r.pendingID, r.state == Calculating
}

// PendingPayout returns the payout of a stuck round, or nil.
func (r *Raffle) PendingPayout() *Payout {
	r.Lock()
	defer r.Unlock()
	if r.stuck == nil {
		return nil
	}
	p := *r.stuck
	return &p
}

// Snapshot copies the raffle state.
func (r *Raffle) Snapshot() *Snapshot {
	r.Lock()
	defer r.Unlock()
	return r.snapshot()
}

func (r *Raffle) snapshot() *Snapshot {
	snap := &Snapshot{
		State:        int(r.state),
		Round:        r.round,
		RoundID:      r.roundID,
		LastStart:    r.lastStart.UnixNano(),
		PendingID:    r.pendingID,
		Participants: r.ledger.Participants(),
		Balance:      r.ledger.PoolBalance(),
		RecentWinner: r.recentWinner,
	}
	if r.stuck != nil {
		p := *r.stuck
		snap.Stuck = &p
	}
	return snap
}
