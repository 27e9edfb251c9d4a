package libraffle

import (
	"net/http"
	"sync"

	"github.com/dedis/raffle/easyrand"
	"github.com/dedis/raffle/httpapi"
	"github.com/dedis/raffle/keeper"
	"github.com/dedis/raffle/lottery"
	"github.com/dedis/raffle/state"
	"github.com/dedis/raffle/utils"
	"github.com/dedis/raffle/vault"
	"go.dedis.ch/onet/v3"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

var ServiceName = "RaffleService"
var raffleID onet.ServiceID

func init() {
	var err error
	raffleID, err = onet.RegisterNewService(ServiceName, newService)
	log.ErrFatal(err)
}

// Service runs one raffle on the node that receives InitUnit, together with
// its randomness oracle, its vault and its store.
type Service struct {
	*onet.ServiceProcessor

	mu     sync.Mutex
	raffle *lottery.Raffle
	coord  *easyrand.Coordinator
	vault  *vault.Vault
	store  *state.Store
	keeper *keeper.Keeper
	server *http.Server

	// tickets serialises Enter so that nonces are checked and used
	// atomically.
	tickets sync.Mutex
}

type raffleTarget struct {
	r *lottery.Raffle
}

func (t raffleTarget) CheckUpkeep() (bool, error) {
	return t.r.CheckUpkeep(), nil
}

func (t raffleTarget) PerformUpkeep() error {
	_, err := t.r.PerformUpkeep()
	return err
}

func (s *Service) InitUnit(req *InitUnitRequest) (*InitUnitReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.raffle != nil {
		return nil, xerrors.New("unit is already initialized")
	}
	cfg := lottery.Config{
		EntranceFee: req.EntranceFee,
		Interval:    req.Interval,
		NumWords:    req.NumWords,
	}
	if cfg.NumWords == 0 {
		cfg.NumWords = 1
	}
	if cfg.EntranceFee == 0 || cfg.Interval <= 0 {
		return nil, xerrors.New("entrance fee and interval must be positive")
	}

	db, bucket := s.GetAdditionalBucket([]byte("state"))
	store, err := state.New(db, bucket)
	if err != nil {
		return nil, err
	}
	db, bucket = s.GetAdditionalBucket([]byte("vault"))
	v, err := vault.New(db, bucket)
	if err != nil {
		return nil, err
	}
	rec, err := store.LoadRaffle()
	if err != nil {
		log.Errorf("Cannot load the raffle: %v", err)
		return nil, err
	}

	coord := easyrand.NewCoordinator(easyrand.Config{RequestPrice: req.RequestPrice})
	sub := coord.CreateSubscription()
	if err := coord.FundSubscription(sub, req.SubscriptionFunds); err != nil {
		return nil, err
	}
	requester := &easyrand.Requester{Coord: coord, SubID: sub}
	opts := []lottery.Option{lottery.WithCollector(v),
		lottery.WithJournal(store), lottery.WithListener(store.Listener())}

	var r *lottery.Raffle
	if rec != nil {
		cfg = rec.Header.Config()
		r, err = lottery.Restore(cfg, &rec.Snapshot, requester, v, opts...)
		if err != nil {
			return nil, xerrors.Errorf("couldn't restore raffle: %v", err)
		}
		log.Lvlf2("%s: restored raffle at round %d", s.ServerIdentity(), r.Round())
	} else {
		r = lottery.New(cfg, requester, v, opts...)
		if err := store.SaveRaffle(state.NewHeader(cfg), r.Snapshot()); err != nil {
			return nil, xerrors.Errorf("couldn't store raffle: %v", err)
		}
	}
	requester.Consumer = r
	if err := coord.AddConsumer(sub, r); err != nil {
		return nil, err
	}
	if req.FulfillDelay > 0 {
		coord.Start(req.FulfillDelay)
	}
	// A request that was outstanding before a restart is lost with the old
	// oracle.
	if id, pending := r.PendingRequest(); pending && r.PendingPayout() == nil {
		if err := coord.Reissue(sub, r, id, cfg.NumWords); err != nil {
			coord.Stop()
			return nil, xerrors.Errorf("couldn't reissue request %d: %v", id, err)
		}
	}

	s.raffle, s.coord, s.vault, s.store = r, coord, v, store
	if req.KeeperInterval > 0 {
		s.keeper = keeper.New(raffleTarget{r}, req.KeeperInterval)
		s.keeper.Start()
	}
	if req.HTTPAddr != "" {
		s.server = &http.Server{Addr: req.HTTPAddr, Handler: httpapi.New(r, store)}
		go func(srv *http.Server) {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("operator API stopped: %v", err)
			}
		}(s.server)
	}
	oracle, err := coord.Public().MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &InitUnitReply{Oracle: oracle, Restored: rec != nil,
		Round: r.Round()}, nil
}

// Stop halts the keeper, the oracle and the operator API. The raffle state
// stays in the store. onet has no shutdown hook for services, so whoever
// runs the node must call Stop before closing the server and its database;
// otherwise the background deliveries keep writing to a closed store.
func (s *Service) Stop() {
	s.mu.Lock()
	k, coord, srv := s.keeper, s.coord, s.server
	s.keeper, s.server = nil, nil
	s.mu.Unlock()
	if k != nil {
		k.Stop()
	}
	if coord != nil {
		coord.Stop()
	}
	if srv != nil {
		if err := srv.Close(); err != nil {
			log.Error(err)
		}
	}
}

func (s *Service) unit() (*lottery.Raffle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.raffle == nil {
		return nil, xerrors.New("unit is not initialized")
	}
	return s.raffle, nil
}

func (s *Service) Deposit(req *DepositRequest) (*DepositReply, error) {
	if _, err := s.unit(); err != nil {
		return nil, err
	}
	if req.Account == vault.PoolAccount {
		return nil, xerrors.New("cannot deposit into the pool")
	}
	if err := s.vault.Credit(req.Account, req.Amount); err != nil {
		return nil, err
	}
	bal, err := s.vault.Balance(req.Account)
	if err != nil {
		return nil, err
	}
	return &DepositReply{Balance: bal}, nil
}

func (s *Service) GetAccount(req *GetAccountRequest) (*GetAccountReply, error) {
	if _, err := s.unit(); err != nil {
		return nil, err
	}
	acct, err := s.vault.Get(req.Account)
	if err != nil {
		return nil, err
	}
	return &GetAccountReply{Balance: acct.Balance, Counter: acct.Counter}, nil
}

// Enter verifies the ticket, enters its owner with the ticket amount and
// consumes the nonce. A rejected entry leaves the nonce unused.
func (s *Service) Enter(req *EnterRequest) (*EnterReply, error) {
	r, err := s.unit()
	if err != nil {
		return nil, err
	}
	if req.Public == nil {
		return nil, xerrors.New("missing public key")
	}
	if err := utils.VerifyTicket(req.Public, req.Amount, req.Nonce,
		req.Signature); err != nil {
		return nil, err
	}
	id, err := utils.AccountID(req.Public)
	if err != nil {
		return nil, err
	}

	s.tickets.Lock()
	defer s.tickets.Unlock()
	// The nonce is reserved before entering so that an entry is never
	// recorded under a nonce that stays usable.
	if err := s.vault.UseCounter(id, req.Nonce); err != nil {
		return nil, err
	}
	if err := r.Enter(id, req.Amount); err != nil {
		if rerr := s.vault.ReleaseCounter(id, req.Nonce); rerr != nil {
			log.Errorf("couldn't release nonce of %s: %v", id, rerr)
		}
		return nil, err
	}
	return &EnterReply{Round: r.Round(), Players: uint64(r.ParticipantCount())}, nil
}

func (s *Service) CheckUpkeep(req *CheckUpkeepRequest) (*CheckUpkeepReply, error) {
	r, err := s.unit()
	if err != nil {
		return nil, err
	}
	st := r.UpkeepStatus()
	return &CheckUpkeepReply{
		Needed:     st.Needed(),
		IsOpen:     st.IsOpen,
		TimePassed: st.TimePassed,
		HasPlayers: st.HasPlayers,
		HasBalance: st.HasBalance,
	}, nil
}

func (s *Service) PerformUpkeep(req *PerformUpkeepRequest) (*PerformUpkeepReply, error) {
	r, err := s.unit()
	if err != nil {
		return nil, err
	}
	id, err := r.PerformUpkeep()
	if err != nil {
		return nil, err
	}
	return &PerformUpkeepReply{RequestID: id}, nil
}

// Fulfill makes the oracle answer a request now.
func (s *Service) Fulfill(req *FulfillRequest) (*FulfillReply, error) {
	if _, err := s.unit(); err != nil {
		return nil, err
	}
	out, err := s.coord.FulfillRandomWords(req.RequestID)
	if err != nil {
		return nil, err
	}
	digest, err := out.Hash()
	if err != nil {
		return nil, xerrors.Errorf("hashing randomness output: %v", err)
	}
	return &FulfillReply{Round: out.Round, Prev: out.Prev, Value: out.Value,
		Digest: digest}, nil
}

func (s *Service) GetState(req *GetStateRequest) (*GetStateReply, error) {
	r, err := s.unit()
	if err != nil {
		return nil, err
	}
	snap := r.Snapshot()
	return &GetStateReply{
		State:         snap.State,
		Round:         snap.Round,
		RoundID:       snap.RoundID,
		EntranceFee:   r.EntranceFee(),
		Interval:      r.Interval(),
		Players:       uint64(len(snap.Participants)),
		Balance:       snap.Balance,
		LastTimestamp: snap.LastStart,
		RecentWinner:  snap.RecentWinner,
		PendingID:     snap.PendingID,
		Stuck:         snap.Stuck,
	}, nil
}

func (s *Service) GetPlayer(req *GetPlayerRequest) (*GetPlayerReply, error) {
	r, err := s.unit()
	if err != nil {
		return nil, err
	}
	if req.Index >= uint64(r.ParticipantCount()) {
		return nil, lottery.ErrIndexOutOfRange
	}
	p, err := r.ParticipantAt(int(req.Index))
	if err != nil {
		return nil, err
	}
	return &GetPlayerReply{Player: p}, nil
}

func (s *Service) GetPayouts(req *GetPayoutsRequest) (*GetPayoutsReply, error) {
	if _, err := s.unit(); err != nil {
		return nil, err
	}
	payouts, err := s.store.Payouts()
	if err != nil {
		return nil, err
	}
	return &GetPayoutsReply{Payouts: payouts}, nil
}

func (s *Service) RetryPayout(req *RetryPayoutRequest) (*RetryPayoutReply, error) {
	r, err := s.unit()
	if err != nil {
		return nil, err
	}
	p, err := r.RetryPayout()
	if err != nil {
		return nil, err
	}
	return &RetryPayoutReply{Payout: p}, nil
}

func newService(c *onet.Context) (onet.Service, error) {
	s := &Service{
		ServiceProcessor: onet.NewServiceProcessor(c),
	}
	err := s.RegisterHandlers(s.InitUnit, s.Deposit, s.GetAccount, s.Enter,
		s.CheckUpkeep, s.PerformUpkeep, s.Fulfill, s.GetState, s.GetPlayer,
		s.GetPayouts, s.RetryPayout)
	if err != nil {
		log.Errorf("Cannot register handlers: %v", err)
		return nil, err
	}
	return s, nil
}
