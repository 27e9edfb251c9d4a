package main

import (
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dedis/raffle/libraffle"
	"github.com/dedis/raffle/libtest"
	"go.dedis.ch/onet/v3"
	"go.dedis.ch/onet/v3/log"
	"go.dedis.ch/onet/v3/simul/monitor"
	"golang.org/x/xerrors"
)

// SimulationService measures rounds of the raffle service: concurrent
// entries, the upkeep and the fulfillment that pays the winner.
type SimulationService struct {
	onet.SimulationBFTree
	NumParticipants int
	EntranceFee     uint64
	// IntervalMS is the round interval in milliseconds.
	IntervalMS int
	NumWords   uint32
}

func init() {
	onet.SimulationRegister("Raffle", NewRaffleSimulation)
}

func NewRaffleSimulation(config string) (onet.Simulation, error) {
	ss := &SimulationService{}
	_, err := toml.Decode(config, ss)
	if err != nil {
		return nil, err
	}
	return ss, nil
}

func (s *SimulationService) Setup(dir string,
	hosts []string) (*onet.SimulationConfig, error) {
	sc := &onet.SimulationConfig{}
	s.CreateRoster(sc, hosts, 2000)
	err := s.CreateTree(sc)
	if err != nil {
		return nil, err
	}
	return sc, nil
}

func (s *SimulationService) Node(config *onet.SimulationConfig) error {
	index, _ := config.Roster.Search(config.Server.ServerIdentity.GetID())
	if index < 0 {
		log.Fatal("Didn't find this node in roster")
	}
	log.Lvl3("Initializing node-index", index)
	return s.SimulationBFTree.Node(config)
}

func (s *SimulationService) runRound(cl *libraffle.Client,
	ps []*libtest.Participant) error {
	interval := time.Duration(s.IntervalMS) * time.Millisecond
	start := time.Now()

	enterMonitor := monitor.NewTimeMeasure("enter")
	var wg sync.WaitGroup
	errs := make(chan error, len(ps))
	for _, p := range ps {
		wg.Add(1)
		go func(p *libtest.Participant) {
			defer wg.Done()
			// Each participant has its own nonce sequence.
			if _, err := cl.Enter(p.Pair, s.EntranceFee); err != nil {
				errs <- xerrors.Errorf("entering %s: %v", p.Account, err)
			}
		}(p)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		log.Error(err)
		return err
	}
	enterMonitor.Record()

	if wait := interval - time.Since(start); wait > 0 {
		time.Sleep(wait)
	}
	upkeepMonitor := monitor.NewTimeMeasure("upkeep")
	reply, err := cl.PerformUpkeep()
	if err != nil {
		log.Errorf("performing upkeep: %v", err)
		return err
	}
	upkeepMonitor.Record()

	fulfillMonitor := monitor.NewTimeMeasure("fulfill")
	_, err = cl.Fulfill(reply.RequestID)
	if err != nil {
		log.Errorf("fulfilling request %d: %v", reply.RequestID, err)
		return err
	}
	fulfillMonitor.Record()
	return nil
}

func (s *SimulationService) Run(config *onet.SimulationConfig) error {
	ps, err := libtest.GenerateParticipants(s.NumParticipants)
	if err != nil {
		return err
	}
	funds := s.EntranceFee * uint64(s.Rounds)
	cl, _, err := libtest.SetupRaffle(config.Roster, &libraffle.InitUnitRequest{
		EntranceFee: s.EntranceFee,
		Interval:    time.Duration(s.IntervalMS) * time.Millisecond,
		NumWords:    s.NumWords,
	}, ps, funds)
	if err != nil {
		log.Error(err)
		return err
	}
	defer cl.Close()
	// onet does not stop services on shutdown.
	if srv, ok := config.GetService(libraffle.ServiceName).(*libraffle.Service); ok {
		defer srv.Stop()
	}
	for round := 0; round < s.Rounds; round++ {
		log.Lvl1("Starting round", round)
		roundMonitor := monitor.NewTimeMeasure("round")
		if err := s.runRound(cl, ps); err != nil {
			return err
		}
		roundMonitor.Record()
	}
	return nil
}
