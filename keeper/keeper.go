// Package keeper closes raffle rounds automatically: it polls the upkeep
// check of a target and performs the upkeep whenever it is needed.
package keeper

import (
	"context"
	"sync"
	"time"

	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

// Target is a raffle seen from the keeper.
type Target interface {
	CheckUpkeep() (bool, error)
	PerformUpkeep() error
}

type Keeper struct {
	target   Target
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(target Target, interval time.Duration) *Keeper {
	return &Keeper{target: target, interval: interval}
}

// Poll checks the target once and performs the upkeep if needed. It reports
// whether an upkeep was performed.
func (k *Keeper) Poll() (bool, error) {
	needed, err := k.target.CheckUpkeep()
	if err != nil {
		return false, xerrors.Errorf("couldn't check upkeep: %v", err)
	}
	if !needed {
		return false, nil
	}
	if err := k.target.PerformUpkeep(); err != nil {
		return false, xerrors.Errorf("couldn't perform upkeep: %w", err)
	}
	return true, nil
}

// Run polls the target every interval until ctx is done.
func (k *Keeper) Run(ctx context.Context) {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			done, err := k.Poll()
			if err != nil {
				log.Error(err)
			} else if done {
				log.Lvl2("keeper performed upkeep")
			}
		}
	}
}

// Start runs the keeper in the background. It is a no-op if it is already
// running.
func (k *Keeper) Start() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	k.cancel = cancel
	k.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		k.Run(ctx)
	}(k.done)
}

// Stop halts a started keeper and waits for its loop to return.
func (k *Keeper) Stop() {
	k.mu.Lock()
	cancel, done := k.cancel, k.done
	k.cancel, k.done = nil, nil
	k.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
