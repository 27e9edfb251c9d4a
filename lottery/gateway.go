package lottery

import (
	"golang.org/x/xerrors"
)

// RandomnessGateway keeps track of the single outstanding randomness
// request.
type RandomnessGateway struct {
	coord    Coordinator
	numWords uint32
	pending  uint64
	hasReq   bool
}

// NewRandomnessGateway returns a gateway that issues its requests to coord.
func NewRandomnessGateway(coord Coordinator, numWords uint32) *RandomnessGateway {
	if numWords == 0 {
		numWords = 1
	}
	return &RandomnessGateway{coord: coord, numWords: numWords}
}

// RequestRandomness asks the coordinator for randomness and records the
// returned id as pending.
func (g *RandomnessGateway) RequestRandomness() (uint64, error) {
	if g.hasReq {
		return 0, ErrAlreadyPending
	}
	id, err := g.coord.RequestRandomWords(g.numWords)
	if err != nil {
		return 0, xerrors.Errorf("couldn't request randomness: %w", err)
	}
	g.pending = id
	g.hasReq = true
	return id, nil
}

// Pending returns the outstanding request id, if any.
func (g *RandomnessGateway) Pending() (uint64, bool) {
	return g.pending, g.hasReq
}

// Match checks requestID against the pending request without consuming it.
func (g *RandomnessGateway) Match(requestID uint64) error {
	if !g.hasReq || requestID != g.pending {
		return ErrUnknownRequest
	}
	return nil
}

// Fulfill consumes the pending request if requestID matches it and hands the
// random value back. Anything else is rejected without side effects.
func (g *RandomnessGateway) Fulfill(requestID uint64, value uint64) (uint64, error) {
	if err := g.Match(requestID); err != nil {
		return 0, err
	}
	g.pending = 0
	g.hasReq = false
	return value, nil
}

func (g *RandomnessGateway) restore(requestID uint64) {
	g.pending = requestID
	g.hasReq = true
}
