package easyrand

import (
	"golang.org/x/xerrors"
)

// MaxNumWords bounds the words delivered by one fulfillment.
const MaxNumWords = 500

var (
	ErrNonexistentRequest  = xerrors.New("nonexistent request")
	ErrInvalidSubscription = xerrors.New("invalid subscription")
	ErrInvalidConsumer     = xerrors.New("invalid consumer")
	ErrInsufficientBalance = xerrors.New("insufficient balance")
	ErrInvalidNumWords     = xerrors.New("invalid number of words")
)

// Consumer receives the randomness of its requests.
type Consumer interface {
	FulfillRandomWords(requestID uint64, words []uint64) error
}

// Subscription pays for the requests of its consumers.
type Subscription struct {
	ID        uint64
	Balance   uint64
	consumers []Consumer
}

// Config parametrises a Coordinator.
type Config struct {
	// RequestPrice is charged to the subscription on every fulfillment.
	RequestPrice uint64
}

type request struct {
	subID    uint64
	consumer Consumer
	numWords uint32
}
