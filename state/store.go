// Package state persists a raffle and its payout history in bbolt. A Store
// is a lottery.Journal: the raffle hands it a snapshot after every committed
// operation.
package state

import (
	"encoding/binary"
	"time"

	"github.com/dedis/raffle/lottery"
	"go.dedis.ch/onet/v3/log"
	"go.dedis.ch/protobuf"
	"go.etcd.io/bbolt"
	"golang.org/x/xerrors"
)

var raffleKey = []byte("raffle")
var payoutBucket = []byte("payouts")

// Header holds the immutable configuration of a stored raffle.
type Header struct {
	EntranceFee uint64
	// Interval is in nanoseconds.
	Interval int64
	NumWords uint32
}

// Record is the stored form of a raffle.
type Record struct {
	Header   Header
	Snapshot lottery.Snapshot
}

// Config returns the raffle configuration of the header.
func (h Header) Config() lottery.Config {
	return lottery.Config{
		EntranceFee: h.EntranceFee,
		Interval:    time.Duration(h.Interval),
		NumWords:    h.NumWords,
	}
}

// NewHeader converts cfg.
func NewHeader(cfg lottery.Config) Header {
	return Header{
		EntranceFee: cfg.EntranceFee,
		Interval:    int64(cfg.Interval),
		NumWords:    cfg.NumWords,
	}
}

type Store struct {
	db     *bbolt.DB
	bucket []byte
	header Header
}

// New uses bucket of db, creating it and its payout bucket if needed.
func New(db *bbolt.DB, bucket []byte) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucket)
		if err != nil {
			return err
		}
		_, err = b.CreateBucketIfNotExists(payoutBucket)
		return err
	})
	if err != nil {
		return nil, xerrors.Errorf("couldn't create bucket: %v", err)
	}
	return &Store{db: db, bucket: bucket}, nil
}

// SaveRaffle writes the header and the snapshot of a raffle. The header is
// kept for the following calls to Commit.
func (s *Store) SaveRaffle(h Header, snap *lottery.Snapshot) error {
	s.header = h
	buf, err := protobuf.Encode(&Record{Header: h, Snapshot: *snap})
	if err != nil {
		return xerrors.Errorf("couldn't encode raffle: %v", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Put(raffleKey, buf)
	})
}

// LoadRaffle returns the stored raffle, or nil if there is none. The header
// is kept for the following calls to Commit.
func (s *Store) LoadRaffle() (*Record, error) {
	var buf []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(s.bucket).Get(raffleKey)
		if v != nil {
			buf = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if buf == nil {
		return nil, nil
	}
	rec := &Record{}
	if err := protobuf.Decode(buf, rec); err != nil {
		return nil, xerrors.Errorf("couldn't decode raffle: %v", err)
	}
	s.header = rec.Header
	return rec, nil
}

// Commit implements lottery.Journal. A failed write cannot be undone in the
// raffle, so it is only logged.
func (s *Store) Commit(snap *lottery.Snapshot) {
	if err := s.SaveRaffle(s.header, snap); err != nil {
		log.Errorf("couldn't persist round %d: %v", snap.Round, err)
	}
}

func roundKey(round uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, round)
	return key
}

// AddPayout appends p to the payout history.
func (s *Store) AddPayout(p *lottery.Payout) error {
	buf, err := protobuf.Encode(p)
	if err != nil {
		return xerrors.Errorf("couldn't encode payout: %v", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Bucket(payoutBucket).Put(roundKey(p.Round), buf)
	})
}

// Payouts returns the payout history ordered by round.
func (s *Store) Payouts() ([]*lottery.Payout, error) {
	var payouts []*lottery.Payout
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Bucket(payoutBucket).ForEach(func(k, v []byte) error {
			p := &lottery.Payout{}
			if err := protobuf.Decode(v, p); err != nil {
				return xerrors.Errorf("couldn't decode payout %d: %v",
					binary.BigEndian.Uint64(k), err)
			}
			payouts = append(payouts, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

// Listener records every WinnerPicked payout. Failures are logged.
func (s *Store) Listener() lottery.Listener {
	return func(ev lottery.Event) {
		if ev.Kind != lottery.WinnerPicked || ev.Payout == nil {
			return
		}
		if err := s.AddPayout(ev.Payout); err != nil {
			log.Errorf("couldn't record payout of round %d: %v", ev.Round, err)
		}
	}
}
