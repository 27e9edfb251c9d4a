package base

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing"
	"go.dedis.ch/kyber/v3/sign/bls"
	"golang.org/x/xerrors"
)

const GenesisMsg string = "genesis_msg"

// RandomnessOutput is the proof delivered with every fulfillment.
type RandomnessOutput struct {
	Public kyber.Point
	Round  uint64
	Prev   []byte
	// Value is the BLS signature on Prev. Use the hash of it!
	Value []byte
}

// NextMsg returns the message signed in the round following blocks.
func NextMsg(blocks [][]byte) []byte {
	round := len(blocks)
	if round == 0 {
		return []byte(GenesisMsg)
	}
	rBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(rBuf, uint64(round))
	return append(rBuf, blocks[round-1]...)
}

// Hash is the digest identifying the output: it binds the oracle key, the
// round and the chained signature.
func (out *RandomnessOutput) Hash() ([]byte, error) {
	h := sha256.New()
	buf, err := out.Public.MarshalBinary()
	if err != nil {
		return nil, err
	}
	h.Write(buf)
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, out.Round)
	h.Write(b)
	h.Write(out.Prev)
	h.Write(out.Value)
	return h.Sum(nil), nil
}

// Verify checks that Prev is the message of Round and that Value is a valid
// signature of it under Public.
func (out *RandomnessOutput) Verify(suite pairing.Suite, public kyber.Point) error {
	if public != nil && !public.Equal(out.Public) {
		return xerrors.New("randomness signed by an unknown key")
	}
	if out.Round == 0 {
		if !bytes.Equal(out.Prev, []byte(GenesisMsg)) {
			return xerrors.New("invalid genesis message")
		}
	} else {
		if len(out.Prev) < 8 ||
			binary.LittleEndian.Uint64(out.Prev[:8]) != out.Round {
			return xerrors.New("invalid round value")
		}
	}
	err := bls.Verify(suite, out.Public, out.Prev, out.Value)
	if err != nil {
		return xerrors.Errorf("couldn't verify randomness: %v", err)
	}
	return nil
}

// Words derives n random words from the signature.
func (out *RandomnessOutput) Words(n uint32) []uint64 {
	words := make([]uint64, n)
	for i := uint32(0); i < n; i++ {
		h := sha256.New()
		h.Write(out.Value)
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, i)
		h.Write(b)
		words[i] = binary.LittleEndian.Uint64(h.Sum(nil))
	}
	return words
}
