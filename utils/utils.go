package utils

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"os"

	"go.dedis.ch/cothority/v3"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/sign/schnorr"
	"go.dedis.ch/kyber/v3/util/encoding"
	"go.dedis.ch/onet/v3"
	"go.dedis.ch/onet/v3/app"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

// AccountID is the name under which the vault and the raffle know the owner
// of pk: the hex encoding of the marshalled point.
func AccountID(pk kyber.Point) (string, error) {
	buf, err := pk.MarshalBinary()
	if err != nil {
		return "", xerrors.Errorf("couldn't marshal point: %v", err)
	}
	return hex.EncodeToString(buf), nil
}

// TicketMessage is the message signed by the owner of pk to enter a round
// with amount. nonce must follow the last nonce used by pk.
func TicketMessage(pk kyber.Point, amount uint64, nonce uint64) ([]byte, error) {
	buf, err := pk.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal point: %v", err)
	}
	num := make([]byte, 8)
	h := sha256.New()
	h.Write(buf)
	binary.LittleEndian.PutUint64(num, amount)
	h.Write(num)
	binary.LittleEndian.PutUint64(num, nonce)
	h.Write(num)
	return h.Sum(nil), nil
}

func SignTicket(priv kyber.Scalar, pk kyber.Point, amount, nonce uint64) ([]byte, error) {
	msg, err := TicketMessage(pk, amount, nonce)
	if err != nil {
		return nil, err
	}
	return schnorr.Sign(cothority.Suite, priv, msg)
}

func VerifyTicket(pk kyber.Point, amount, nonce uint64, sig []byte) error {
	msg, err := TicketMessage(pk, amount, nonce)
	if err != nil {
		return err
	}
	if err := schnorr.Verify(cothority.Suite, pk, msg, sig); err != nil {
		return xerrors.Errorf("invalid ticket signature: %v", err)
	}
	return nil
}

// StringToPoint decodes a hex point of the cothority suite.
func StringToPoint(s string) (kyber.Point, error) {
	return encoding.StringHexToPoint(cothority.Suite, s)
}

func ReadRoster(path string) (*onet.Roster, error) {
	file, err := os.Open(path)
	if err != nil {
		log.Errorf("ReadRoster error: %v", err)
		return nil, err
	}
	defer file.Close()

	group, err := app.ReadGroupDescToml(file)
	if err != nil {
		log.Errorf("ReadRoster error: %v", err)
		return nil, err
	}
	if group.Roster == nil || len(group.Roster.List) == 0 {
		return nil, xerrors.Errorf("empty roster in %s", path)
	}
	return group.Roster, nil
}
