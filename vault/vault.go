// Package vault keeps the balances of the raffle accounts and of the prize
// pool in a bbolt bucket. Every operation runs in a single bbolt
// transaction, so a transfer is either fully applied or not at all.
package vault

import (
	"go.dedis.ch/onet/v3/log"
	"go.dedis.ch/protobuf"
	"go.etcd.io/bbolt"
	"golang.org/x/xerrors"
)

// PoolAccount holds the entry fees of the current round.
const PoolAccount = "_pool"

var ErrInsufficientFunds = xerrors.New("insufficient funds")

// Account is the stored record of one account.
type Account struct {
	Balance uint64
	// Counter is the last nonce used by the account owner.
	Counter uint64
}

type Vault struct {
	db     *bbolt.DB
	bucket []byte
}

// New uses bucket of db, creating it if needed.
func New(db *bbolt.DB, bucket []byte) (*Vault, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		return nil, xerrors.Errorf("couldn't create bucket: %v", err)
	}
	return &Vault{db: db, bucket: bucket}, nil
}

func getAccount(b *bbolt.Bucket, name string) (*Account, error) {
	acct := &Account{}
	buf := b.Get([]byte(name))
	if buf == nil {
		return acct, nil
	}
	if err := protobuf.Decode(buf, acct); err != nil {
		return nil, xerrors.Errorf("couldn't decode account %s: %v", name, err)
	}
	return acct, nil
}

func putAccount(b *bbolt.Bucket, name string, acct *Account) error {
	buf, err := protobuf.Encode(acct)
	if err != nil {
		return xerrors.Errorf("couldn't encode account %s: %v", name, err)
	}
	return b.Put([]byte(name), buf)
}

func (v *Vault) move(from, to string, amount uint64) error {
	return v.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(v.bucket)
		src, err := getAccount(b, from)
		if err != nil {
			return err
		}
		if src.Balance < amount {
			return ErrInsufficientFunds
		}
		dst, err := getAccount(b, to)
		if err != nil {
			return err
		}
		if dst.Balance+amount < dst.Balance {
			return xerrors.New("balance overflow")
		}
		src.Balance -= amount
		if err := putAccount(b, from, src); err != nil {
			return err
		}
		// from and to may be the same account
		dst, err = getAccount(b, to)
		if err != nil {
			return err
		}
		dst.Balance += amount
		return putAccount(b, to, dst)
	})
}

// Credit adds amount to account.
func (v *Vault) Credit(account string, amount uint64) error {
	return v.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(v.bucket)
		acct, err := getAccount(b, account)
		if err != nil {
			return err
		}
		if acct.Balance+amount < acct.Balance {
			return xerrors.New("balance overflow")
		}
		acct.Balance += amount
		return putAccount(b, account, acct)
	})
}

// Get returns the record of account. Unknown accounts are empty.
func (v *Vault) Get(account string) (*Account, error) {
	var acct *Account
	err := v.db.View(func(tx *bbolt.Tx) error {
		var err error
		acct, err = getAccount(tx.Bucket(v.bucket), account)
		return err
	})
	return acct, err
}

func (v *Vault) Balance(account string) (uint64, error) {
	acct, err := v.Get(account)
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// Collect moves amount from an account into the pool.
func (v *Vault) Collect(from string, amount uint64) error {
	if err := v.move(from, PoolAccount, amount); err != nil {
		return xerrors.Errorf("couldn't collect from %s: %w", from, err)
	}
	return nil
}

// Transfer pays amount out of the pool.
func (v *Vault) Transfer(to string, amount uint64) error {
	if err := v.move(PoolAccount, to, amount); err != nil {
		log.Errorf("couldn't pay %d to %s: %v", amount, to, err)
		return xerrors.Errorf("couldn't pay %s: %w", to, err)
	}
	return nil
}

// UseCounter records nonce as the last nonce of account. It must be the
// counter that follows the stored one.
func (v *Vault) UseCounter(account string, nonce uint64) error {
	return v.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(v.bucket)
		acct, err := getAccount(b, account)
		if err != nil {
			return err
		}
		if nonce != acct.Counter+1 {
			return xerrors.Errorf("invalid nonce %d, expected %d", nonce,
				acct.Counter+1)
		}
		acct.Counter = nonce
		return putAccount(b, account, acct)
	})
}

// ReleaseCounter gives back nonce if it is still the last nonce of account,
// so that it can be used again.
func (v *Vault) ReleaseCounter(account string, nonce uint64) error {
	return v.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(v.bucket)
		acct, err := getAccount(b, account)
		if err != nil {
			return err
		}
		if nonce == 0 || acct.Counter != nonce {
			return xerrors.Errorf("nonce %d is not the last one (%d)", nonce,
				acct.Counter)
		}
		acct.Counter = nonce - 1
		return putAccount(b, account, acct)
	})
}
