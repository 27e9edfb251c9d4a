package vault

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/onet/v3/log"
	"go.etcd.io/bbolt"
	"golang.org/x/xerrors"
)

func TestMain(m *testing.M) {
	log.MainTest(m)
}

func newVault(t *testing.T) *Vault {
	db, err := bbolt.Open(filepath.Join(t.TempDir(), "vault.db"), 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	v, err := New(db, []byte("accounts"))
	require.NoError(t, err)
	return v
}

func TestVault_CollectTransfer(t *testing.T) {
	v := newVault(t)
	require.NoError(t, v.Credit("alice", 250))
	require.NoError(t, v.Collect("alice", 100))
	require.NoError(t, v.Collect("alice", 100))

	bal, err := v.Balance("alice")
	require.NoError(t, err)
	require.Equal(t, uint64(50), bal)
	pool, err := v.Balance(PoolAccount)
	require.NoError(t, err)
	require.Equal(t, uint64(200), pool)

	err = v.Collect("alice", 100)
	require.True(t, xerrors.Is(err, ErrInsufficientFunds))
	bal, err = v.Balance("alice")
	require.NoError(t, err)
	require.Equal(t, uint64(50), bal)

	require.NoError(t, v.Transfer("bob", 200))
	bal, err = v.Balance("bob")
	require.NoError(t, err)
	require.Equal(t, uint64(200), bal)
	pool, err = v.Balance(PoolAccount)
	require.NoError(t, err)
	require.Equal(t, uint64(0), pool)

	err = v.Transfer("bob", 1)
	require.True(t, xerrors.Is(err, ErrInsufficientFunds))
}

func TestVault_SameAccount(t *testing.T) {
	v := newVault(t)
	require.NoError(t, v.Credit(PoolAccount, 10))
	require.NoError(t, v.Transfer(PoolAccount, 10))
	pool, err := v.Balance(PoolAccount)
	require.NoError(t, err)
	require.Equal(t, uint64(10), pool)
}

func TestVault_Counter(t *testing.T) {
	v := newVault(t)
	require.Error(t, v.UseCounter("alice", 0))
	require.NoError(t, v.UseCounter("alice", 1))
	require.Error(t, v.UseCounter("alice", 1))
	require.Error(t, v.UseCounter("alice", 3))
	require.NoError(t, v.UseCounter("alice", 2))
	acct, err := v.Get("alice")
	require.NoError(t, err)
	require.Equal(t, uint64(2), acct.Counter)

	require.Error(t, v.ReleaseCounter("alice", 1))
	require.Error(t, v.ReleaseCounter("bob", 0))
	require.NoError(t, v.ReleaseCounter("alice", 2))
	acct, err = v.Get("alice")
	require.NoError(t, err)
	require.Equal(t, uint64(1), acct.Counter)
	require.Error(t, v.UseCounter("alice", 3))
	require.NoError(t, v.UseCounter("alice", 2))
}

func TestVault_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	db, err := bbolt.Open(path, 0600, nil)
	require.NoError(t, err)
	v, err := New(db, []byte("accounts"))
	require.NoError(t, err)
	require.NoError(t, v.Credit("alice", 5))
	require.NoError(t, db.Close())

	db, err = bbolt.Open(path, 0600, nil)
	require.NoError(t, err)
	defer db.Close()
	v, err = New(db, []byte("accounts"))
	require.NoError(t, err)
	bal, err := v.Balance("alice")
	require.NoError(t, err)
	require.Equal(t, uint64(5), bal)
}
