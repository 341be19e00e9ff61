package testutil

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/persistence"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/persistence/memory"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/signer/inMemorySigner"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
)

// DefaultBalance funds test payers well beyond any tree reserve used in tests.
const DefaultBalance uint64 = 1_000_000_000_000

// RandomLeaf returns a random, non-empty leaf
func RandomLeaf(t *testing.T) types.Node {
	t.Helper()
	var n types.Node
	for n.IsEmpty() {
		_, err := rand.Read(n[:])
		require.NoError(t, err)
	}
	return n
}

// RandomLeaves returns n random leaves
func RandomLeaves(t *testing.T, n int) []types.Node {
	t.Helper()
	leaves := make([]types.Node, n)
	for i := range leaves {
		leaves[i] = RandomLeaf(t)
	}
	return leaves
}

// RandomAddress returns a random account address
func RandomAddress(t *testing.T) common.Address {
	t.Helper()
	var a common.Address
	_, err := rand.Read(a[:])
	require.NoError(t, err)
	return a
}

// NewTestLogger returns a logger that writes through t.Log
func NewTestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
}

// NewFundedStore returns a memory store holding a plain account with balance
// for each address.
func NewFundedStore(t *testing.T, balances map[common.Address]uint64) *memory.MemoryStore {
	t.Helper()
	store := memory.NewMemoryStore(nil)
	t.Cleanup(func() { _ = store.Close() })

	for addr, bal := range balances {
		require.NoError(t, store.SaveAccount(context.Background(), &types.Account{
			Address: addr,
			Owner:   "system",
			Balance: bal,
		}))
	}
	return store
}

// NewTestSigner returns a signer with a fresh random key
func NewTestSigner(t *testing.T) *inMemorySigner.InMemorySigner {
	t.Helper()
	s, err := inMemorySigner.NewRandomInMemorySigner(nil)
	require.NoError(t, err)
	return s
}

// Balance reads an account balance, zero when the account is absent
func Balance(t *testing.T, store persistence.IAccountStore, addr common.Address) uint64 {
	t.Helper()
	acct, err := store.LoadAccount(context.Background(), addr)
	require.NoError(t, err)
	if acct == nil {
		return 0
	}
	return acct.Balance
}
