// Package persistencetest holds the behaviour every IAccountStore must share.
package persistencetest

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/persistence"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
)

// StoreFactory returns a fresh, empty store. The compliance suite closes it.
type StoreFactory func(t *testing.T) persistence.IAccountStore

// RandomAccount builds an account with a random address and payload.
func RandomAccount(t *testing.T, balance uint64) *types.Account {
	t.Helper()
	var addr common.Address
	_, err := rand.Read(addr[:])
	require.NoError(t, err)
	data := make([]byte, 64)
	_, err = rand.Read(data)
	require.NoError(t, err)
	return &types.Account{
		Address: addr,
		Owner:   "test",
		Balance: balance,
		Data:    data,
	}
}

// TestAccountStoreCompliance runs the shared IAccountStore contract.
func TestAccountStoreCompliance(t *testing.T, f StoreFactory) {
	ctx := context.Background()

	t.Run("save and load", func(t *testing.T) {
		s := f(t)
		defer func() { _ = s.Close() }()

		acct := RandomAccount(t, 42)
		require.NoError(t, s.SaveAccount(ctx, acct))

		loaded, err := s.LoadAccount(ctx, acct.Address)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, acct.Address, loaded.Address)
		assert.Equal(t, acct.Owner, loaded.Owner)
		assert.Equal(t, acct.Balance, loaded.Balance)
		assert.Equal(t, acct.Data, loaded.Data)
	})

	t.Run("load missing", func(t *testing.T) {
		s := f(t)
		defer func() { _ = s.Close() }()

		loaded, err := s.LoadAccount(ctx, common.HexToAddress("0xdead"))
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("returned accounts are copies", func(t *testing.T) {
		s := f(t)
		defer func() { _ = s.Close() }()

		acct := RandomAccount(t, 1)
		require.NoError(t, s.SaveAccount(ctx, acct))
		acct.Data[0] ^= 0xff

		loaded, err := s.LoadAccount(ctx, acct.Address)
		require.NoError(t, err)
		assert.NotEqual(t, acct.Data[0], loaded.Data[0])

		loaded.Balance = 1000
		again, err := s.LoadAccount(ctx, acct.Address)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), again.Balance)
	})

	t.Run("overwrite", func(t *testing.T) {
		s := f(t)
		defer func() { _ = s.Close() }()

		acct := RandomAccount(t, 1)
		require.NoError(t, s.SaveAccount(ctx, acct))
		acct.Balance = 7
		acct.Data = []byte("replaced")
		require.NoError(t, s.SaveAccount(ctx, acct))

		loaded, err := s.LoadAccount(ctx, acct.Address)
		require.NoError(t, err)
		assert.Equal(t, uint64(7), loaded.Balance)
		assert.Equal(t, []byte("replaced"), loaded.Data)
	})

	t.Run("save nil", func(t *testing.T) {
		s := f(t)
		defer func() { _ = s.Close() }()

		require.Error(t, s.SaveAccount(ctx, nil))
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s := f(t)
		defer func() { _ = s.Close() }()

		acct := RandomAccount(t, 1)
		require.NoError(t, s.SaveAccount(ctx, acct))
		require.NoError(t, s.DeleteAccount(ctx, acct.Address))
		require.NoError(t, s.DeleteAccount(ctx, acct.Address))

		loaded, err := s.LoadAccount(ctx, acct.Address)
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("list sorted by address", func(t *testing.T) {
		s := f(t)
		defer func() { _ = s.Close() }()

		empty, err := s.ListAccounts(ctx)
		require.NoError(t, err)
		assert.Empty(t, empty)

		for i := 0; i < 10; i++ {
			require.NoError(t, s.SaveAccount(ctx, RandomAccount(t, uint64(i))))
		}

		accounts, err := s.ListAccounts(ctx)
		require.NoError(t, err)
		require.Len(t, accounts, 10)
		for i := 1; i < len(accounts); i++ {
			assert.Negative(t, bytes.Compare(accounts[i-1].Address[:], accounts[i].Address[:]))
		}
	})

	t.Run("commit applies puts and deletes", func(t *testing.T) {
		s := f(t)
		defer func() { _ = s.Close() }()

		doomed := RandomAccount(t, 5)
		require.NoError(t, s.SaveAccount(ctx, doomed))

		a, b := RandomAccount(t, 10), RandomAccount(t, 20)
		batch := persistence.NewBatch().AddPut(a).AddPut(b).AddDelete(doomed.Address)
		require.NoError(t, s.Commit(ctx, batch))

		for _, want := range []*types.Account{a, b} {
			got, err := s.LoadAccount(ctx, want.Address)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, want.Balance, got.Balance)
		}
		gone, err := s.LoadAccount(ctx, doomed.Address)
		require.NoError(t, err)
		assert.Nil(t, gone)
	})

	t.Run("invalid batch changes nothing", func(t *testing.T) {
		s := f(t)
		defer func() { _ = s.Close() }()

		a := RandomAccount(t, 10)
		batch := persistence.NewBatch().AddPut(a).AddDelete(a.Address)
		require.Error(t, s.Commit(ctx, batch))

		loaded, err := s.LoadAccount(ctx, a.Address)
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("concurrent writes", func(t *testing.T) {
		s := f(t)
		defer func() { _ = s.Close() }()

		const writers = 20
		accounts := make([]*types.Account, writers)
		for i := range accounts {
			accounts[i] = RandomAccount(t, uint64(i))
		}

		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for _, acct := range accounts {
			wg.Add(1)
			go func(acct *types.Account) {
				defer wg.Done()
				if err := s.SaveAccount(ctx, acct); err != nil {
					errs <- fmt.Errorf("save %s: %w", acct.Address.Hex(), err)
				}
			}(acct)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		listed, err := s.ListAccounts(ctx)
		require.NoError(t, err)
		assert.Len(t, listed, writers)
	})

	t.Run("health check", func(t *testing.T) {
		s := f(t)
		defer func() { _ = s.Close() }()

		require.NoError(t, s.HealthCheck())
	})

	t.Run("closed store", func(t *testing.T) {
		s := f(t)
		acct := RandomAccount(t, 1)
		require.NoError(t, s.SaveAccount(ctx, acct))

		require.NoError(t, s.Close())
		require.NoError(t, s.Close())

		_, err := s.LoadAccount(ctx, acct.Address)
		require.ErrorIs(t, err, persistence.ErrClosed)
		require.ErrorIs(t, s.SaveAccount(ctx, acct), persistence.ErrClosed)
		require.ErrorIs(t, s.DeleteAccount(ctx, acct.Address), persistence.ErrClosed)
		_, err = s.ListAccounts(ctx)
		require.ErrorIs(t, err, persistence.ErrClosed)
		require.ErrorIs(t, s.HealthCheck(), persistence.ErrClosed)
	})
}
