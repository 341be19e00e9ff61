package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/persistence"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
)

// MemoryStore is an in-memory implementation of IAccountStore.
// This implementation is intended for TESTING and local experiments.
//
// All data is lost when the process exits. Accounts are deep copied on the
// way in and out so callers can never alias stored state.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[common.Address]*types.Account
	closed   bool
}

var _ persistence.IAccountStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory account store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger != nil {
		logger.Sugar().Warnw("Using in-memory account store - all data will be lost on restart")
	}
	return &MemoryStore{
		accounts: make(map[common.Address]*types.Account),
	}
}

// LoadAccount retrieves an account by address.
func (m *MemoryStore) LoadAccount(_ context.Context, address common.Address) (*types.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	acct, ok := m.accounts[address]
	if !ok {
		return nil, nil
	}
	return acct.Clone(), nil
}

// SaveAccount creates or overwrites an account.
func (m *MemoryStore) SaveAccount(ctx context.Context, account *types.Account) error {
	return m.Commit(ctx, persistence.NewBatch().AddPut(account))
}

// DeleteAccount removes an account.
func (m *MemoryStore) DeleteAccount(ctx context.Context, address common.Address) error {
	return m.Commit(ctx, persistence.NewBatch().AddDelete(address))
}

// ListAccounts returns all accounts sorted by address.
func (m *MemoryStore) ListAccounts(_ context.Context) ([]*types.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	result := make([]*types.Account, 0, len(m.accounts))
	for _, acct := range m.accounts {
		result = append(result, acct.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return bytes.Compare(result[i].Address[:], result[j].Address[:]) < 0
	})
	return result, nil
}

// Commit applies the batch under a single write lock.
func (m *MemoryStore) Commit(ctx context.Context, batch *persistence.Batch) error {
	if err := batch.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	for _, acct := range batch.Put {
		m.accounts[acct.Address] = acct.Clone()
	}
	for _, addr := range batch.Delete {
		delete(m.accounts, addr)
	}
	return nil
}

// Close marks the store closed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck always succeeds until Close.
func (m *MemoryStore) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return persistence.ErrClosed
	}
	return nil
}
