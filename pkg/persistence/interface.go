package persistence

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
)

// IAccountStore persists ledger accounts: tree accounts, claim accounts and
// the plain balance accounts that pay for them.
// All implementations must be thread-safe; programs load and commit accounts
// from many goroutines.
//
// The interface supports:
// - Single account reads and writes (load, save, delete, list)
// - Atomic multi-account commits (a program instruction touches several accounts)
// - Lifecycle management (close, health check)
type IAccountStore interface {
	// LoadAccount retrieves an account by address.
	// Returns nil if the account doesn't exist, error only on storage failure.
	LoadAccount(ctx context.Context, address common.Address) (*types.Account, error)

	// SaveAccount creates or overwrites a single account.
	SaveAccount(ctx context.Context, account *types.Account) error

	// DeleteAccount removes an account.
	// Idempotent - returns nil if the account doesn't exist.
	DeleteAccount(ctx context.Context, address common.Address) error

	// ListAccounts returns every stored account sorted by address.
	// Returns empty slice if no accounts exist.
	ListAccounts(ctx context.Context) ([]*types.Account, error)

	// Commit applies every put and delete in batch or none of them.
	Commit(ctx context.Context, batch *Batch) error

	// Close cleanly shuts down the store.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations return ErrClosed.
	Close() error

	// HealthCheck verifies the store is operational.
	HealthCheck() error
}
