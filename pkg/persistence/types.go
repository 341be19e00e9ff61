package persistence

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
)

// ErrClosed is returned by every store operation after Close.
var ErrClosed = errors.New("persistence layer is closed")

// Batch is a set of account writes committed atomically.
type Batch struct {
	Put    []*types.Account
	Delete []common.Address
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// AddPut queues account to be written.
func (b *Batch) AddPut(account *types.Account) *Batch {
	b.Put = append(b.Put, account)
	return b
}

// AddDelete queues address to be removed.
func (b *Batch) AddDelete(address common.Address) *Batch {
	b.Delete = append(b.Delete, address)
	return b
}

// IsEmpty reports whether the batch has no operations.
func (b *Batch) IsEmpty() bool {
	return b == nil || (len(b.Put) == 0 && len(b.Delete) == 0)
}

// Validate rejects nil accounts and addresses that appear more than once.
func (b *Batch) Validate() error {
	if b == nil {
		return fmt.Errorf("cannot commit nil batch")
	}
	seen := make(map[common.Address]struct{}, len(b.Put)+len(b.Delete))
	for _, acct := range b.Put {
		if acct == nil {
			return fmt.Errorf("batch contains a nil account")
		}
		if _, ok := seen[acct.Address]; ok {
			return fmt.Errorf("account %s appears more than once in batch", acct.Address.Hex())
		}
		seen[acct.Address] = struct{}{}
	}
	for _, addr := range b.Delete {
		if _, ok := seen[addr]; ok {
			return fmt.Errorf("account %s appears more than once in batch", addr.Hex())
		}
		seen[addr] = struct{}{}
	}
	return nil
}
