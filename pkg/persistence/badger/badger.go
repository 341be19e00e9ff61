package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/persistence"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
)

// Key prefixes for namespacing
const (
	keyPrefixAccount     = "account:"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"

	gcInterval     = 5 * time.Minute
	gcDiscardRatio = 0.5
)

// BadgerStore is a durable, disk-based IAccountStore backed by Badger.
// Batches commit inside a single Badger transaction.
type BadgerStore struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

var _ persistence.IAccountStore = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) a store at dataPath with SyncWrites
// enabled and starts a background value log GC.
func NewBadgerStore(dataPath string, logger *zap.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bs := &BadgerStore{
		db:     db,
		logger: logger,
	}

	if err := bs.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bs.gcCancel = cancel
	bs.gcWg.Add(1)
	go bs.runGC(ctx)

	logger.Sugar().Infow("Badger account store initialized", "path", absPath)

	return bs, nil
}

func accountKey(address common.Address) []byte {
	return append([]byte(keyPrefixAccount), address.Bytes()...)
}

// initSchema initializes or validates the schema version
func (b *BadgerStore) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}
		return nil
	})
}

func (b *BadgerStore) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(gcDiscardRatio)
			if err != nil && !errors.Is(err, badgerdb.ErrNoRewrite) {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// LoadAccount retrieves an account by address
func (b *BadgerStore) LoadAccount(_ context.Context, address common.Address) (*types.Account, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(accountKey(address))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to load account %s", address.Hex())
	}
	if data == nil {
		return nil, nil
	}

	acct, err := persistence.UnmarshalAccount(data)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to decode account %s", address.Hex())
	}
	return acct, nil
}

// SaveAccount persists a single account
func (b *BadgerStore) SaveAccount(ctx context.Context, account *types.Account) error {
	return b.Commit(ctx, persistence.NewBatch().AddPut(account))
}

// DeleteAccount removes an account
func (b *BadgerStore) DeleteAccount(ctx context.Context, address common.Address) error {
	return b.Commit(ctx, persistence.NewBatch().AddDelete(address))
}

// ListAccounts iterates the account prefix. Badger keys sort bytewise, so the
// result is already ordered by address.
func (b *BadgerStore) ListAccounts(_ context.Context) ([]*types.Account, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	accounts := []*types.Account{}
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixAccount)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}

			acct, err := persistence.UnmarshalAccount(data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to unmarshal account, skipping",
					"key", fmt.Sprintf("%x", item.Key()), "error", err)
				continue
			}
			accounts = append(accounts, acct)
		}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list accounts")
	}

	sort.Slice(accounts, func(i, j int) bool {
		return bytes.Compare(accounts[i].Address[:], accounts[j].Address[:]) < 0
	})
	return accounts, nil
}

// Commit writes the batch in one read-write transaction.
func (b *BadgerStore) Commit(ctx context.Context, batch *persistence.Batch) error {
	if err := batch.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	encoded := make([][]byte, len(batch.Put))
	for i, acct := range batch.Put {
		data, err := persistence.MarshalAccount(acct)
		if err != nil {
			return err
		}
		encoded[i] = data
	}

	err := b.db.Update(func(txn *badgerdb.Txn) error {
		for i, acct := range batch.Put {
			if err := txn.Set(accountKey(acct.Address), encoded[i]); err != nil {
				return err
			}
		}
		for _, addr := range batch.Delete {
			if err := txn.Delete(accountKey(addr)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to commit batch (%d puts, %d deletes)", len(batch.Put), len(batch.Delete))
	}
	return nil
}

// Close stops GC and closes the database
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger account store closed")
	return nil
}

// HealthCheck verifies the database is readable and initialized
func (b *BadgerStore) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
