package redis

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/persistence"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
)

// Key prefixes for namespacing in Redis
const (
	keyPrefixAccount     = "cmt:account:"
	keySchemaVersion     = "cmt:metadata:schema_version"
	currentSchemaVersion = "v1"

	// Redis has no prefix iteration, so account addresses are tracked in a set
	keySetAccounts = "cmt:accounts:index"

	connectTimeout = 5 * time.Second
)

// RedisStore is a distributed IAccountStore. Batches are sent as a single
// MULTI/EXEC transaction together with the index set updates.
type RedisStore struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

var _ persistence.IAccountStore = (*RedisStore)(nil)

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is prepended to every key, e.g. "devnet:" gives
	// "devnet:cmt:account:0x...". Lets several deployments share one server.
	KeyPrefix string
}

// NewRedisStore connects to Redis and validates the schema version.
func NewRedisStore(cfg *RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rs := &RedisStore{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rs.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis account store initialized",
		"address", cfg.Address,
		"db", cfg.DB,
		"key_prefix", cfg.KeyPrefix,
	)

	return rs, nil
}

func (r *RedisStore) prefixKey(key string) string {
	return r.keyPrefix + key
}

func addressMember(address common.Address) string {
	return hexutil.Encode(address.Bytes())
}

func (r *RedisStore) accountKey(member string) string {
	return r.prefixKey(keyPrefixAccount + member)
}

func (r *RedisStore) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}
	return nil
}

// LoadAccount retrieves an account by address
func (r *RedisStore) LoadAccount(ctx context.Context, address common.Address) (*types.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	data, err := r.client.Get(ctx, r.accountKey(addressMember(address))).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to load account %s", address.Hex())
	}

	acct, err := persistence.UnmarshalAccount(data)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to decode account %s", address.Hex())
	}
	return acct, nil
}

// SaveAccount persists a single account
func (r *RedisStore) SaveAccount(ctx context.Context, account *types.Account) error {
	return r.Commit(ctx, persistence.NewBatch().AddPut(account))
}

// DeleteAccount removes an account
func (r *RedisStore) DeleteAccount(ctx context.Context, address common.Address) error {
	return r.Commit(ctx, persistence.NewBatch().AddDelete(address))
}

// ListAccounts reads the index set and fetches every member with MGET.
// Index entries whose account has vanished are pruned.
func (r *RedisStore) ListAccounts(ctx context.Context) ([]*types.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	indexKey := r.prefixKey(keySetAccounts)
	members, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list account index")
	}
	if len(members) == 0 {
		return []*types.Account{}, nil
	}

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = r.accountKey(m)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to fetch accounts")
	}

	accounts := make([]*types.Account, 0, len(values))
	for i, val := range values {
		if val == nil {
			r.client.SRem(ctx, indexKey, members[i])
			continue
		}

		data, ok := val.(string)
		if !ok {
			r.logger.Sugar().Warnw("Unexpected value type for account", "key", keys[i])
			continue
		}

		acct, err := persistence.UnmarshalAccount([]byte(data))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal account, skipping",
				"key", keys[i], "error", err)
			continue
		}
		accounts = append(accounts, acct)
	}

	sort.Slice(accounts, func(i, j int) bool {
		return bytes.Compare(accounts[i].Address[:], accounts[j].Address[:]) < 0
	})
	return accounts, nil
}

// Commit sends the batch as one MULTI/EXEC transaction.
func (r *RedisStore) Commit(ctx context.Context, batch *persistence.Batch) error {
	if err := batch.Validate(); err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
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

	indexKey := r.prefixKey(keySetAccounts)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, acct := range batch.Put {
			member := addressMember(acct.Address)
			pipe.Set(ctx, r.accountKey(member), encoded[i], 0)
			pipe.SAdd(ctx, indexKey, member)
		}
		for _, addr := range batch.Delete {
			member := addressMember(addr)
			pipe.Del(ctx, r.accountKey(member))
			pipe.SRem(ctx, indexKey, member)
		}
		return nil
	})
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to commit batch (%d puts, %d deletes)", len(batch.Put), len(batch.Delete))
	}
	return nil
}

// Close shuts down the client
func (r *RedisStore) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis account store closed")
	return nil
}

// HealthCheck pings Redis and checks the schema key
func (r *RedisStore) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	_, err := r.client.Get(ctx, r.prefixKey(keySchemaVersion)).Result()
	if err == redis.Nil {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}
	return nil
}
