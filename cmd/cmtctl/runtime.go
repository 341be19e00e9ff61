package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/claim"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/client"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/compression"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/config"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/logger"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/persistence"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/persistence/badger"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/persistence/memory"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/persistence/redis"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/signer/inMemorySigner"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
)

const journalOwner = "cmtctl-journal"

// runtime is everything a command needs, built from the global flags.
type runtime struct {
	logger *zap.Logger
	store  persistence.IAccountStore
	signer *inMemorySigner.InMemorySigner
	trees  *compression.Program
	claims *claim.Program
}

func newRuntime(c *cli.Context) (*runtime, error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	storeCfg := &config.StoreConfig{
		Type:          config.StoreType(c.String("store")),
		DataPath:      c.String("data-path"),
		RedisAddress:  c.String("redis-address"),
		RedisPassword: c.String("redis-password"),
		RedisDB:       c.Int("redis-db"),
		RedisPrefix:   c.String("redis-prefix"),
	}
	store, err := openStore(storeCfg, l)
	if err != nil {
		return nil, err
	}

	var s *inMemorySigner.InMemorySigner
	if key := c.String("private-key"); key != "" {
		s, err = inMemorySigner.NewInMemorySignerFromHex(key, l)
	} else {
		s, err = inMemorySigner.NewRandomInMemorySigner(l)
		if err == nil {
			l.Sugar().Warnw("No private key configured, using an ephemeral signer", "address", s.Address().Hex())
		}
	}
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}

	trees := compression.NewProgram(store, l, compression.WithEventSink(&journalSink{store: store, logger: l}))
	return &runtime{
		logger: l,
		store:  store,
		signer: s,
		trees:  trees,
		claims: claim.NewProgram(store, trees, l),
	}, nil
}

func (r *runtime) Close() {
	if err := r.store.Close(); err != nil {
		r.logger.Sugar().Warnw("Failed to close store", "error", err)
	}
	_ = r.logger.Sync()
}

func openStore(cfg *config.StoreConfig, l *zap.Logger) (persistence.IAccountStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store configuration: %w", err)
	}
	switch cfg.Type {
	case config.StoreTypeBadger:
		store, err := badger.NewBadgerStore(cfg.DataPath, l)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoreTypeRedis:
		store, err := redis.NewRedisStore(&redis.RedisConfig{
			Address:   cfg.RedisAddress,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisPrefix,
		}, l)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return memory.NewMemoryStore(l), nil
	}
}

// execute signs ins with the runtime's key and runs it through the program.
func (r *runtime) execute(ctx context.Context, ins *compression.Instruction) (*compression.Result, error) {
	msg, err := compression.SignInstruction(r.signer, ins)
	if err != nil {
		return nil, err
	}
	return r.trees.Execute(ctx, msg)
}

// treeClient rebuilds an off-chain mirror of tree from its journal.
func (r *runtime) treeClient(ctx context.Context, tree common.Address) (*client.TreeClient, error) {
	tc, err := client.NewTreeClient(ctx, r.trees, tree, r.signer.Address(), client.WithLogger(r.logger))
	if err != nil {
		return nil, err
	}
	events, err := loadJournal(ctx, r.store, tree)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if err := tc.ApplyEvent(ev); err != nil {
			return nil, fmt.Errorf("failed to replay journal for %s: %w", tree.Hex(), err)
		}
	}
	return tc, nil
}

// newAddress derives a fresh account address.
func newAddress() common.Address {
	id := uuid.New()
	return common.BytesToAddress(crypto.Keccak256(id[:]))
}

func journalAddress(tree common.Address) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("journal:"), tree.Bytes()))
}

func loadJournal(ctx context.Context, store persistence.IAccountStore, tree common.Address) ([]*compression.ChangeLogEvent, error) {
	acct, err := store.LoadAccount(ctx, journalAddress(tree))
	if err != nil {
		return nil, fmt.Errorf("failed to load journal: %w", err)
	}
	if acct == nil {
		return nil, nil
	}
	var events []*compression.ChangeLogEvent
	if err := json.Unmarshal(acct.Data, &events); err != nil {
		return nil, fmt.Errorf("failed to decode journal: %w", err)
	}
	return events, nil
}

// journalSink persists every change log event next to its tree so later
// invocations can rebuild the leaves.
type journalSink struct {
	store  persistence.IAccountStore
	logger *zap.Logger
}

func (j *journalSink) Publish(ctx context.Context, event *compression.ChangeLogEvent) {
	if err := j.append(ctx, event); err != nil {
		j.logger.Sugar().Warnw("Failed to journal change log event",
			"tree", event.Tree.Hex(),
			"seq", event.SequenceNumber,
			"error", err,
		)
	}
}

func (j *journalSink) append(ctx context.Context, event *compression.ChangeLogEvent) error {
	events, err := loadJournal(ctx, j.store, event.Tree)
	if err != nil {
		return err
	}
	// A recreated tree starts a new journal.
	if event.SequenceNumber == 0 {
		events = nil
	}
	events = append(events, event)
	data, err := json.Marshal(events)
	if err != nil {
		return err
	}
	return j.store.SaveAccount(ctx, &types.Account{
		Address: journalAddress(event.Tree),
		Owner:   journalOwner,
		Data:    data,
	})
}

func printJSON(c *cli.Context, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, string(out))
	return err
}

func addressFlag(c *cli.Context, name string) (common.Address, error) {
	addr, err := config.ParseAddress(c.String(name))
	if err != nil {
		return common.Address{}, fmt.Errorf("--%s: %w", name, err)
	}
	return addr, nil
}

// leafFlag reads --leaf as a hex node, or hashes --data into a leaf.
func leafFlag(c *cli.Context) (types.Node, error) {
	if c.IsSet("leaf") {
		return types.NodeFromHex(c.String("leaf"))
	}
	if c.IsSet("data") {
		return leafFromData(c.String("data")), nil
	}
	return types.Node{}, fmt.Errorf("one of --leaf or --data is required")
}
