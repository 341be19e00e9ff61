package compression

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/cmt"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/config"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/persistence"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/util"
)

// Receipt is returned by every committed mutation.
type Receipt struct {
	TxID           uuid.UUID      `json:"txId"`
	Tree           common.Address `json:"tree"`
	Root           types.Node     `json:"root"`
	SequenceNumber uint64         `json:"seq"`
	LeafIndex      uint32         `json:"index"`
}

// Program owns tree accounts in an account store. Instructions touching the
// same account are serialized; everything else runs in parallel.
type Program struct {
	store  persistence.IAccountStore
	logger *zap.Logger
	rent   *config.RentConfig
	sink   EventSink
	now    func() time.Time
	locks  util.AddressLocks
}

type Option func(*Program)

// WithEventSink publishes a ChangeLogEvent for every committed mutation.
func WithEventSink(sink EventSink) Option {
	return func(p *Program) {
		p.sink = sink
	}
}

// WithRentConfig overrides the default rent schedule.
func WithRentConfig(rent *config.RentConfig) Option {
	return func(p *Program) {
		p.rent = rent
	}
}

func NewProgram(store persistence.IAccountStore, logger *zap.Logger, opts ...Option) *Program {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Program{
		store:  store,
		logger: logger,
		rent:   config.DefaultRentConfig(),
		sink:   noopSink{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RentExemptBalance returns the balance a tree of this shape must hold.
func (p *Program) RentExemptBalance(cfg *config.TreeConfig) uint64 {
	return p.rent.MinimumBalance(config.TreeAccountSize(cfg))
}

func (p *Program) loadTree(ctx context.Context, address common.Address) (*TreeAccount, error) {
	acct, err := p.store.LoadAccount(ctx, address)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to load tree %s", address.Hex())
	}
	if acct == nil {
		return nil, fmt.Errorf("%w: %s", ErrTreeNotFound, address.Hex())
	}
	return decodeTreeAccount(acct)
}

func (p *Program) loadAuthorizedTree(ctx context.Context, address, authority common.Address) (*TreeAccount, error) {
	ta, err := p.loadTree(ctx, address)
	if err != nil {
		return nil, err
	}
	if ta.Header.Authority != authority {
		return nil, fmt.Errorf("%w: %s is not the authority of %s", ErrUnauthorized, authority.Hex(), address.Hex())
	}
	return ta, nil
}

// commitTree stores ta and publishes the tree's latest change log.
func (p *Program) commitTree(ctx context.Context, ta *TreeAccount, extra ...*types.Account) (*Receipt, error) {
	acct, err := ta.encode()
	if err != nil {
		return nil, err
	}
	batch := persistence.NewBatch().AddPut(acct)
	for _, e := range extra {
		batch.AddPut(e)
	}
	if err := p.store.Commit(ctx, batch); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to commit tree %s", ta.Address.Hex())
	}

	txID := uuid.New()
	event := newChangeLogEvent(txID, ta.Address, ta.Tree)
	p.sink.Publish(ctx, event)

	return &Receipt{
		TxID:           txID,
		Tree:           ta.Address,
		Root:           ta.Tree.Root(),
		SequenceNumber: ta.Tree.SequenceNumber(),
		LeafIndex:      event.LeafIndex,
	}, nil
}

// CreateTree allocates an empty tree at tree, funded by payer with the rent
// exempt balance for its shape.
func (p *Program) CreateTree(
	ctx context.Context,
	payer, tree, authority common.Address,
	cfg *config.TreeConfig,
) (*Receipt, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", cmt.ErrInvalidTreeConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", cmt.ErrInvalidTreeConfig, err)
	}
	if payer == tree {
		return nil, fmt.Errorf("%w: payer cannot fund itself as a tree", ErrTreeExists)
	}

	unlock := p.locks.Lock(payer, tree)
	defer unlock()

	existing, err := p.store.LoadAccount(ctx, tree)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to load %s", tree.Hex())
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrTreeExists, tree.Hex())
	}

	payerAcct, err := p.store.LoadAccount(ctx, payer)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to load payer %s", payer.Hex())
	}
	reserve := p.RentExemptBalance(cfg)
	if payerAcct == nil || payerAcct.Balance < reserve {
		var have uint64
		if payerAcct != nil {
			have = payerAcct.Balance
		}
		return nil, fmt.Errorf("%w: payer %s has %d, tree requires %d", ErrInsufficientFunds, payer.Hex(), have, reserve)
	}
	payerAcct.Balance -= reserve

	t, err := cmt.New(cfg)
	if err != nil {
		return nil, err
	}

	ta := &TreeAccount{
		Address: tree,
		Balance: reserve,
		Header: Header{
			Version:       treeAccountVersion,
			Authority:     authority,
			CreatedAt:     uint64(p.now().Unix()),
			MaxDepth:      cfg.MaxDepth,
			MaxBufferSize: cfg.MaxBufferSize,
			CanopyDepth:   cfg.CanopyDepth,
		},
		Tree: t,
	}

	receipt, err := p.commitTree(ctx, ta, payerAcct)
	if err != nil {
		return nil, err
	}

	p.logger.Sugar().Infow("Created tree",
		"tree", tree.Hex(),
		"authority", authority.Hex(),
		"maxDepth", cfg.MaxDepth,
		"maxBufferSize", cfg.MaxBufferSize,
		"canopyDepth", cfg.CanopyDepth,
		"reserve", reserve,
	)
	return receipt, nil
}

// Append writes leaf at the tree's next index.
func (p *Program) Append(ctx context.Context, tree, authority common.Address, leaf types.Node) (*Receipt, error) {
	unlock := p.locks.Lock(tree)
	defer unlock()

	ta, err := p.loadAuthorizedTree(ctx, tree, authority)
	if err != nil {
		return nil, err
	}
	if _, err := ta.Tree.Append(leaf); err != nil {
		return nil, err
	}

	receipt, err := p.commitTree(ctx, ta)
	if err != nil {
		return nil, err
	}
	p.logger.Sugar().Debugw("Appended leaf",
		"tree", tree.Hex(),
		"index", receipt.LeafIndex,
		"seq", receipt.SequenceNumber,
	)
	return receipt, nil
}

// Replace swaps proof.Leaf for newLeaf at proof.LeafIndex. Proofs built
// against a recent root are fast-forwarded through the change log.
func (p *Program) Replace(
	ctx context.Context,
	tree, authority common.Address,
	newLeaf types.Node,
	proof *types.Proof,
) (*Receipt, error) {
	unlock := p.locks.Lock(tree)
	defer unlock()

	ta, err := p.loadAuthorizedTree(ctx, tree, authority)
	if err != nil {
		return nil, err
	}
	if _, err := ta.Tree.Replace(proof, newLeaf); err != nil {
		if errors.Is(err, cmt.ErrStaleProofUnrecoverable) {
			p.logger.Sugar().Debugw("Rejected stale proof",
				"tree", tree.Hex(),
				"index", proof.LeafIndex,
				"error", err,
			)
		}
		return nil, err
	}

	receipt, err := p.commitTree(ctx, ta)
	if err != nil {
		return nil, err
	}
	p.logger.Sugar().Debugw("Replaced leaf",
		"tree", tree.Hex(),
		"index", receipt.LeafIndex,
		"seq", receipt.SequenceNumber,
	)
	return receipt, nil
}

// VerifyLeaf reports whether proof.Leaf is at proof.LeafIndex in the
// current tree. A false result carries the verification error.
func (p *Program) VerifyLeaf(ctx context.Context, tree common.Address, proof *types.Proof) (bool, error) {
	unlock := p.locks.Lock(tree)
	defer unlock()

	ta, err := p.loadTree(ctx, tree)
	if err != nil {
		return false, err
	}
	if err := ta.Tree.Verify(proof); err != nil {
		return false, err
	}
	return true, nil
}

// TransferAuthority hands control of the tree to newAuthority.
func (p *Program) TransferAuthority(ctx context.Context, tree, authority, newAuthority common.Address) error {
	unlock := p.locks.Lock(tree)
	defer unlock()

	ta, err := p.loadAuthorizedTree(ctx, tree, authority)
	if err != nil {
		return err
	}
	ta.Header.Authority = newAuthority

	acct, err := ta.encode()
	if err != nil {
		return err
	}
	if err := p.store.SaveAccount(ctx, acct); err != nil {
		return pkgerrors.Wrapf(err, "failed to save tree %s", tree.Hex())
	}

	p.logger.Sugar().Infow("Transferred tree authority",
		"tree", tree.Hex(),
		"from", authority.Hex(),
		"to", newAuthority.Hex(),
	)
	return nil
}

// CloseEmptyTree deletes a tree whose leaves are all default and credits its
// balance to recipient. It returns the amount reclaimed.
func (p *Program) CloseEmptyTree(ctx context.Context, tree, authority, recipient common.Address) (uint64, error) {
	if recipient == tree {
		return 0, fmt.Errorf("recipient cannot be the tree being closed")
	}

	unlock := p.locks.Lock(tree, recipient)
	defer unlock()

	ta, err := p.loadAuthorizedTree(ctx, tree, authority)
	if err != nil {
		return 0, err
	}
	if !ta.Tree.IsEmpty() {
		return 0, fmt.Errorf("%w: %s has root %s", ErrTreeNotEmpty, tree.Hex(), ta.Tree.Root())
	}

	recipientAcct, err := p.store.LoadAccount(ctx, recipient)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to load recipient %s", recipient.Hex())
	}
	if recipientAcct == nil {
		recipientAcct = &types.Account{Address: recipient}
	}
	recipientAcct.Balance += ta.Balance

	batch := persistence.NewBatch().AddPut(recipientAcct).AddDelete(tree)
	if err := p.store.Commit(ctx, batch); err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to close tree %s", tree.Hex())
	}

	p.logger.Sugar().Infow("Closed empty tree",
		"tree", tree.Hex(),
		"recipient", recipient.Hex(),
		"reclaimed", ta.Balance,
	)
	return ta.Balance, nil
}

// GetTree loads and decodes a tree account.
func (p *Program) GetTree(ctx context.Context, tree common.Address) (*TreeAccount, error) {
	unlock := p.locks.Lock(tree)
	defer unlock()

	return p.loadTree(ctx, tree)
}
