package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/compression"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/merkle"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
)

const defaultConcurrency = 8

// TreeProgram is the subset of compression.Program the client drives.
type TreeProgram interface {
	Append(ctx context.Context, tree, authority common.Address, leaf types.Node) (*compression.Receipt, error)
	Replace(ctx context.Context, tree, authority common.Address, newLeaf types.Node, proof *types.Proof) (*compression.Receipt, error)
	VerifyLeaf(ctx context.Context, tree common.Address, proof *types.Proof) (bool, error)
	GetTree(ctx context.Context, tree common.Address) (*compression.TreeAccount, error)
}

// LeafUpdate is one entry of a ReplaceBatch.
type LeafUpdate struct {
	Index uint32
	Leaf  types.Node
}

// TreeClient keeps an off-chain mirror of one concurrent tree, builds proofs
// from it and submits mutations as the tree's authority.
type TreeClient struct {
	program     TreeProgram
	tree        common.Address
	authority   common.Address
	canopyDepth uint32
	bufferSize  uint32
	concurrency int
	limiter     *rate.Limiter
	logger      *zap.Logger

	mu      sync.RWMutex
	mirror  *merkle.MerkleTree
	nextSeq uint64
}

type Option func(*TreeClient)

// WithRateLimiter throttles submissions made by ReplaceBatch.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *TreeClient) {
		c.limiter = l
	}
}

// WithConcurrency bounds the number of in-flight replaces in ReplaceBatch.
func WithConcurrency(n int) Option {
	return func(c *TreeClient) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *TreeClient) {
		c.logger = l
	}
}

// NewTreeClient reads the tree's shape and starts with an empty mirror. If
// the tree already holds leaves the mirror must be caught up with ApplyEvent
// before proofs are usable.
func NewTreeClient(
	ctx context.Context,
	program TreeProgram,
	tree, authority common.Address,
	opts ...Option,
) (*TreeClient, error) {
	ta, err := program.GetTree(ctx, tree)
	if err != nil {
		return nil, err
	}
	mirror, err := merkle.NewMerkleTree(ta.Header.MaxDepth, nil)
	if err != nil {
		return nil, err
	}

	c := &TreeClient{
		program:     program,
		tree:        tree,
		authority:   authority,
		canopyDepth: ta.Header.CanopyDepth,
		bufferSize:  ta.Header.MaxBufferSize,
		concurrency: defaultConcurrency,
		logger:      zap.NewNop(),
		mirror:      mirror,
	}
	if ta.Tree.NextIndex() == 0 {
		c.nextSeq = ta.Tree.SequenceNumber() + 1
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *TreeClient) Tree() common.Address {
	return c.tree
}

// Root returns the mirror's root.
func (c *TreeClient) Root() types.Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mirror.Root()
}

// Leaves returns a copy of the mirrored leaves.
func (c *TreeClient) Leaves() []types.Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mirror.Leaves()
}

// Proof builds a canopy-minimized proof for index against the mirror's root.
func (c *TreeClient) Proof(index uint32) (*types.Proof, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mirror.GenerateMinimalProof(index, c.canopyDepth)
}

// FullProof builds a proof covering every level of the tree.
func (c *TreeClient) FullProof(index uint32) (*types.Proof, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mirror.GenerateProof(index)
}

// InSync reports whether the mirror root equals the stored tree's root.
func (c *TreeClient) InSync(ctx context.Context) (bool, error) {
	ta, err := c.program.GetTree(ctx, c.tree)
	if err != nil {
		return false, err
	}
	return ta.Tree.Root() == c.Root(), nil
}

func (c *TreeClient) applyReceipt(r *compression.Receipt, leaf types.Node) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mirror.UpdateLeaf(r.LeafIndex, leaf); err != nil {
		return err
	}
	if r.SequenceNumber >= c.nextSeq {
		c.nextSeq = r.SequenceNumber + 1
	}
	return nil
}

// Append submits leaf and mirrors it at the index the tree assigned.
func (c *TreeClient) Append(ctx context.Context, leaf types.Node) (*compression.Receipt, error) {
	r, err := c.program.Append(ctx, c.tree, c.authority, leaf)
	if err != nil {
		return nil, err
	}
	if err := c.applyReceipt(r, leaf); err != nil {
		return nil, err
	}
	return r, nil
}

// Replace swaps the leaf at index for leaf using a proof from the mirror.
func (c *TreeClient) Replace(ctx context.Context, index uint32, leaf types.Node) (*compression.Receipt, error) {
	proof, err := c.Proof(index)
	if err != nil {
		return nil, err
	}
	return c.submitReplace(ctx, proof, leaf)
}

func (c *TreeClient) submitReplace(ctx context.Context, proof *types.Proof, leaf types.Node) (*compression.Receipt, error) {
	r, err := c.program.Replace(ctx, c.tree, c.authority, leaf, proof)
	if err != nil {
		return nil, fmt.Errorf("replace at index %d: %w", proof.LeafIndex, err)
	}
	if err := c.applyReceipt(r, leaf); err != nil {
		return nil, err
	}
	return r, nil
}

// Verify checks the mirrored leaf at index against the stored tree.
func (c *TreeClient) Verify(ctx context.Context, index uint32) (bool, error) {
	proof, err := c.Proof(index)
	if err != nil {
		return false, err
	}
	return c.program.VerifyLeaf(ctx, c.tree, proof)
}

// ReplaceBatch submits updates concurrently. Proofs for each chunk of up to
// MaxBufferSize updates are built from one mirror snapshot and rely on the
// tree fast-forwarding them. Receipts are returned in input order.
func (c *TreeClient) ReplaceBatch(ctx context.Context, updates []LeafUpdate) ([]*compression.Receipt, error) {
	seen := make(map[uint32]struct{}, len(updates))
	for _, u := range updates {
		if _, ok := seen[u.Index]; ok {
			return nil, fmt.Errorf("%w: index %d", ErrDuplicateIndex, u.Index)
		}
		seen[u.Index] = struct{}{}
	}

	chunk := int(c.bufferSize)
	receipts := make([]*compression.Receipt, len(updates))
	for start := 0; start < len(updates); start += chunk {
		end := min(start+chunk, len(updates))
		if err := c.replaceChunk(ctx, updates[start:end], receipts[start:end]); err != nil {
			return nil, err
		}
	}

	c.logger.Sugar().Debugw("Replaced batch",
		"tree", c.tree.Hex(),
		"updates", len(updates),
		"root", c.Root().Hex(),
	)
	return receipts, nil
}

func (c *TreeClient) replaceChunk(ctx context.Context, updates []LeafUpdate, out []*compression.Receipt) error {
	proofs := make([]*types.Proof, len(updates))
	c.mu.RLock()
	for i, u := range updates {
		p, err := c.mirror.GenerateMinimalProof(u.Index, c.canopyDepth)
		if err != nil {
			c.mu.RUnlock()
			return err
		}
		proofs[i] = p
	}
	c.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i := range updates {
		g.Go(func() error {
			if c.limiter != nil {
				if err := c.limiter.Wait(gctx); err != nil {
					return err
				}
			}
			r, err := c.submitReplace(gctx, proofs[i], updates[i].Leaf)
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}
	return g.Wait()
}

// ApplyEvent replays a committed change into the mirror. Events must arrive
// in sequence order; already applied sequence numbers are ignored. After
// ErrOutOfSync the mirror is unusable and the client must be rebuilt.
func (c *TreeClient) ApplyEvent(event *compression.ChangeLogEvent) error {
	if event.Tree != c.tree {
		return fmt.Errorf("%w: got %s, want %s", ErrWrongTree, event.Tree.Hex(), c.tree.Hex())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case event.SequenceNumber < c.nextSeq:
		return nil
	case event.SequenceNumber > c.nextSeq:
		return fmt.Errorf("%w: got %d, want %d", ErrSequenceGap, event.SequenceNumber, c.nextSeq)
	}

	// Sequence zero is the creation event and writes no leaf.
	if event.SequenceNumber > 0 {
		if err := c.mirror.UpdateLeaf(event.LeafIndex, event.Leaf()); err != nil {
			return err
		}
	}
	if c.mirror.Root() != event.Root() {
		return fmt.Errorf("%w: after seq %d mirror has %s, event has %s",
			ErrOutOfSync, event.SequenceNumber, c.mirror.Root(), event.Root())
	}
	c.nextSeq++
	return nil
}
