package cmt

import (
	"fmt"
	"math/bits"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/config"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/merkle"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
)

// Path is the proof of the most recently appended leaf. Index is the number
// of appended leaves, i.e. the next append position.
type Path struct {
	Proof []types.Node
	Leaf  types.Node
	Index uint32
}

func (p *Path) clone() Path {
	proof := make([]types.Node, len(p.Proof))
	copy(proof, p.Proof)
	return Path{Proof: proof, Leaf: p.Leaf, Index: p.Index}
}

// ConcurrentMerkleTree is a fixed-depth merkle tree that stores only its
// root, a ring buffer of recent change logs, the rightmost path and an
// optional canopy. Proofs built against any root still in the ring buffer can
// be brought forward to the current root, so writers to different leaves do
// not invalidate each other.
//
// A ConcurrentMerkleTree is not safe for concurrent use; callers serialize
// access.
type ConcurrentMerkleTree struct {
	maxDepth      uint32
	maxBufferSize uint32

	sequenceNumber uint64
	activeIndex    uint64
	bufferSize     uint64

	changeLogs    []ChangeLog
	rightMostPath Path
	canopy        *Canopy
}

// New allocates and initializes an empty tree.
func New(cfg *config.TreeConfig) (*ConcurrentMerkleTree, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidTreeConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTreeConfig, err)
	}

	t := &ConcurrentMerkleTree{
		maxDepth:      cfg.MaxDepth,
		maxBufferSize: cfg.MaxBufferSize,
		changeLogs:    make([]ChangeLog, cfg.MaxBufferSize),
		rightMostPath: Path{Proof: make([]types.Node, cfg.MaxDepth)},
		canopy:        newCanopy(cfg.MaxDepth, cfg.CanopyDepth),
	}
	for i := range t.changeLogs {
		t.changeLogs[i] = newChangeLog(cfg.MaxDepth)
	}
	t.initialize()

	return t, nil
}

// initialize resets the tree to the all-default state. The first change log
// entry records the empty root so that proofs against it are recognised.
func (t *ConcurrentMerkleTree) initialize() {
	for i := range t.rightMostPath.Proof {
		t.rightMostPath.Proof[i] = merkle.EmptyNode(uint32(i))
	}
	t.rightMostPath.Leaf = types.EmptyNode
	t.rightMostPath.Index = 0

	first := &t.changeLogs[0]
	for i := range first.Path {
		first.Path[i] = merkle.EmptyNode(uint32(i))
	}
	first.Root = merkle.EmptyNode(t.maxDepth)
	first.Index = 0

	t.sequenceNumber = 0
	t.activeIndex = 0
	t.bufferSize = 1
}

// Config returns the immutable shape of the tree.
func (t *ConcurrentMerkleTree) Config() *config.TreeConfig {
	return &config.TreeConfig{
		MaxDepth:      t.maxDepth,
		MaxBufferSize: t.maxBufferSize,
		CanopyDepth:   t.canopy.Depth(),
	}
}

// Root returns the current root.
func (t *ConcurrentMerkleTree) Root() types.Node {
	return t.changeLogs[t.activeIndex].Root
}

// SequenceNumber returns the number of committed operations.
func (t *ConcurrentMerkleTree) SequenceNumber() uint64 {
	return t.sequenceNumber
}

// ActiveIndex returns the ring buffer slot holding the current root.
func (t *ConcurrentMerkleTree) ActiveIndex() uint64 {
	return t.activeIndex
}

// BufferSize returns the number of valid change log entries.
func (t *ConcurrentMerkleTree) BufferSize() uint64 {
	return t.bufferSize
}

// NextIndex returns the leaf index the next Append writes to.
func (t *ConcurrentMerkleTree) NextIndex() uint32 {
	return t.rightMostPath.Index
}

// Capacity returns 2^maxDepth.
func (t *ConcurrentMerkleTree) Capacity() uint64 {
	return uint64(1) << t.maxDepth
}

// Canopy returns the cached upper levels.
func (t *ConcurrentMerkleTree) Canopy() *Canopy {
	return t.canopy
}

// ActiveChangeLog returns a copy of the change log describing the last commit.
func (t *ConcurrentMerkleTree) ActiveChangeLog() ChangeLog {
	return t.changeLogs[t.activeIndex].clone()
}

// IsEmpty reports whether every leaf equals the default node.
func (t *ConcurrentMerkleTree) IsEmpty() bool {
	return t.Root() == merkle.EmptyNode(t.maxDepth)
}

// Clone returns a deep copy of the tree.
func (t *ConcurrentMerkleTree) Clone() *ConcurrentMerkleTree {
	logs := make([]ChangeLog, len(t.changeLogs))
	for i := range t.changeLogs {
		logs[i] = t.changeLogs[i].clone()
	}
	return &ConcurrentMerkleTree{
		maxDepth:       t.maxDepth,
		maxBufferSize:  t.maxBufferSize,
		sequenceNumber: t.sequenceNumber,
		activeIndex:    t.activeIndex,
		bufferSize:     t.bufferSize,
		changeLogs:     logs,
		rightMostPath:  t.rightMostPath.clone(),
		canopy:         t.canopy.clone(),
	}
}

// Append writes leaf at NextIndex and returns the new root. No proof is
// needed: the siblings of the next slot are either empty subtrees or nodes
// already on the rightmost path.
func (t *ConcurrentMerkleTree) Append(leaf types.Node) (types.Node, error) {
	if leaf.IsEmpty() {
		return types.Node{}, ErrCannotAppendEmptyLeaf
	}
	rmp := &t.rightMostPath
	if uint64(rmp.Index) >= t.Capacity() {
		return types.Node{}, ErrTreeFull
	}

	index := rmp.Index
	path := make([]types.Node, t.maxDepth)
	node := leaf

	if index == 0 {
		for i := range path {
			path[i] = node
			empty := merkle.EmptyNode(uint32(i))
			node = merkle.HashPair(node, empty)
			rmp.Proof[i] = empty
		}
	} else {
		prev := index - 1
		// Lowest level where the new leaf's path joins the previous leaf's path
		intersection := bits.TrailingZeros32(index)
		intersectionNode := rmp.Leaf
		for i := 0; i < int(t.maxDepth); i++ {
			path[i] = node
			switch {
			case i < intersection:
				empty := merkle.EmptyNode(uint32(i))
				intersectionNode = merkle.HashToParent(intersectionNode, rmp.Proof[i], (prev>>uint(i))&1 == 0)
				node = merkle.HashPair(node, empty)
				rmp.Proof[i] = empty
			case i == intersection:
				node = merkle.HashPair(intersectionNode, node)
				rmp.Proof[i] = intersectionNode
			default:
				node = merkle.HashToParent(node, rmp.Proof[i], (prev>>uint(i))&1 == 0)
			}
		}
	}

	t.incrementCounters()
	cl := &t.changeLogs[t.activeIndex]
	copy(cl.Path, path)
	cl.Root = node
	cl.Index = index
	t.canopy.update(cl)

	rmp.Index = index + 1
	rmp.Leaf = leaf

	return node, nil
}

// Replace writes newLeaf at proof.LeafIndex after proving that proof.Leaf is
// the leaf currently stored there. The proof may have been built against any
// root still held in the change log.
func (t *ConcurrentMerkleTree) Replace(proof *types.Proof, newLeaf types.Node) (types.Node, error) {
	if proof == nil {
		return types.Node{}, fmt.Errorf("%w: nil proof", ErrInvalidProof)
	}
	if uint64(proof.LeafIndex) >= t.Capacity() {
		return types.Node{}, fmt.Errorf("%w: index %d, capacity %d", ErrIndexOutOfBounds, proof.LeafIndex, t.Capacity())
	}
	if proof.LeafIndex >= t.rightMostPath.Index {
		return types.Node{}, fmt.Errorf("%w: index %d has not been appended (next index %d)",
			ErrIndexOutOfBounds, proof.LeafIndex, t.rightMostPath.Index)
	}

	full, err := t.proveLeaf(proof)
	if err != nil {
		return types.Node{}, err
	}

	return t.applyProof(proof.LeafIndex, newLeaf, full), nil
}

// Verify checks that proof.Leaf is stored at proof.LeafIndex in the current
// tree. It runs the same autocompletion as Replace and never mutates state.
func (t *ConcurrentMerkleTree) Verify(proof *types.Proof) error {
	if proof == nil {
		return fmt.Errorf("%w: nil proof", ErrInvalidProof)
	}
	if uint64(proof.LeafIndex) >= t.Capacity() {
		return fmt.Errorf("%w: index %d, capacity %d", ErrIndexOutOfBounds, proof.LeafIndex, t.Capacity())
	}
	_, err := t.proveLeaf(proof)
	return err
}

// applyProof commits newLeaf at index using a proof already valid for the
// current root. It cannot fail.
func (t *ConcurrentMerkleTree) applyProof(index uint32, newLeaf types.Node, proof []types.Node) types.Node {
	t.incrementCounters()
	cl := &t.changeLogs[t.activeIndex]
	root := cl.replaceAndRecomputePath(index, newLeaf, proof)
	t.canopy.update(cl)

	rmp := &t.rightMostPath
	if rmp.Index > 0 {
		cl.updateProofOrLeaf(rmp.Index-1, rmp.Proof, &rmp.Leaf)
	}
	return root
}

func (t *ConcurrentMerkleTree) incrementCounters() {
	mask := uint64(t.maxBufferSize - 1)
	t.activeIndex = (t.activeIndex + 1) & mask
	if t.bufferSize < uint64(t.maxBufferSize) {
		t.bufferSize++
	}
	t.sequenceNumber++
}
