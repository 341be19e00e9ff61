package merkle

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
)

// NewMerkleTree creates an off-chain tree of the given depth and appends
// leaves from index 0. Default leaves in the list are stored as written but
// still advance the append cursor.
func NewMerkleTree(depth uint32, leaves []types.Node) (*MerkleTree, error) {
	if depth == 0 || depth > MaxSupportedDepth {
		return nil, fmt.Errorf("depth must be between 1 and %d, got %d", MaxSupportedDepth, depth)
	}
	if uint64(len(leaves)) > uint64(1)<<depth {
		return nil, fmt.Errorf("cannot fit %d leaves in a tree of depth %d", len(leaves), depth)
	}

	levels := make([]map[uint64]types.Node, depth+1)
	for i := range levels {
		levels[i] = make(map[uint64]types.Node)
	}

	mt := &MerkleTree{
		depth:    depth,
		levels:   levels,
		occupied: &bitset.BitSet{},
	}

	// Write leaves first, then rebuild each level once
	for i, leaf := range leaves {
		mt.setNode(0, uint64(i), leaf)
		if !leaf.IsEmpty() {
			mt.occupied.Set(uint(i))
		}
	}
	mt.nextIndex = uint32(len(leaves))

	dirty := make(map[uint64]struct{}, len(leaves))
	for i := range leaves {
		dirty[uint64(i)] = struct{}{}
	}
	for level := uint32(0); level < depth; level++ {
		parents := make(map[uint64]struct{}, len(dirty)/2+1)
		for pos := range dirty {
			parents[pos>>1] = struct{}{}
		}
		for parent := range parents {
			left := mt.node(level, parent<<1)
			right := mt.node(level, parent<<1|1)
			mt.setNode(level+1, parent, HashPair(left, right))
		}
		dirty = parents
	}

	return mt, nil
}

// Depth returns the fixed depth of the tree.
func (mt *MerkleTree) Depth() uint32 {
	return mt.depth
}

// Capacity returns the number of leaf slots, 2^depth.
func (mt *MerkleTree) Capacity() uint64 {
	return uint64(1) << mt.depth
}

// Root returns the current merkle root.
func (mt *MerkleTree) Root() types.Node {
	return mt.node(mt.depth, 0)
}

// NextIndex returns the index the next Append writes to.
func (mt *MerkleTree) NextIndex() uint32 {
	return mt.nextIndex
}

// NonEmptyCount returns how many leaves hold a non-default value.
func (mt *MerkleTree) NonEmptyCount() uint {
	return mt.occupied.Count()
}

// IsEmpty reports whether every leaf equals the default node.
func (mt *MerkleTree) IsEmpty() bool {
	return !mt.occupied.Any()
}

// Leaf returns the leaf stored at index.
func (mt *MerkleTree) Leaf(index uint32) (types.Node, error) {
	if uint64(index) >= mt.Capacity() {
		return types.Node{}, fmt.Errorf("leaf index %d out of bounds (capacity %d)", index, mt.Capacity())
	}
	return mt.node(0, uint64(index)), nil
}

// Leaves returns the leaves in [0, NextIndex).
func (mt *MerkleTree) Leaves() []types.Node {
	leaves := make([]types.Node, mt.nextIndex)
	for i := range leaves {
		leaves[i] = mt.node(0, uint64(i))
	}
	return leaves
}

// Append writes leaf at NextIndex and returns the index used.
func (mt *MerkleTree) Append(leaf types.Node) (uint32, error) {
	if uint64(mt.nextIndex) >= mt.Capacity() {
		return 0, fmt.Errorf("tree is full (capacity %d)", mt.Capacity())
	}
	index := mt.nextIndex
	mt.updatePath(index, leaf)
	mt.nextIndex++
	return index, nil
}

// UpdateLeaf replaces the leaf at index and rehashes its path. Writing past
// the append cursor moves the cursor to index+1.
func (mt *MerkleTree) UpdateLeaf(index uint32, leaf types.Node) error {
	if uint64(index) >= mt.Capacity() {
		return fmt.Errorf("leaf index %d out of bounds (capacity %d)", index, mt.Capacity())
	}
	mt.updatePath(index, leaf)
	if index >= mt.nextIndex {
		mt.nextIndex = index + 1
	}
	return nil
}

// GenerateProof creates a full-depth proof for the leaf at index against the
// current root.
func (mt *MerkleTree) GenerateProof(index uint32) (*types.Proof, error) {
	return mt.GenerateMinimalProof(index, 0)
}

// GenerateMinimalProof creates a proof with the top canopyDepth siblings
// removed. A concurrent tree with that canopy depth fills them in itself.
func (mt *MerkleTree) GenerateMinimalProof(index uint32, canopyDepth uint32) (*types.Proof, error) {
	if uint64(index) >= mt.Capacity() {
		return nil, fmt.Errorf("leaf index %d out of bounds (capacity %d)", index, mt.Capacity())
	}
	if canopyDepth > mt.depth {
		return nil, fmt.Errorf("canopy depth %d exceeds tree depth %d", canopyDepth, mt.depth)
	}

	proof := make([]types.Node, 0, mt.depth-canopyDepth)
	pos := uint64(index)
	for level := uint32(0); level < mt.depth-canopyDepth; level++ {
		proof = append(proof, mt.node(level, pos^1))
		pos >>= 1
	}

	return &types.Proof{
		Root:      mt.Root(),
		Leaf:      mt.node(0, uint64(index)),
		LeafIndex: index,
		Proof:     proof,
	}, nil
}

// Clone returns an independent copy of the tree.
func (mt *MerkleTree) Clone() *MerkleTree {
	levels := make([]map[uint64]types.Node, len(mt.levels))
	for i, level := range mt.levels {
		levels[i] = make(map[uint64]types.Node, len(level))
		for k, v := range level {
			levels[i][k] = v
		}
	}
	return &MerkleTree{
		depth:     mt.depth,
		levels:    levels,
		occupied:  mt.occupied.Clone(),
		nextIndex: mt.nextIndex,
	}
}

// VerifyProof checks that proof.Leaf hashes through proof.Proof to root.
func VerifyProof(proof *types.Proof, root types.Node) bool {
	if proof == nil {
		return false
	}
	return ComputeRoot(proof.Leaf, proof.LeafIndex, proof.Proof) == root
}

// VerifyFullProof is VerifyProof for a tree of the given depth: the proof must
// carry exactly depth nodes and the index must fit in the tree.
func VerifyFullProof(proof *types.Proof, root types.Node, depth uint32) bool {
	if proof == nil || uint32(len(proof.Proof)) != depth || uint64(proof.LeafIndex)>>depth != 0 {
		return false
	}
	return VerifyProof(proof, root)
}

func (mt *MerkleTree) updatePath(index uint32, leaf types.Node) {
	if leaf.IsEmpty() {
		mt.occupied.Clear(uint(index))
	} else {
		mt.occupied.Set(uint(index))
	}

	pos := uint64(index)
	node := leaf
	mt.setNode(0, pos, node)
	for level := uint32(0); level < mt.depth; level++ {
		sibling := mt.node(level, pos^1)
		node = HashToParent(node, sibling, pos&1 == 0)
		pos >>= 1
		mt.setNode(level+1, pos, node)
	}
}

func (mt *MerkleTree) node(level uint32, pos uint64) types.Node {
	if n, ok := mt.levels[level][pos]; ok {
		return n
	}
	return EmptyNode(level)
}

func (mt *MerkleTree) setNode(level uint32, pos uint64, n types.Node) {
	if n == EmptyNode(level) {
		delete(mt.levels[level], pos)
		return
	}
	mt.levels[level][pos] = n
}
