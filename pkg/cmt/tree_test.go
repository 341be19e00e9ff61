package cmt

import (
	"crypto/rand"
	mrand "math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/config"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/merkle"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
)

func randomNode(t *testing.T) types.Node {
	t.Helper()
	var n types.Node
	_, err := rand.Read(n[:])
	require.NoError(t, err)
	return n
}

func newTestTree(t *testing.T, depth, buffer, canopy uint32) *ConcurrentMerkleTree {
	t.Helper()
	tree, err := New(&config.TreeConfig{MaxDepth: depth, MaxBufferSize: buffer, CanopyDepth: canopy})
	require.NoError(t, err)
	return tree
}

// populate appends n random leaves to both the tree and an off-chain mirror.
func populate(t *testing.T, tree *ConcurrentMerkleTree, n int) *merkle.MerkleTree {
	t.Helper()
	mirror, err := merkle.NewMerkleTree(tree.maxDepth, nil)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		leaf := randomNode(t)
		root, err := tree.Append(leaf)
		require.NoError(t, err)
		_, err = mirror.Append(leaf)
		require.NoError(t, err)
		require.Equal(t, mirror.Root(), root)
	}
	return mirror
}

func proofFor(t *testing.T, mirror *merkle.MerkleTree, index uint32) *types.Proof {
	t.Helper()
	p, err := mirror.GenerateProof(index)
	require.NoError(t, err)
	return p
}

func snapshot(t *testing.T, tree *ConcurrentMerkleTree) []byte {
	t.Helper()
	data, err := tree.MarshalBinary()
	require.NoError(t, err)
	return data
}

func TestNew(t *testing.T) {
	tree := newTestTree(t, 10, 16, 3)

	assert.Equal(t, merkle.EmptyNode(10), tree.Root())
	assert.Equal(t, uint64(0), tree.SequenceNumber())
	assert.Equal(t, uint64(0), tree.ActiveIndex())
	assert.Equal(t, uint64(1), tree.BufferSize())
	assert.Equal(t, uint32(0), tree.NextIndex())
	assert.Equal(t, uint64(1024), tree.Capacity())
	assert.Equal(t, 14, tree.Canopy().Len())
	assert.True(t, tree.IsEmpty())
	assert.Equal(t, &config.TreeConfig{MaxDepth: 10, MaxBufferSize: 16, CanopyDepth: 3}, tree.Config())
}

func TestNewInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.TreeConfig
	}{
		{"nil config", nil},
		{"zero depth", &config.TreeConfig{MaxDepth: 0, MaxBufferSize: 8}},
		{"depth too large", &config.TreeConfig{MaxDepth: config.MaxTreeDepth + 1, MaxBufferSize: 8}},
		{"buffer not power of two", &config.TreeConfig{MaxDepth: 5, MaxBufferSize: 12}},
		{"zero buffer", &config.TreeConfig{MaxDepth: 5, MaxBufferSize: 0}},
		{"canopy deeper than tree", &config.TreeConfig{MaxDepth: 5, MaxBufferSize: 8, CanopyDepth: 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.ErrorIs(t, err, ErrInvalidTreeConfig)
		})
	}
}

func TestAppendMatchesOffChain(t *testing.T) {
	tree := newTestTree(t, 5, 8, 2)
	mirror := populate(t, tree, 32)

	assert.Equal(t, mirror.Root(), tree.Root())
	assert.Equal(t, uint32(32), tree.NextIndex())
	assert.Equal(t, uint64(32), tree.SequenceNumber())
	assert.Equal(t, uint64(8), tree.BufferSize())
	assert.Equal(t, uint64(32%8), tree.ActiveIndex())

	_, err := tree.Append(randomNode(t))
	require.ErrorIs(t, err, ErrTreeFull)
	assert.Equal(t, mirror.Root(), tree.Root())
}

func TestAppendEmptyLeaf(t *testing.T) {
	tree := newTestTree(t, 4, 4, 0)
	before := snapshot(t, tree)

	_, err := tree.Append(types.EmptyNode)
	require.ErrorIs(t, err, ErrCannotAppendEmptyLeaf)
	assert.Equal(t, before, snapshot(t, tree))
}

func TestReplaceFreshProof(t *testing.T) {
	tree := newTestTree(t, 6, 16, 0)
	mirror := populate(t, tree, 20)

	for i := uint32(0); i < 20; i++ {
		proof := proofFor(t, mirror, i)
		newLeaf := randomNode(t)

		root, err := tree.Replace(proof, newLeaf)
		require.NoError(t, err)
		require.NoError(t, mirror.UpdateLeaf(i, newLeaf))
		require.Equal(t, mirror.Root(), root)
	}
}

func TestReplaceDisjointLeavesEitherOrder(t *testing.T) {
	base := newTestTree(t, 8, 32, 0)
	mirror := populate(t, base, 100)

	p1 := proofFor(t, mirror, 3)
	p2 := proofFor(t, mirror, 77)
	leaf1, leaf2 := randomNode(t), randomNode(t)

	expected := mirror.Clone()
	require.NoError(t, expected.UpdateLeaf(3, leaf1))
	require.NoError(t, expected.UpdateLeaf(77, leaf2))

	forward := base.Clone()
	_, err := forward.Replace(p1, leaf1)
	require.NoError(t, err)
	_, err = forward.Replace(p2, leaf2)
	require.NoError(t, err)

	reverse := base.Clone()
	_, err = reverse.Replace(p2, leaf2)
	require.NoError(t, err)
	_, err = reverse.Replace(p1, leaf1)
	require.NoError(t, err)

	assert.Equal(t, expected.Root(), forward.Root())
	assert.Equal(t, expected.Root(), reverse.Root())
}

func TestReplaceSiblingLeaves(t *testing.T) {
	// Leaves 4 and 5 share every ancestor; the change to one is the other's
	// level-0 sibling.
	tree := newTestTree(t, 4, 8, 0)
	mirror := populate(t, tree, 16)

	p4 := proofFor(t, mirror, 4)
	p5 := proofFor(t, mirror, 5)
	leaf4, leaf5 := randomNode(t), randomNode(t)

	_, err := tree.Replace(p4, leaf4)
	require.NoError(t, err)
	root, err := tree.Replace(p5, leaf5)
	require.NoError(t, err)

	require.NoError(t, mirror.UpdateLeaf(4, leaf4))
	require.NoError(t, mirror.UpdateLeaf(5, leaf5))
	assert.Equal(t, mirror.Root(), root)
}

func TestReplaceSameLeafConflict(t *testing.T) {
	tree := newTestTree(t, 5, 8, 0)
	mirror := populate(t, tree, 10)

	first := proofFor(t, mirror, 6)
	second := first.Clone()

	_, err := tree.Replace(first, randomNode(t))
	require.NoError(t, err)

	before := snapshot(t, tree)
	_, err = tree.Replace(second, randomNode(t))
	require.ErrorIs(t, err, ErrStaleProofUnrecoverable)
	assert.Equal(t, before, snapshot(t, tree))
}

func TestReplaceBeyondBufferWindow(t *testing.T) {
	tests := []struct {
		name        string
		commits     int
		expectedErr error
	}{
		{"within window", 3, nil},
		{"root evicted", 4, ErrStaleProofUnrecoverable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := newTestTree(t, 5, 4, 0)
			mirror := populate(t, tree, 16)

			stale := proofFor(t, mirror, 0)
			for i := 0; i < tt.commits; i++ {
				idx := uint32(8 + i)
				leaf := randomNode(t)
				_, err := tree.Replace(proofFor(t, mirror, idx), leaf)
				require.NoError(t, err)
				require.NoError(t, mirror.UpdateLeaf(idx, leaf))
			}

			before := snapshot(t, tree)
			leaf := randomNode(t)
			root, err := tree.Replace(stale, leaf)
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
				assert.Equal(t, before, snapshot(t, tree))
				return
			}
			require.NoError(t, err)
			require.NoError(t, mirror.UpdateLeaf(0, leaf))
			assert.Equal(t, mirror.Root(), root)
		})
	}
}

func TestReplaceMinimalProof(t *testing.T) {
	base := newTestTree(t, 6, 16, 3)
	mirror := populate(t, base, 40)
	newLeaf := randomNode(t)

	minimal, err := mirror.GenerateMinimalProof(21, 3)
	require.NoError(t, err)
	require.Len(t, minimal.Proof, 3)
	full := proofFor(t, mirror, 21)

	a := base.Clone()
	rootA, err := a.Replace(minimal, newLeaf)
	require.NoError(t, err)

	b := base.Clone()
	rootB, err := b.Replace(full, newLeaf)
	require.NoError(t, err)

	require.NoError(t, mirror.UpdateLeaf(21, newLeaf))
	assert.Equal(t, mirror.Root(), rootA)
	assert.Equal(t, rootA, rootB)
}

func TestReplaceStaleMinimalProof(t *testing.T) {
	tree := newTestTree(t, 6, 16, 4)
	mirror := populate(t, tree, 64)

	stale, err := mirror.GenerateMinimalProof(2, 4)
	require.NoError(t, err)

	// Changes in other canopy subtrees move cached nodes the stale proof omits.
	for _, idx := range []uint32{63, 17, 3} {
		leaf := randomNode(t)
		_, err := tree.Replace(proofFor(t, mirror, idx), leaf)
		require.NoError(t, err)
		require.NoError(t, mirror.UpdateLeaf(idx, leaf))
	}

	leaf := randomNode(t)
	root, err := tree.Replace(stale, leaf)
	require.NoError(t, err)
	require.NoError(t, mirror.UpdateLeaf(2, leaf))
	assert.Equal(t, mirror.Root(), root)
}

func TestReplaceProofTooShort(t *testing.T) {
	tree := newTestTree(t, 6, 8, 2)
	mirror := populate(t, tree, 8)

	proof, err := mirror.GenerateMinimalProof(1, 3)
	require.NoError(t, err)

	before := snapshot(t, tree)
	_, err = tree.Replace(proof, randomNode(t))
	require.ErrorIs(t, err, ErrInvalidProof)
	assert.Equal(t, before, snapshot(t, tree))
}

func TestReplaceProofTooLong(t *testing.T) {
	tree := newTestTree(t, 4, 8, 0)
	mirror := populate(t, tree, 4)

	proof := proofFor(t, mirror, 1)
	proof.Proof = append(proof.Proof, types.Node{})

	_, err := tree.Replace(proof, randomNode(t))
	require.ErrorIs(t, err, ErrInvalidProof)
}

func TestReplaceIndexOutOfBounds(t *testing.T) {
	tree := newTestTree(t, 3, 8, 0)
	mirror := populate(t, tree, 5)

	tests := []struct {
		name  string
		index uint32
	}{
		{"at capacity", 8},
		{"far beyond capacity", 1 << 20},
		{"not yet appended", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := snapshot(t, tree)
			proof := proofFor(t, mirror, 0)
			proof.LeafIndex = tt.index

			_, err := tree.Replace(proof, randomNode(t))
			require.ErrorIs(t, err, ErrIndexOutOfBounds)
			assert.Equal(t, before, snapshot(t, tree))
		})
	}
}

func TestForgedProofRejected(t *testing.T) {
	tree := newTestTree(t, 3, 8, 0)
	mirror := populate(t, tree, 8)
	target := proofFor(t, mirror, 5)

	zeros := make([]types.Node, 3)
	forgedLeaf := randomNode(t)

	tests := []struct {
		name        string
		proof       *types.Proof
		expectedErr error
	}{
		{
			name:        "zero proof with unknown root",
			proof:       &types.Proof{Root: randomNode(t), Leaf: target.Leaf, LeafIndex: 5, Proof: zeros},
			expectedErr: ErrInvalidProof,
		},
		{
			name: "zero proof with self-consistent root after eviction",
			proof: &types.Proof{
				Root:      merkle.ComputeRoot(forgedLeaf, 5, zeros),
				Leaf:      forgedLeaf,
				LeafIndex: 5,
				Proof:     zeros,
			},
			expectedErr: ErrStaleProofUnrecoverable,
		},
		{
			name:        "fabricated siblings under a genuine historical root",
			proof:       &types.Proof{Root: tree.changeLogs[2].Root, Leaf: target.Leaf, LeafIndex: 5, Proof: zeros},
			expectedErr: ErrInvalidProof,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			activeIndex := tree.ActiveIndex()
			before := snapshot(t, tree)

			_, err := tree.Replace(tt.proof, randomNode(t))
			require.ErrorIs(t, err, tt.expectedErr)
			assert.Equal(t, activeIndex, tree.ActiveIndex())
			assert.Equal(t, before, snapshot(t, tree))
		})
	}
}

func TestUnknownRootWithFullHistory(t *testing.T) {
	tests := []struct {
		name        string
		buffer      uint32
		expectedErr error
	}{
		{"history intact", 16, ErrInvalidProof},
		{"history evicted", 8, ErrStaleProofUnrecoverable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := newTestTree(t, 3, tt.buffer, 0)
			populate(t, tree, 8)

			zeros := make([]types.Node, 3)
			forgedLeaf := randomNode(t)
			forged := &types.Proof{
				Root:      merkle.ComputeRoot(forgedLeaf, 5, zeros),
				Leaf:      forgedLeaf,
				LeafIndex: 5,
				Proof:     zeros,
			}

			before := snapshot(t, tree)
			require.ErrorIs(t, tree.Verify(forged), tt.expectedErr)
			_, err := tree.Replace(forged, randomNode(t))
			require.ErrorIs(t, err, tt.expectedErr)
			assert.Equal(t, before, snapshot(t, tree))
		})
	}
}

func TestConcurrentReplacesAgainstOneRoot(t *testing.T) {
	tree := newTestTree(t, 6, 64, 0)
	mirror := populate(t, tree, 64)

	proofs := make([]*types.Proof, 64)
	leaves := make([]types.Node, 64)
	for i := range proofs {
		proofs[i] = proofFor(t, mirror, uint32(i))
		leaves[i] = randomNode(t)
	}

	order := mrand.New(mrand.NewSource(42)).Perm(64)
	for _, i := range order {
		_, err := tree.Replace(proofs[i], leaves[i])
		require.NoError(t, err, "replace of leaf %d", i)
	}

	for i, leaf := range leaves {
		require.NoError(t, mirror.UpdateLeaf(uint32(i), leaf))
	}
	assert.Equal(t, mirror.Root(), tree.Root())
	assert.Equal(t, uint64(128), tree.SequenceNumber())
}

func TestVerify(t *testing.T) {
	tree := newTestTree(t, 5, 8, 2)
	mirror := populate(t, tree, 20)

	for i := uint32(0); i < 20; i++ {
		require.NoError(t, tree.Verify(proofFor(t, mirror, i)))
	}

	// Unappended slots hold the empty leaf.
	require.NoError(t, tree.Verify(proofFor(t, mirror, 25)))

	wrong := proofFor(t, mirror, 4)
	wrong.Leaf = randomNode(t)
	require.ErrorIs(t, tree.Verify(wrong), ErrInvalidProof)

	outOfRange := proofFor(t, mirror, 4)
	outOfRange.LeafIndex = 32
	require.ErrorIs(t, tree.Verify(outOfRange), ErrIndexOutOfBounds)

	require.ErrorIs(t, tree.Verify(nil), ErrInvalidProof)
}

func TestVerifySingleByteFlip(t *testing.T) {
	tree := newTestTree(t, 4, 8, 0)
	mirror := populate(t, tree, 16)
	before := snapshot(t, tree)

	proof := proofFor(t, mirror, 9)
	require.NoError(t, tree.Verify(proof))

	for level := range proof.Proof {
		for _, b := range []int{0, 17, 31} {
			flipped := proof.Clone()
			flipped.Proof[level][b] ^= 0x01
			assert.Error(t, tree.Verify(flipped), "level %d byte %d", level, b)
		}
	}

	flippedLeaf := proof.Clone()
	flippedLeaf.Leaf[0] ^= 0x80
	assert.Error(t, tree.Verify(flippedLeaf))

	flippedRoot := proof.Clone()
	flippedRoot.Root[31] ^= 0x01
	assert.Error(t, tree.Verify(flippedRoot))

	assert.Equal(t, before, snapshot(t, tree))
}

func TestVerifyStaleProof(t *testing.T) {
	tree := newTestTree(t, 5, 8, 0)
	mirror := populate(t, tree, 12)

	stale := proofFor(t, mirror, 1)
	leaf := randomNode(t)
	_, err := tree.Replace(proofFor(t, mirror, 11), leaf)
	require.NoError(t, err)
	require.NoError(t, mirror.UpdateLeaf(11, leaf))

	require.NoError(t, tree.Verify(stale))

	_, err = tree.Replace(proofFor(t, mirror, 1), randomNode(t))
	require.NoError(t, err)
	require.ErrorIs(t, tree.Verify(stale), ErrStaleProofUnrecoverable)
}

func TestInterleavedAppendAndReplace(t *testing.T) {
	tree := newTestTree(t, 7, 16, 3)
	mirror := populate(t, tree, 1)
	rng := mrand.New(mrand.NewSource(7))

	for step := 0; step < 200; step++ {
		leaf := randomNode(t)
		if rng.Intn(3) == 0 && uint64(tree.NextIndex()) < tree.Capacity() {
			root, err := tree.Append(leaf)
			require.NoError(t, err)
			_, err = mirror.Append(leaf)
			require.NoError(t, err)
			require.Equal(t, mirror.Root(), root)
			continue
		}
		idx := uint32(rng.Intn(int(tree.NextIndex())))
		proof, err := mirror.GenerateMinimalProof(idx, 3)
		require.NoError(t, err)
		root, err := tree.Replace(proof, leaf)
		require.NoError(t, err)
		require.NoError(t, mirror.UpdateLeaf(idx, leaf))
		require.Equal(t, mirror.Root(), root)
	}
}

func TestReplaceToEmpty(t *testing.T) {
	tree := newTestTree(t, 3, 8, 1)
	mirror := populate(t, tree, 6)
	assert.False(t, tree.IsEmpty())

	for i := uint32(0); i < 6; i++ {
		_, err := tree.Replace(proofFor(t, mirror, i), types.EmptyNode)
		require.NoError(t, err)
		require.NoError(t, mirror.UpdateLeaf(i, types.EmptyNode))
	}
	assert.True(t, tree.IsEmpty())
	assert.Equal(t, uint32(6), tree.NextIndex())

	// The append cursor does not move back.
	root, err := tree.Append(randomNode(t))
	require.NoError(t, err)
	assert.NotEqual(t, merkle.EmptyNode(3), root)
	assert.Equal(t, uint32(7), tree.NextIndex())
}

func TestCanopyTracksTree(t *testing.T) {
	tree := newTestTree(t, 5, 8, 3)
	mirror := populate(t, tree, 19)
	leaves := mirror.Leaves()

	for depth := uint32(1); depth <= 3; depth++ {
		for pos := uint32(0); pos < 1<<depth; pos++ {
			got, err := tree.Canopy().Get(depth, pos)
			require.NoError(t, err)
			assert.Equal(t, subtreeRoot(5-depth, pos, leaves), got, "depth %d pos %d", depth, pos)
		}
	}

	_, err := tree.Canopy().Get(0, 0)
	require.Error(t, err)
	_, err = tree.Canopy().Get(4, 0)
	require.Error(t, err)
	_, err = tree.Canopy().Get(2, 4)
	require.Error(t, err)
}

// subtreeRoot hashes the subtree of height level rooted at position pos.
func subtreeRoot(level, pos uint32, leaves []types.Node) types.Node {
	if level == 0 {
		if int(pos) < len(leaves) {
			return leaves[pos]
		}
		return types.EmptyNode
	}
	return merkle.HashPair(subtreeRoot(level-1, 2*pos, leaves), subtreeRoot(level-1, 2*pos+1, leaves))
}

func TestChangeLogPathNodes(t *testing.T) {
	tree := newTestTree(t, 3, 8, 0)
	mirror := populate(t, tree, 6)

	cl := tree.ActiveChangeLog()
	assert.Equal(t, uint32(5), cl.Index)
	assert.Equal(t, mirror.Root(), cl.Root)

	leaf, err := mirror.Leaf(5)
	require.NoError(t, err)
	assert.Equal(t, leaf, cl.Leaf())

	nodes := cl.PathNodes()
	require.Len(t, nodes, 4)
	assert.Equal(t, []uint32{13, 6, 3, 1}, []uint32{nodes[0].Index, nodes[1].Index, nodes[2].Index, nodes[3].Index})
	assert.Equal(t, leaf, nodes[0].Node)
	assert.Equal(t, mirror.Root(), nodes[3].Node)
}

func TestEncodingRoundTrip(t *testing.T) {
	tree := newTestTree(t, 6, 8, 2)
	mirror := populate(t, tree, 30)
	stale := proofFor(t, mirror, 3)

	leaf := randomNode(t)
	_, err := tree.Replace(proofFor(t, mirror, 20), leaf)
	require.NoError(t, err)
	require.NoError(t, mirror.UpdateLeaf(20, leaf))

	data, err := tree.MarshalBinary()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, tree.Root(), decoded.Root())
	assert.Equal(t, tree.SequenceNumber(), decoded.SequenceNumber())
	assert.Equal(t, tree.ActiveIndex(), decoded.ActiveIndex())
	assert.Equal(t, tree.BufferSize(), decoded.BufferSize())
	assert.Equal(t, tree.NextIndex(), decoded.NextIndex())
	assert.Equal(t, tree.Config(), decoded.Config())

	// History survives encoding.
	leaf = randomNode(t)
	root, err := decoded.Replace(stale, leaf)
	require.NoError(t, err)
	require.NoError(t, mirror.UpdateLeaf(3, leaf))
	assert.Equal(t, mirror.Root(), root)
}

func TestDecodeCorrupt(t *testing.T) {
	tree := newTestTree(t, 4, 4, 1)
	populate(t, tree, 3)
	data := snapshot(t, tree)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte{0xde, 0xad, 0xbe, 0xef}},
		{"truncated", data[:len(data)/2]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			require.ErrorIs(t, err, ErrCorruptAccount)
		})
	}
}
