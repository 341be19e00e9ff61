package merkle

import (
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
)

// randomLeaves generates n random non-empty leaves
func randomLeaves(n int) []types.Node {
	leaves := make([]types.Node, n)
	for i := range leaves {
		_, _ = rand.Read(leaves[i][:])
	}
	return leaves
}

// naiveRoot computes the root of a full tree by hashing every level
func naiveRoot(depth uint32, leaves []types.Node) types.Node {
	level := make([]types.Node, 1<<depth)
	copy(level, leaves)
	for len(level) > 1 {
		next := make([]types.Node, len(level)/2)
		for i := range next {
			next[i] = HashPair(level[2*i], level[2*i+1])
		}
		level = next
	}
	return level[0]
}

func TestHashPairMatchesKeccak(t *testing.T) {
	left := types.Node{1, 2, 3}
	right := types.Node{4, 5, 6}

	expected := crypto.Keccak256(left[:], right[:])
	got := HashPair(left, right)
	require.Equal(t, expected, got[:])

	// Order matters
	require.NotEqual(t, HashPair(left, right), HashPair(right, left))
}

func TestHashLeaf(t *testing.T) {
	payload := []byte("leaf payload")
	h1 := HashLeaf(payload)
	h2 := HashLeaf(payload)
	require.Equal(t, h1, h2)
	require.Equal(t, crypto.Keccak256(payload), h1[:])
	require.NotEqual(t, h1, HashLeaf([]byte("other payload")))
}

func TestEmptyNode(t *testing.T) {
	require.Equal(t, types.EmptyNode, EmptyNode(0))
	require.Equal(t, HashPair(types.EmptyNode, types.EmptyNode), EmptyNode(1))
	for level := uint32(1); level <= 10; level++ {
		require.Equal(t, HashPair(EmptyNode(level-1), EmptyNode(level-1)), EmptyNode(level))
	}

	require.Panics(t, func() { EmptyNode(MaxSupportedDepth + 1) })
}

func TestNewMerkleTree(t *testing.T) {
	testCases := []struct {
		name      string
		depth     uint32
		numLeaves int
	}{
		{"Empty depth 3", 3, 0},
		{"Single leaf", 3, 1},
		{"Partial", 3, 5},
		{"Full depth 3", 3, 8},
		{"Full depth 5", 5, 32},
		{"Partial depth 6", 6, 17},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			leaves := randomLeaves(tc.numLeaves)
			tree, err := NewMerkleTree(tc.depth, leaves)
			require.NoError(t, err)

			require.Equal(t, naiveRoot(tc.depth, leaves), tree.Root())
			require.Equal(t, uint32(tc.numLeaves), tree.NextIndex())
			require.Equal(t, uint(tc.numLeaves), tree.NonEmptyCount())
			require.Equal(t, tc.numLeaves == 0, tree.IsEmpty())
			require.Equal(t, leaves, tree.Leaves())
		})
	}
}

func TestNewMerkleTreeInvalid(t *testing.T) {
	_, err := NewMerkleTree(0, nil)
	require.Error(t, err)

	_, err = NewMerkleTree(MaxSupportedDepth+1, nil)
	require.Error(t, err)

	_, err = NewMerkleTree(2, randomLeaves(5))
	require.Error(t, err)
	require.Contains(t, err.Error(), "cannot fit")
}

func TestEmptyTreeRoot(t *testing.T) {
	for depth := uint32(1); depth <= 10; depth++ {
		tree, err := NewMerkleTree(depth, nil)
		require.NoError(t, err)
		require.Equal(t, EmptyNode(depth), tree.Root())
	}
}

func TestAppendMatchesBulkBuild(t *testing.T) {
	leaves := randomLeaves(13)

	bulk, err := NewMerkleTree(4, leaves)
	require.NoError(t, err)

	incremental, err := NewMerkleTree(4, nil)
	require.NoError(t, err)
	for i, leaf := range leaves {
		idx, err := incremental.Append(leaf)
		require.NoError(t, err)
		require.Equal(t, uint32(i), idx)
	}

	require.Equal(t, bulk.Root(), incremental.Root())
}

func TestAppendFull(t *testing.T) {
	tree, err := NewMerkleTree(2, randomLeaves(4))
	require.NoError(t, err)

	_, err = tree.Append(types.Node{1})
	require.Error(t, err)
	require.Contains(t, err.Error(), "full")
}

func TestUpdateLeaf(t *testing.T) {
	leaves := randomLeaves(8)
	tree, err := NewMerkleTree(3, leaves)
	require.NoError(t, err)

	newLeaf := types.Node{0xaa}
	require.NoError(t, tree.UpdateLeaf(5, newLeaf))
	leaves[5] = newLeaf
	require.Equal(t, naiveRoot(3, leaves), tree.Root())

	got, err := tree.Leaf(5)
	require.NoError(t, err)
	require.Equal(t, newLeaf, got)

	// Clearing every leaf restores the empty root
	for i := uint32(0); i < 8; i++ {
		require.NoError(t, tree.UpdateLeaf(i, types.EmptyNode))
	}
	require.True(t, tree.IsEmpty())
	require.Equal(t, EmptyNode(3), tree.Root())

	require.Error(t, tree.UpdateLeaf(8, newLeaf))
}

func TestUpdateLeafPastCursor(t *testing.T) {
	tree, err := NewMerkleTree(3, randomLeaves(2))
	require.NoError(t, err)

	require.NoError(t, tree.UpdateLeaf(6, types.Node{7}))
	require.Equal(t, uint32(7), tree.NextIndex())
}

func TestGenerateAndVerifyProof(t *testing.T) {
	leaves := randomLeaves(11)
	tree, err := NewMerkleTree(4, leaves)
	require.NoError(t, err)

	for i := uint32(0); i < 16; i++ {
		proof, err := tree.GenerateProof(i)
		require.NoError(t, err)
		require.Len(t, proof.Proof, 4)
		require.Equal(t, tree.Root(), proof.Root)
		require.True(t, VerifyProof(proof, tree.Root()), "proof for leaf %d should be valid", i)
	}
}

func TestMerkleProofVerification(t *testing.T) {
	tree, err := NewMerkleTree(3, randomLeaves(4))
	require.NoError(t, err)

	t.Run("Valid proof", func(t *testing.T) {
		proof, err := tree.GenerateProof(0)
		require.NoError(t, err)
		require.True(t, VerifyProof(proof, tree.Root()))
	})

	t.Run("Invalid proof - wrong root", func(t *testing.T) {
		proof, err := tree.GenerateProof(0)
		require.NoError(t, err)
		require.False(t, VerifyProof(proof, types.Node{1, 2, 3, 4, 5}))
	})

	t.Run("Invalid proof - tampered leaf", func(t *testing.T) {
		proof, err := tree.GenerateProof(0)
		require.NoError(t, err)
		proof.Leaf[0] ^= 0xFF
		require.False(t, VerifyProof(proof, tree.Root()))
	})

	t.Run("Invalid proof - tampered sibling", func(t *testing.T) {
		proof, err := tree.GenerateProof(0)
		require.NoError(t, err)
		for level := range proof.Proof {
			tampered := proof.Clone()
			tampered.Proof[level][31] ^= 0x01
			require.False(t, VerifyProof(tampered, tree.Root()), "level %d", level)
		}
	})

	t.Run("Invalid proof - wrong index", func(t *testing.T) {
		proof, err := tree.GenerateProof(0)
		require.NoError(t, err)
		proof.LeafIndex = 1
		require.False(t, VerifyProof(proof, tree.Root()))
	})

	t.Run("Invalid proof - nil proof", func(t *testing.T) {
		require.False(t, VerifyProof(nil, tree.Root()))
	})
}

func TestVerifyFullProof(t *testing.T) {
	tree, err := NewMerkleTree(3, randomLeaves(4))
	require.NoError(t, err)

	proof, err := tree.GenerateProof(2)
	require.NoError(t, err)
	require.True(t, VerifyFullProof(proof, tree.Root(), 3))

	t.Run("Wrong depth", func(t *testing.T) {
		require.False(t, VerifyFullProof(proof, tree.Root(), 2))
		require.False(t, VerifyFullProof(proof, tree.Root(), 4))
	})

	t.Run("Partial path against an inner node", func(t *testing.T) {
		partial := proof.Clone()
		partial.Proof = partial.Proof[:2]
		inner := ComputeRoot(partial.Leaf, partial.LeafIndex, partial.Proof)
		require.True(t, VerifyProof(partial, inner))
		require.False(t, VerifyFullProof(partial, inner, 3))
	})

	t.Run("Index above capacity", func(t *testing.T) {
		aliased := proof.Clone()
		aliased.LeafIndex |= 1 << 3
		require.True(t, VerifyProof(aliased, tree.Root()))
		require.False(t, VerifyFullProof(aliased, tree.Root(), 3))
	})

	t.Run("Nil proof", func(t *testing.T) {
		require.False(t, VerifyFullProof(nil, tree.Root(), 3))
	})
}

func TestGenerateMinimalProof(t *testing.T) {
	tree, err := NewMerkleTree(5, randomLeaves(20))
	require.NoError(t, err)

	full, err := tree.GenerateProof(9)
	require.NoError(t, err)

	for canopy := uint32(0); canopy <= 5; canopy++ {
		t.Run(fmt.Sprintf("Canopy_%d", canopy), func(t *testing.T) {
			minimal, err := tree.GenerateMinimalProof(9, canopy)
			require.NoError(t, err)
			require.Len(t, minimal.Proof, int(5-canopy))
			require.Equal(t, full.Proof[:5-canopy], minimal.Proof)
		})
	}

	_, err = tree.GenerateMinimalProof(9, 6)
	require.Error(t, err)

	_, err = tree.GenerateProof(32)
	require.Error(t, err)
}

func TestCloneIsIndependent(t *testing.T) {
	tree, err := NewMerkleTree(3, randomLeaves(5))
	require.NoError(t, err)

	clone := tree.Clone()
	require.Equal(t, tree.Root(), clone.Root())

	require.NoError(t, clone.UpdateLeaf(2, types.Node{9}))
	require.NotEqual(t, tree.Root(), clone.Root())
	require.Equal(t, uint(5), tree.NonEmptyCount())
}

func TestMerkleTreeDeterminism(t *testing.T) {
	leaves := randomLeaves(10)

	tree1, err := NewMerkleTree(4, leaves)
	require.NoError(t, err)
	tree2, err := NewMerkleTree(4, leaves)
	require.NoError(t, err)

	require.Equal(t, tree1.Root(), tree2.Root())
	require.Equal(t, tree1.Leaves(), tree2.Leaves())
}
