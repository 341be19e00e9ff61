package merkle

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
)

// MerkleTree is a fixed-depth binary merkle tree held entirely off-chain.
// Clients use it to build proofs and to predict the roots the concurrent
// tree will produce. Unset positions read back as the empty subtree root of
// their level, so memory grows with the number of written leaves only.
type MerkleTree struct {
	depth uint32

	// levels[0] holds leaves, levels[depth] holds the root.
	// Positions absent from a map are empty subtrees.
	levels []map[uint64]types.Node

	// occupied tracks which leaf indices hold a non-default node
	occupied *bitset.BitSet

	// nextIndex is the append cursor (number of appended leaves)
	nextIndex uint32
}
