package merkle

import (
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
)

// MaxSupportedDepth is the deepest tree the hash engine precomputes empty
// subtree roots for.
const MaxSupportedDepth = 30

// emptyNodes[i] is the root of an all-default subtree of height i.
var emptyNodes = buildEmptyNodes()

func buildEmptyNodes() [MaxSupportedDepth + 1]types.Node {
	var nodes [MaxSupportedDepth + 1]types.Node
	nodes[0] = types.EmptyNode
	for i := 1; i <= MaxSupportedDepth; i++ {
		nodes[i] = HashPair(nodes[i-1], nodes[i-1])
	}
	return nodes
}

// HashPair computes keccak256(left || right).
// Both the concurrent tree and every off-chain mirror must use this function
// so that roots are bit-identical.
func HashPair(left, right types.Node) types.Node {
	var data [2 * types.NodeSize]byte
	copy(data[:types.NodeSize], left[:])
	copy(data[types.NodeSize:], right[:])

	return types.Node(crypto.Keccak256Hash(data[:]))
}

// HashLeaf computes keccak256(payload) for arbitrary leaf contents.
func HashLeaf(payload []byte) types.Node {
	return types.Node(crypto.Keccak256Hash(payload))
}

// EmptyNode returns the root of an empty subtree of the given height.
// Level 0 is the default leaf.
func EmptyNode(level uint32) types.Node {
	if level > MaxSupportedDepth {
		panic("BUG: empty node requested above MaxSupportedDepth")
	}
	return emptyNodes[level]
}

// HashToParent combines node with its sibling. isLeft is true when node is
// the left child.
func HashToParent(node, sibling types.Node, isLeft bool) types.Node {
	if isLeft {
		return HashPair(node, sibling)
	}
	return HashPair(sibling, node)
}

// ComputeRoot hashes leaf up through proof. The direction at level i is taken
// from bit i of index.
func ComputeRoot(leaf types.Node, index uint32, proof []types.Node) types.Node {
	node := leaf
	for i, sibling := range proof {
		node = HashToParent(node, sibling, (index>>uint(i))&1 == 0)
	}
	return node
}
