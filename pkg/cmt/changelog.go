package cmt

import (
	"math/bits"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/merkle"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
)

// ChangeLog records one committed leaf update: the new root and every node
// on the updated path, leaf first. The direction taken at level i is bit i
// of Index.
type ChangeLog struct {
	Root  types.Node
	Path  []types.Node
	Index uint32
}

func newChangeLog(maxDepth uint32) ChangeLog {
	return ChangeLog{Path: make([]types.Node, maxDepth)}
}

// Leaf returns the leaf value written by this change.
func (cl *ChangeLog) Leaf() types.Node {
	return cl.Path[0]
}

// PathNodes returns the changed path with heap indices, leaf first and root
// last, as published in change log events.
func (cl *ChangeLog) PathNodes() []types.PathNode {
	depth := uint32(len(cl.Path))
	nodes := make([]types.PathNode, 0, depth+1)
	for level := uint32(0); level < depth; level++ {
		nodes = append(nodes, types.PathNode{
			Node:  cl.Path[level],
			Index: (uint32(1) << (depth - level)) + (cl.Index >> level),
		})
	}
	return append(nodes, types.PathNode{Node: cl.Root, Index: 1})
}

func (cl *ChangeLog) clone() ChangeLog {
	path := make([]types.Node, len(cl.Path))
	copy(path, cl.Path)
	return ChangeLog{Root: cl.Root, Path: path, Index: cl.Index}
}

// replaceAndRecomputePath overwrites this entry with the path produced by
// writing leaf at index under proof, and returns the new root.
func (cl *ChangeLog) replaceAndRecomputePath(index uint32, leaf types.Node, proof []types.Node) types.Node {
	cl.Index = index
	node := leaf
	for i, sibling := range proof {
		cl.Path[i] = node
		node = merkle.HashToParent(node, sibling, (index>>uint(i))&1 == 0)
	}
	cl.Root = node
	return node
}

// updateProofOrLeaf brings a proof for leafIndex forward across this change.
// A change to another leaf alters exactly one sibling of leafIndex: the one at
// the highest bit where the two indices differ. A change to leafIndex itself
// alters the leaf.
func (cl *ChangeLog) updateProofOrLeaf(leafIndex uint32, proof []types.Node, leaf *types.Node) {
	if leafIndex == cl.Index {
		*leaf = cl.Leaf()
		return
	}
	critbit := bits.Len32(leafIndex^cl.Index) - 1
	proof[critbit] = cl.Path[critbit]
}
