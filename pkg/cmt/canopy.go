package cmt

import (
	"fmt"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/merkle"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
)

// Canopy caches the top levels of the tree below the root so that proofs may
// leave them out.
//
// Nodes are stored flat in heap order without the root: the node at depth d
// (root = depth 0) and position p lives at nodes[2^d + p - 2]. A zero entry
// means the subtree has never been written and reads back as the empty
// subtree root of its level.
type Canopy struct {
	maxDepth uint32
	depth    uint32
	nodes    []types.Node
}

func newCanopy(maxDepth, depth uint32) *Canopy {
	var size uint64
	if depth > 0 {
		size = (uint64(1) << (depth + 1)) - 2
	}
	return &Canopy{
		maxDepth: maxDepth,
		depth:    depth,
		nodes:    make([]types.Node, size),
	}
}

// Depth returns the number of cached levels below the root.
func (c *Canopy) Depth() uint32 {
	return c.depth
}

// Len returns the number of cached nodes.
func (c *Canopy) Len() int {
	return len(c.nodes)
}

// Get returns the cached node at depth (1..Depth) and position within that depth.
func (c *Canopy) Get(depth, position uint32) (types.Node, error) {
	if depth == 0 || depth > c.depth {
		return types.Node{}, fmt.Errorf("depth %d not cached (canopy depth %d)", depth, c.depth)
	}
	if uint64(position) >= uint64(1)<<depth {
		return types.Node{}, fmt.Errorf("position %d out of range at depth %d", position, depth)
	}
	return c.get(depth, position), nil
}

func (c *Canopy) get(depth, position uint32) types.Node {
	n := c.nodes[c.offset(depth, position)]
	if n.IsEmpty() {
		return merkle.EmptyNode(c.maxDepth - depth)
	}
	return n
}

func (c *Canopy) offset(depth, position uint32) uint64 {
	return (uint64(1) << depth) + uint64(position) - 2
}

// fillProof completes proof[supplied:] with cached siblings of the path to
// leafIndex. It fails when the canopy cannot cover the missing levels.
func (c *Canopy) fillProof(leafIndex uint32, proof []types.Node, supplied uint32) error {
	missing := c.maxDepth - supplied
	if missing > c.depth {
		return fmt.Errorf("%w: proof has %d nodes, tree requires at least %d",
			ErrInvalidProof, supplied, c.maxDepth-c.depth)
	}
	for level := supplied; level < c.maxDepth; level++ {
		depth := c.maxDepth - level
		sibling := (leafIndex >> level) ^ 1
		proof[level] = c.get(depth, sibling)
	}
	return nil
}

// update writes every cached node on the path recorded by cl.
func (c *Canopy) update(cl *ChangeLog) {
	for depth := uint32(1); depth <= c.depth; depth++ {
		level := c.maxDepth - depth
		c.nodes[c.offset(depth, cl.Index>>level)] = cl.Path[level]
	}
}

func (c *Canopy) clone() *Canopy {
	nodes := make([]types.Node, len(c.nodes))
	copy(nodes, c.nodes)
	return &Canopy{maxDepth: c.maxDepth, depth: c.depth, nodes: nodes}
}
