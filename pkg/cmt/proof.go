package cmt

import (
	"fmt"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/merkle"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
)

// proveLeaf checks proof against the current root, autocompleting it across
// change logs committed after proof.Root when necessary. On success it
// returns a full-depth proof valid for the current root. It does not modify
// the tree.
//
// Autocompletion only ever copies values recorded by committed change logs
// into the proof, and the result must still hash to the current root, so an
// unknown root or a fabricated sibling can never be turned into acceptance.
func (t *ConcurrentMerkleTree) proveLeaf(proof *types.Proof) ([]types.Node, error) {
	supplied := uint32(len(proof.Proof))
	if supplied > t.maxDepth {
		return nil, fmt.Errorf("%w: proof has %d nodes, tree depth is %d", ErrInvalidProof, supplied, t.maxDepth)
	}

	full := make([]types.Node, t.maxDepth)
	copy(full, proof.Proof)
	if supplied < t.maxDepth {
		if err := t.canopy.fillProof(proof.LeafIndex, full, supplied); err != nil {
			return nil, err
		}
	}

	current := t.Root()
	if proof.Root == current {
		if merkle.ComputeRoot(proof.Leaf, proof.LeafIndex, full) != current {
			return nil, fmt.Errorf("%w: leaf %d does not hash to the current root", ErrInvalidProof, proof.LeafIndex)
		}
		return full, nil
	}

	// A complete caller proof must at least be consistent with the root it
	// claims. Canopy-filled proofs carry current upper nodes and are only
	// checked against the current root after replay.
	if supplied == t.maxDepth && merkle.ComputeRoot(proof.Leaf, proof.LeafIndex, full) != proof.Root {
		return nil, fmt.Errorf("%w: proof does not hash to its claimed root %s", ErrInvalidProof, proof.Root)
	}

	start, ok := t.findRootInChangeLog(proof.Root)
	if !ok {
		// Until the ring buffer wraps it holds every root the tree has had.
		if !t.historyEvicted() {
			return nil, fmt.Errorf("%w: root %s was never a root of this tree", ErrInvalidProof, proof.Root)
		}
		return nil, fmt.Errorf("%w: root %s not found in the last %d change logs",
			ErrStaleProofUnrecoverable, proof.Root, t.bufferSize)
	}

	leaf := proof.Leaf
	if !t.fastForwardProof(&leaf, full, proof.LeafIndex, start) {
		return nil, fmt.Errorf("%w: leaf %d was modified after root %s",
			ErrStaleProofUnrecoverable, proof.LeafIndex, proof.Root)
	}

	if merkle.ComputeRoot(leaf, proof.LeafIndex, full) != current {
		return nil, fmt.Errorf("%w: autocompleted proof for leaf %d does not match the current root",
			ErrInvalidProof, proof.LeafIndex)
	}
	return full, nil
}

// historyEvicted reports whether any change log has been overwritten.
func (t *ConcurrentMerkleTree) historyEvicted() bool {
	return t.sequenceNumber+1 > uint64(t.maxBufferSize)
}

// findRootInChangeLog scans valid entries from newest to oldest. When a root
// occurs more than once the newest slot is used; the tree state is identical
// at every occurrence.
func (t *ConcurrentMerkleTree) findRootInChangeLog(root types.Node) (uint64, bool) {
	mask := uint64(t.maxBufferSize - 1)
	for i := uint64(0); i < t.bufferSize; i++ {
		j := (t.activeIndex - i) & mask
		if t.changeLogs[j].Root == root {
			return j, true
		}
	}
	return 0, false
}

// fastForwardProof replays every change log after slot start onto proof and
// leaf. It reports whether the leaf survived unchanged.
func (t *ConcurrentMerkleTree) fastForwardProof(leaf *types.Node, proof []types.Node, leafIndex uint32, start uint64) bool {
	mask := uint64(t.maxBufferSize - 1)
	updated := *leaf
	for j := start; j != t.activeIndex; {
		j = (j + 1) & mask
		t.changeLogs[j].updateProofOrLeaf(leafIndex, proof, &updated)
	}
	unchanged := updated == *leaf
	*leaf = updated
	return unchanged
}
