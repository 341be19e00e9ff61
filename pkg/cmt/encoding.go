package cmt

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/config"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
)

// treeAccount is the persisted layout of a ConcurrentMerkleTree.
type treeAccount struct {
	MaxDepth       uint32
	MaxBufferSize  uint32
	CanopyDepth    uint32
	SequenceNumber uint64
	ActiveIndex    uint64
	BufferSize     uint64
	ChangeLogs     []changeLogAccount
	RightMostProof []types.Node
	RightMostLeaf  types.Node
	RightMostIndex uint32
	Canopy         []types.Node
}

type changeLogAccount struct {
	Root  types.Node
	Path  []types.Node
	Index uint32
}

// MarshalBinary encodes the tree as rlp.
func (t *ConcurrentMerkleTree) MarshalBinary() ([]byte, error) {
	acct := &treeAccount{
		MaxDepth:       t.maxDepth,
		MaxBufferSize:  t.maxBufferSize,
		CanopyDepth:    t.canopy.depth,
		SequenceNumber: t.sequenceNumber,
		ActiveIndex:    t.activeIndex,
		BufferSize:     t.bufferSize,
		ChangeLogs:     make([]changeLogAccount, len(t.changeLogs)),
		RightMostProof: t.rightMostPath.Proof,
		RightMostLeaf:  t.rightMostPath.Leaf,
		RightMostIndex: t.rightMostPath.Index,
		Canopy:         t.canopy.nodes,
	}
	for i, cl := range t.changeLogs {
		acct.ChangeLogs[i] = changeLogAccount{Root: cl.Root, Path: cl.Path, Index: cl.Index}
	}

	data, err := rlp.EncodeToBytes(acct)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tree: %w", err)
	}
	return data, nil
}

// UnmarshalBinary decodes a tree previously encoded with MarshalBinary and
// checks that its shape is internally consistent.
func (t *ConcurrentMerkleTree) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty data", ErrCorruptAccount)
	}

	var acct treeAccount
	if err := rlp.DecodeBytes(data, &acct); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptAccount, err)
	}

	cfg := &config.TreeConfig{
		MaxDepth:      acct.MaxDepth,
		MaxBufferSize: acct.MaxBufferSize,
		CanopyDepth:   acct.CanopyDepth,
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptAccount, err)
	}
	if len(acct.ChangeLogs) != int(acct.MaxBufferSize) {
		return fmt.Errorf("%w: %d change logs, expected %d", ErrCorruptAccount, len(acct.ChangeLogs), acct.MaxBufferSize)
	}
	if acct.ActiveIndex >= uint64(acct.MaxBufferSize) || acct.BufferSize == 0 || acct.BufferSize > uint64(acct.MaxBufferSize) {
		return fmt.Errorf("%w: ring buffer cursor out of range", ErrCorruptAccount)
	}
	if len(acct.RightMostProof) != int(acct.MaxDepth) || uint64(acct.RightMostIndex) > uint64(1)<<acct.MaxDepth {
		return fmt.Errorf("%w: malformed rightmost path", ErrCorruptAccount)
	}

	canopy := newCanopy(acct.MaxDepth, acct.CanopyDepth)
	if len(acct.Canopy) != len(canopy.nodes) {
		return fmt.Errorf("%w: canopy has %d nodes, expected %d", ErrCorruptAccount, len(acct.Canopy), len(canopy.nodes))
	}
	copy(canopy.nodes, acct.Canopy)

	logs := make([]ChangeLog, len(acct.ChangeLogs))
	for i, cl := range acct.ChangeLogs {
		if len(cl.Path) != int(acct.MaxDepth) {
			return fmt.Errorf("%w: change log %d has path length %d", ErrCorruptAccount, i, len(cl.Path))
		}
		logs[i] = ChangeLog{Root: cl.Root, Path: cl.Path, Index: cl.Index}
	}

	*t = ConcurrentMerkleTree{
		maxDepth:       acct.MaxDepth,
		maxBufferSize:  acct.MaxBufferSize,
		sequenceNumber: acct.SequenceNumber,
		activeIndex:    acct.ActiveIndex,
		bufferSize:     acct.BufferSize,
		changeLogs:     logs,
		rightMostPath: Path{
			Proof: acct.RightMostProof,
			Leaf:  acct.RightMostLeaf,
			Index: acct.RightMostIndex,
		},
		canopy: canopy,
	}
	return nil
}

// Decode is a convenience wrapper around UnmarshalBinary.
func Decode(data []byte) (*ConcurrentMerkleTree, error) {
	t := &ConcurrentMerkleTree{}
	if err := t.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return t, nil
}
