package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// NodeSize is the byte length of every tree node.
const NodeSize = 32

// Node is a 32-byte digest. Leaves, inner nodes and roots are all Nodes.
type Node [NodeSize]byte

// EmptyNode is the default leaf value.
var EmptyNode = Node{}

// IsEmpty reports whether n is the default node.
func (n Node) IsEmpty() bool {
	return n == EmptyNode
}

// Hex returns the 0x-prefixed hex encoding of the node.
func (n Node) Hex() string {
	return hexutil.Encode(n[:])
}

func (n Node) String() string {
	return n.Hex()
}

// MarshalText implements encoding.TextMarshaler so nodes render as hex in JSON.
func (n Node) MarshalText() ([]byte, error) {
	return hexutil.Bytes(n[:]).MarshalText()
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *Node) UnmarshalText(input []byte) error {
	var b hexutil.Bytes
	if err := b.UnmarshalText(input); err != nil {
		return err
	}
	if len(b) != NodeSize {
		return fmt.Errorf("node must be %d bytes, got %d", NodeSize, len(b))
	}
	copy(n[:], b)
	return nil
}

// NodeFromHex parses a 0x-prefixed (or bare) 64 character hex string.
func NodeFromHex(s string) (Node, error) {
	var n Node
	b, err := hexutil.Decode(ensureHexPrefix(s))
	if err != nil {
		return n, fmt.Errorf("invalid node hex %q: %w", s, err)
	}
	if len(b) != NodeSize {
		return n, fmt.Errorf("node must be %d bytes, got %d", NodeSize, len(b))
	}
	copy(n[:], b)
	return n, nil
}

// BytesToNode copies b into a node, left-padding with zeros when b is short
// and keeping the trailing 32 bytes when it is long.
func BytesToNode(b []byte) Node {
	var n Node
	if len(b) > NodeSize {
		b = b[len(b)-NodeSize:]
	}
	copy(n[NodeSize-len(b):], b)
	return n
}

func ensureHexPrefix(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s
	}
	return "0x" + s
}

// Proof is a leaf inclusion proof as submitted by a client.
//
// Root is the root the author believed current when the proof was built.
// Proof holds sibling nodes ordered from the leaf level upward and may be
// shorter than the tree depth when the tree's canopy covers the top levels.
type Proof struct {
	Root      Node   `json:"root"`
	Leaf      Node   `json:"leaf"`
	LeafIndex uint32 `json:"leafIndex"`
	Proof     []Node `json:"proof"`
}

// Clone returns a deep copy of the proof.
func (p *Proof) Clone() *Proof {
	if p == nil {
		return nil
	}
	nodes := make([]Node, len(p.Proof))
	copy(nodes, p.Proof)
	return &Proof{
		Root:      p.Root,
		Leaf:      p.Leaf,
		LeafIndex: p.LeafIndex,
		Proof:     nodes,
	}
}

// PathNode is one node of a changed path together with its heap index
// (root = 1, children of i = 2i and 2i+1).
type PathNode struct {
	Node  Node   `json:"node"`
	Index uint32 `json:"index"`
}

// Account is a generic ledger account: a balance plus program-owned data.
type Account struct {
	Address common.Address `json:"address"`
	Owner   string         `json:"owner"`
	Balance uint64         `json:"balance"`
	Data    []byte         `json:"data"`
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	data := make([]byte, len(a.Data))
	copy(data, a.Data)
	return &Account{
		Address: a.Address,
		Owner:   a.Owner,
		Balance: a.Balance,
		Data:    data,
	}
}
