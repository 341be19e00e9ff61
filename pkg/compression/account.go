package compression

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/cmt"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/config"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
)

// ProgramID is the Owner of every account this program creates.
const ProgramID = "compression"

const treeAccountVersion = 1

// Header is the fixed part of a tree account.
type Header struct {
	Version       uint8
	Authority     common.Address
	CreatedAt     uint64 // unix seconds
	MaxDepth      uint32
	MaxBufferSize uint32
	CanopyDepth   uint32
}

// TreeAccount is a decoded tree account.
type TreeAccount struct {
	Address common.Address
	Balance uint64
	Header  Header
	Tree    *cmt.ConcurrentMerkleTree
}

type treeAccountData struct {
	Header Header
	Tree   []byte
}

func (ta *TreeAccount) encode() (*types.Account, error) {
	tree, err := ta.Tree.MarshalBinary()
	if err != nil {
		return nil, err
	}
	data, err := rlp.EncodeToBytes(&treeAccountData{Header: ta.Header, Tree: tree})
	if err != nil {
		return nil, fmt.Errorf("failed to encode tree account: %w", err)
	}
	return &types.Account{
		Address: ta.Address,
		Owner:   ProgramID,
		Balance: ta.Balance,
		Data:    data,
	}, nil
}

func decodeTreeAccount(acct *types.Account) (*TreeAccount, error) {
	if acct.Owner != ProgramID {
		return nil, fmt.Errorf("%w: %s is owned by %q", ErrNotTreeAccount, acct.Address.Hex(), acct.Owner)
	}

	var data treeAccountData
	if err := rlp.DecodeBytes(acct.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", cmt.ErrCorruptAccount, err)
	}
	if data.Header.Version != treeAccountVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", cmt.ErrCorruptAccount, data.Header.Version)
	}

	tree, err := cmt.Decode(data.Tree)
	if err != nil {
		return nil, err
	}
	cfg := tree.Config()
	if cfg.MaxDepth != data.Header.MaxDepth || cfg.MaxBufferSize != data.Header.MaxBufferSize || cfg.CanopyDepth != data.Header.CanopyDepth {
		return nil, fmt.Errorf("%w: header shape does not match tree", cmt.ErrCorruptAccount)
	}

	return &TreeAccount{
		Address: acct.Address,
		Balance: acct.Balance,
		Header:  data.Header,
		Tree:    tree,
	}, nil
}

// Config returns the tree's shape as recorded in its header.
func (h *Header) Config() *config.TreeConfig {
	return &config.TreeConfig{
		MaxDepth:      h.MaxDepth,
		MaxBufferSize: h.MaxBufferSize,
		CanopyDepth:   h.CanopyDepth,
	}
}
