package claim

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/merkle"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/util"
)

// ProgramID is the Owner of claim contract accounts.
const ProgramID = "claim"

const stateVersion = 1

// Mode selects how eligibility is proven. A contract uses exactly one.
type Mode uint8

const (
	// ModeMerkle requires an inclusion proof of LeafFor(claimer, amount).
	ModeMerkle Mode = iota
	// ModeWhitelist requires the claimer to be in the stored whitelist.
	ModeWhitelist
)

func (m Mode) String() string {
	switch m {
	case ModeMerkle:
		return "merkle"
	case ModeWhitelist:
		return "whitelist"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMode accepts "merkle" or "whitelist".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "merkle":
		return ModeMerkle, nil
	case "whitelist":
		return ModeWhitelist, nil
	default:
		return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidParams, s)
	}
}

// Params configure a contract at Initialize.
type Params struct {
	Mode Mode
	// ClaimAmount is the per-claimer cap. Whitelist entries added with a zero
	// allowance receive it.
	ClaimAmount   uint64
	MaxTotalClaim uint64
	MaxNumNodes   uint64
	// MerkleRoot is the static eligibility root (ModeMerkle without Tree).
	MerkleRoot types.Node
	// MerkleDepth is the depth of the tree behind MerkleRoot. Claims must
	// present full proofs of exactly this length.
	MerkleDepth uint32
	// Tree, when set in ModeMerkle, proves eligibility against a live
	// concurrent tree instead of MerkleRoot.
	Tree common.Address
}

// WhitelistEntry is one whitelisted address and its allocation.
type WhitelistEntry struct {
	Address   common.Address
	Allowance uint64
}

// State is the persisted contract. Claimed and Whitelist are kept sorted by
// address.
type State struct {
	Version            uint8
	Authority          common.Address
	Mode               Mode
	ClaimAmount        uint64
	MaxTotalClaim      uint64
	MaxNumNodes        uint64
	TokenAmount        uint64
	TotalAmountClaimed uint64
	NumNodesClaimed    uint64
	MerkleRoot         types.Node
	MerkleDepth        uint32
	Tree               common.Address
	Claimed            []common.Address
	Whitelist          []WhitelistEntry
}

// LeafFor is the eligibility leaf for claimer and amount:
// keccak256(claimer || little-endian uint64 amount).
func LeafFor(claimer common.Address, amount uint64) types.Node {
	return merkle.HashLeaf(util.EncodeAddressAmount(claimer, amount))
}

// HasClaimed reports whether addr is in the claimed set.
func (s *State) HasClaimed(addr common.Address) bool {
	i := s.claimedIndex(addr)
	return i < len(s.Claimed) && s.Claimed[i] == addr
}

// Allowance returns the whitelist allocation of addr.
func (s *State) Allowance(addr common.Address) (uint64, bool) {
	i := s.whitelistIndex(addr)
	if i < len(s.Whitelist) && s.Whitelist[i].Address == addr {
		return s.Whitelist[i].Allowance, true
	}
	return 0, false
}

// Remaining is the funded amount not yet claimed.
func (s *State) Remaining() uint64 {
	if s.TotalAmountClaimed >= s.TokenAmount {
		return 0
	}
	return s.TokenAmount - s.TotalAmountClaimed
}

func (s *State) claimedIndex(addr common.Address) int {
	return sort.Search(len(s.Claimed), func(i int) bool {
		return bytes.Compare(s.Claimed[i][:], addr[:]) >= 0
	})
}

func (s *State) whitelistIndex(addr common.Address) int {
	return sort.Search(len(s.Whitelist), func(i int) bool {
		return bytes.Compare(s.Whitelist[i].Address[:], addr[:]) >= 0
	})
}

func (s *State) markClaimed(addr common.Address) {
	i := s.claimedIndex(addr)
	s.Claimed = append(s.Claimed, common.Address{})
	copy(s.Claimed[i+1:], s.Claimed[i:])
	s.Claimed[i] = addr
}

func (s *State) addWhitelisted(addr common.Address, allowance uint64) {
	i := s.whitelistIndex(addr)
	s.Whitelist = append(s.Whitelist, WhitelistEntry{})
	copy(s.Whitelist[i+1:], s.Whitelist[i:])
	s.Whitelist[i] = WhitelistEntry{Address: addr, Allowance: allowance}
}

func encodeState(s *State) ([]byte, error) {
	data, err := rlp.EncodeToBytes(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode claim state: %w", err)
	}
	return data, nil
}

func decodeState(acct *types.Account) (*State, error) {
	if acct.Owner != ProgramID {
		return nil, fmt.Errorf("%w: %s is owned by %q", ErrContractNotFound, acct.Address.Hex(), acct.Owner)
	}
	var s State
	if err := rlp.DecodeBytes(acct.Data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode claim state: %w", err)
	}
	if s.Version != stateVersion {
		return nil, fmt.Errorf("unsupported claim state version %d", s.Version)
	}
	return &s, nil
}
