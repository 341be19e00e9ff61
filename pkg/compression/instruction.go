package compression

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/config"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/signer"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
)

type InstructionKind string

const (
	InstructionCreateTree        InstructionKind = "create_tree"
	InstructionAppend            InstructionKind = "append"
	InstructionReplace           InstructionKind = "replace"
	InstructionVerifyLeaf        InstructionKind = "verify_leaf"
	InstructionTransferAuthority InstructionKind = "transfer_authority"
	InstructionCloseEmptyTree    InstructionKind = "close_empty_tree"
)

// Instruction is the signed payload accepted by Execute. The signer acts as
// the authority, or as the payer for create_tree.
type Instruction struct {
	Kind       InstructionKind    `json:"kind"`
	Tree       common.Address     `json:"tree"`
	Leaf       types.Node         `json:"leaf,omitempty"`
	Proof      *types.Proof       `json:"proof,omitempty"`
	Authority  common.Address     `json:"authority,omitempty"`
	Recipient  common.Address     `json:"recipient,omitempty"`
	TreeConfig *config.TreeConfig `json:"treeConfig,omitempty"`
}

// Result is the outcome of an executed instruction. Only the fields relevant
// to the instruction kind are set.
type Result struct {
	Signer    common.Address `json:"signer"`
	Receipt   *Receipt       `json:"receipt,omitempty"`
	Verified  bool           `json:"verified,omitempty"`
	Reclaimed uint64         `json:"reclaimed,omitempty"`
}

// SignInstruction encodes ins and signs it with s.
func SignInstruction(s signer.ISigner, ins *Instruction) (*signer.SignedMessage, error) {
	payload, err := json.Marshal(ins)
	if err != nil {
		return nil, fmt.Errorf("failed to encode instruction: %w", err)
	}
	return s.CreateAuthenticatedMessage(payload)
}

// Execute authenticates msg, decodes its instruction and runs it with the
// recovered signer as authority.
func (p *Program) Execute(ctx context.Context, msg *signer.SignedMessage) (*Result, error) {
	from, err := signer.RecoverSigner(msg)
	if err != nil {
		return nil, err
	}

	var ins Instruction
	if err := json.Unmarshal(msg.Payload, &ins); err != nil {
		return nil, fmt.Errorf("failed to decode instruction: %w", err)
	}

	res := &Result{Signer: from}
	switch ins.Kind {
	case InstructionCreateTree:
		if ins.TreeConfig == nil {
			return nil, fmt.Errorf("create_tree requires a tree config")
		}
		authority := ins.Authority
		if authority == (common.Address{}) {
			authority = from
		}
		res.Receipt, err = p.CreateTree(ctx, from, ins.Tree, authority, ins.TreeConfig)
	case InstructionAppend:
		res.Receipt, err = p.Append(ctx, ins.Tree, from, ins.Leaf)
	case InstructionReplace:
		if ins.Proof == nil {
			return nil, fmt.Errorf("replace requires a proof")
		}
		res.Receipt, err = p.Replace(ctx, ins.Tree, from, ins.Leaf, ins.Proof)
	case InstructionVerifyLeaf:
		if ins.Proof == nil {
			return nil, fmt.Errorf("verify_leaf requires a proof")
		}
		res.Verified, err = p.VerifyLeaf(ctx, ins.Tree, ins.Proof)
	case InstructionTransferAuthority:
		err = p.TransferAuthority(ctx, ins.Tree, from, ins.Authority)
	case InstructionCloseEmptyTree:
		res.Reclaimed, err = p.CloseEmptyTree(ctx, ins.Tree, from, ins.Recipient)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownInstruction, ins.Kind)
	}
	if err != nil {
		return nil, err
	}

	p.logger.Sugar().Debugw("Executed instruction", "kind", ins.Kind, "signer", from.Hex(), "tree", ins.Tree.Hex())
	return res, nil
}
