package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/compression"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/config"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/merkle"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
)

func leafFromData(data string) types.Node {
	return merkle.HashLeaf([]byte(data))
}

func treeFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "tree",
		Usage:    "Tree account address",
		Required: true,
	}
}

func indexFlag() cli.Flag {
	return &cli.UintFlag{
		Name:     "index",
		Usage:    "Leaf index",
		Required: true,
	}
}

func leafFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "leaf",
			Usage: "Leaf value as 32 byte hex",
		},
		&cli.StringFlag{
			Name:  "data",
			Usage: "Arbitrary data hashed into the leaf",
		},
	}
}

func treeCommands() *cli.Command {
	return &cli.Command{
		Name:  "tree",
		Usage: "Manage concurrent merkle trees",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create an empty tree funded by the signer",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "tree",
						Usage: "Tree account address (generated when empty)",
					},
					&cli.StringFlag{
						Name:  "authority",
						Usage: "Tree authority (defaults to the signer)",
					},
					&cli.UintFlag{
						Name:  "max-depth",
						Usage: "Tree depth",
						Value: 14,
					},
					&cli.UintFlag{
						Name:  "max-buffer-size",
						Usage: "Change log buffer size",
						Value: 64,
					},
					&cli.UintFlag{
						Name:  "canopy-depth",
						Usage: "Number of upper levels cached in the account",
						Value: 0,
					},
				},
				Action: createTreeCommand,
			},
			{
				Name:   "append",
				Usage:  "Append a leaf",
				Flags:  append([]cli.Flag{treeFlag()}, leafFlags()...),
				Action: appendCommand,
			},
			{
				Name:   "replace",
				Usage:  "Replace the leaf at an index using a proof from the journal",
				Flags:  append([]cli.Flag{treeFlag(), indexFlag()}, leafFlags()...),
				Action: replaceCommand,
			},
			{
				Name:   "verify",
				Usage:  "Verify a leaf at an index",
				Flags:  append([]cli.Flag{treeFlag(), indexFlag()}, leafFlags()...),
				Action: verifyCommand,
			},
			{
				Name:  "proof",
				Usage: "Print a proof for the leaf at an index",
				Flags: []cli.Flag{
					treeFlag(),
					indexFlag(),
					&cli.BoolFlag{
						Name:  "full",
						Usage: "Include levels covered by the canopy",
					},
				},
				Action: proofCommand,
			},
			{
				Name:   "show",
				Usage:  "Show tree header and state",
				Flags:  []cli.Flag{treeFlag()},
				Action: showTreeCommand,
			},
			{
				Name:  "transfer-authority",
				Usage: "Hand the tree to a new authority",
				Flags: []cli.Flag{
					treeFlag(),
					&cli.StringFlag{
						Name:     "new-authority",
						Usage:    "New authority address",
						Required: true,
					},
				},
				Action: transferAuthorityCommand,
			},
			{
				Name:  "close",
				Usage: "Close an empty tree and reclaim its balance",
				Flags: []cli.Flag{
					treeFlag(),
					&cli.StringFlag{
						Name:  "recipient",
						Usage: "Account credited with the reclaimed balance (defaults to the signer)",
					},
				},
				Action: closeTreeCommand,
			},
		},
	}
}

func createTreeCommand(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	tree := newAddress()
	if c.IsSet("tree") {
		if tree, err = addressFlag(c, "tree"); err != nil {
			return err
		}
	}
	var authority common.Address
	if c.IsSet("authority") {
		if authority, err = addressFlag(c, "authority"); err != nil {
			return err
		}
	}

	res, err := rt.execute(c.Context, &compression.Instruction{
		Kind:      compression.InstructionCreateTree,
		Tree:      tree,
		Authority: authority,
		TreeConfig: &config.TreeConfig{
			MaxDepth:      uint32(c.Uint("max-depth")),
			MaxBufferSize: uint32(c.Uint("max-buffer-size")),
			CanopyDepth:   uint32(c.Uint("canopy-depth")),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create tree: %w", err)
	}
	return printJSON(c, res)
}

func appendCommand(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	tree, err := addressFlag(c, "tree")
	if err != nil {
		return err
	}
	leaf, err := leafFlag(c)
	if err != nil {
		return err
	}

	res, err := rt.execute(c.Context, &compression.Instruction{
		Kind: compression.InstructionAppend,
		Tree: tree,
		Leaf: leaf,
	})
	if err != nil {
		return fmt.Errorf("failed to append: %w", err)
	}
	return printJSON(c, res)
}

func replaceCommand(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	tree, err := addressFlag(c, "tree")
	if err != nil {
		return err
	}
	leaf, err := leafFlag(c)
	if err != nil {
		return err
	}
	tc, err := rt.treeClient(c.Context, tree)
	if err != nil {
		return err
	}
	proof, err := tc.Proof(uint32(c.Uint("index")))
	if err != nil {
		return err
	}

	res, err := rt.execute(c.Context, &compression.Instruction{
		Kind:  compression.InstructionReplace,
		Tree:  tree,
		Leaf:  leaf,
		Proof: proof,
	})
	if err != nil {
		return fmt.Errorf("failed to replace: %w", err)
	}
	return printJSON(c, res)
}

func verifyCommand(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	tree, err := addressFlag(c, "tree")
	if err != nil {
		return err
	}
	tc, err := rt.treeClient(c.Context, tree)
	if err != nil {
		return err
	}
	proof, err := tc.Proof(uint32(c.Uint("index")))
	if err != nil {
		return err
	}
	if c.IsSet("leaf") || c.IsSet("data") {
		if proof.Leaf, err = leafFlag(c); err != nil {
			return err
		}
	}

	ok, err := rt.trees.VerifyLeaf(c.Context, tree, proof)
	result := map[string]any{
		"tree":     tree,
		"index":    proof.LeafIndex,
		"leaf":     proof.Leaf,
		"verified": ok,
	}
	if err != nil {
		result["error"] = err.Error()
	}
	return printJSON(c, result)
}

func proofCommand(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	tree, err := addressFlag(c, "tree")
	if err != nil {
		return err
	}
	tc, err := rt.treeClient(c.Context, tree)
	if err != nil {
		return err
	}

	index := uint32(c.Uint("index"))
	var proof *types.Proof
	if c.Bool("full") {
		proof, err = tc.FullProof(index)
	} else {
		proof, err = tc.Proof(index)
	}
	if err != nil {
		return err
	}
	return printJSON(c, proof)
}

type treeView struct {
	Address        common.Address     `json:"address"`
	Balance        uint64             `json:"balance"`
	Authority      common.Address     `json:"authority"`
	CreatedAt      uint64             `json:"createdAt"`
	Config         *config.TreeConfig `json:"config"`
	Root           types.Node         `json:"root"`
	SequenceNumber uint64             `json:"seq"`
	NextIndex      uint32             `json:"nextIndex"`
	BufferSize     uint64             `json:"bufferSize"`
}

func showTreeCommand(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	tree, err := addressFlag(c, "tree")
	if err != nil {
		return err
	}
	ta, err := rt.trees.GetTree(c.Context, tree)
	if err != nil {
		return err
	}
	return printJSON(c, &treeView{
		Address:        ta.Address,
		Balance:        ta.Balance,
		Authority:      ta.Header.Authority,
		CreatedAt:      ta.Header.CreatedAt,
		Config:         ta.Header.Config(),
		Root:           ta.Tree.Root(),
		SequenceNumber: ta.Tree.SequenceNumber(),
		NextIndex:      ta.Tree.NextIndex(),
		BufferSize:     ta.Tree.BufferSize(),
	})
}

func transferAuthorityCommand(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	tree, err := addressFlag(c, "tree")
	if err != nil {
		return err
	}
	next, err := addressFlag(c, "new-authority")
	if err != nil {
		return err
	}

	res, err := rt.execute(c.Context, &compression.Instruction{
		Kind:      compression.InstructionTransferAuthority,
		Tree:      tree,
		Authority: next,
	})
	if err != nil {
		return fmt.Errorf("failed to transfer authority: %w", err)
	}
	return printJSON(c, res)
}

func closeTreeCommand(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	tree, err := addressFlag(c, "tree")
	if err != nil {
		return err
	}
	recipient := rt.signer.Address()
	if c.IsSet("recipient") {
		if recipient, err = addressFlag(c, "recipient"); err != nil {
			return err
		}
	}

	res, err := rt.execute(c.Context, &compression.Instruction{
		Kind:      compression.InstructionCloseEmptyTree,
		Tree:      tree,
		Recipient: recipient,
	})
	if err != nil {
		return fmt.Errorf("failed to close tree: %w", err)
	}
	return printJSON(c, res)
}
