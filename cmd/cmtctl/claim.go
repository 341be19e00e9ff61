package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/claim"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
)

func contractFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "contract",
		Usage:    "Claim contract address",
		Required: true,
	}
}

func amountFlag() cli.Flag {
	return &cli.Uint64Flag{
		Name:     "amount",
		Usage:    "Token amount",
		Required: true,
	}
}

func claimCommands() *cli.Command {
	return &cli.Command{
		Name:  "claim",
		Usage: "Manage claim contracts",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Initialize a claim contract with the signer as authority",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "contract",
						Usage: "Contract address (generated when empty)",
					},
					&cli.StringFlag{
						Name:  "mode",
						Usage: "Eligibility mode: merkle or whitelist",
						Value: claim.ModeMerkle.String(),
					},
					&cli.Uint64Flag{
						Name:  "claim-amount",
						Usage: "Per-claimer cap, zero for none",
					},
					&cli.Uint64Flag{
						Name:     "max-total-claim",
						Usage:    "Total amount that may ever be claimed",
						Required: true,
					},
					&cli.Uint64Flag{
						Name:     "max-num-nodes",
						Usage:    "Number of claimers allowed",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "merkle-root",
						Usage: "Static eligibility root (merkle mode)",
					},
					&cli.UintFlag{
						Name:  "merkle-depth",
						Usage: "Depth of the tree behind --merkle-root",
					},
					&cli.StringFlag{
						Name:  "source-tree",
						Usage: "Concurrent tree holding eligibility leaves (merkle mode)",
					},
				},
				Action: initClaimCommand,
			},
			{
				Name:  "whitelist",
				Usage: "Whitelist an address",
				Flags: []cli.Flag{
					contractFlag(),
					&cli.StringFlag{
						Name:     "address",
						Usage:    "Address to whitelist",
						Required: true,
					},
					&cli.Uint64Flag{
						Name:  "allowance",
						Usage: "Allocation, zero for the contract's claim amount",
					},
				},
				Action: whitelistCommand,
			},
			{
				Name:   "fund",
				Usage:  "Move tokens from the signer into the contract",
				Flags:  []cli.Flag{contractFlag(), amountFlag()},
				Action: fundCommand,
			},
			{
				Name:   "set-amount",
				Usage:  "Change the per-claimer cap",
				Flags:  []cli.Flag{contractFlag(), amountFlag()},
				Action: setClaimAmountCommand,
			},
			{
				Name:  "submit",
				Usage: "Claim tokens for the signer",
				Flags: []cli.Flag{
					contractFlag(),
					amountFlag(),
					&cli.StringFlag{
						Name:  "proof-file",
						Usage: "JSON proof against the contract's static root",
					},
					&cli.IntFlag{
						Name:  "index",
						Usage: "Leaf index in the contract's source tree",
						Value: -1,
					},
				},
				Action: submitClaimCommand,
			},
			{
				Name:  "leaf",
				Usage: "Print the eligibility leaf for an address and amount",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "address",
						Usage:    "Claimer address",
						Required: true,
					},
					amountFlag(),
				},
				Action: claimLeafCommand,
			},
			{
				Name:   "show",
				Usage:  "Show contract state",
				Flags:  []cli.Flag{contractFlag()},
				Action: showClaimCommand,
			},
		},
	}
}

func initClaimCommand(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	contract := newAddress()
	if c.IsSet("contract") {
		if contract, err = addressFlag(c, "contract"); err != nil {
			return err
		}
	}
	mode, err := claim.ParseMode(c.String("mode"))
	if err != nil {
		return err
	}
	params := &claim.Params{
		Mode:          mode,
		ClaimAmount:   c.Uint64("claim-amount"),
		MaxTotalClaim: c.Uint64("max-total-claim"),
		MaxNumNodes:   c.Uint64("max-num-nodes"),
	}
	if c.IsSet("merkle-root") {
		if params.MerkleRoot, err = types.NodeFromHex(c.String("merkle-root")); err != nil {
			return err
		}
		params.MerkleDepth = uint32(c.Uint("merkle-depth"))
	}
	if c.IsSet("source-tree") {
		if params.Tree, err = addressFlag(c, "source-tree"); err != nil {
			return err
		}
	}

	st, err := rt.claims.Initialize(c.Context, contract, rt.signer.Address(), params)
	if err != nil {
		return fmt.Errorf("failed to initialize claim contract: %w", err)
	}
	return printJSON(c, map[string]any{"contract": contract, "state": st})
}

func whitelistCommand(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	contract, err := addressFlag(c, "contract")
	if err != nil {
		return err
	}
	addr, err := addressFlag(c, "address")
	if err != nil {
		return err
	}
	if err := rt.claims.AddWhitelisted(c.Context, contract, rt.signer.Address(), addr, c.Uint64("allowance")); err != nil {
		return fmt.Errorf("failed to whitelist %s: %w", addr.Hex(), err)
	}
	return showClaim(c, rt, contract)
}

func fundCommand(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	contract, err := addressFlag(c, "contract")
	if err != nil {
		return err
	}
	if err := rt.claims.Fund(c.Context, contract, rt.signer.Address(), c.Uint64("amount")); err != nil {
		return fmt.Errorf("failed to fund contract: %w", err)
	}
	return showClaim(c, rt, contract)
}

func setClaimAmountCommand(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	contract, err := addressFlag(c, "contract")
	if err != nil {
		return err
	}
	if err := rt.claims.SetClaimAmount(c.Context, contract, rt.signer.Address(), c.Uint64("amount")); err != nil {
		return fmt.Errorf("failed to set claim amount: %w", err)
	}
	return showClaim(c, rt, contract)
}

func submitClaimCommand(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	contract, err := addressFlag(c, "contract")
	if err != nil {
		return err
	}
	st, err := rt.claims.GetState(c.Context, contract)
	if err != nil {
		return err
	}

	claimer := rt.signer.Address()
	amount := c.Uint64("amount")

	var proof *types.Proof
	switch {
	case st.Mode != claim.ModeMerkle:
	case st.Tree != (common.Address{}):
		if c.Int("index") < 0 {
			return fmt.Errorf("--index is required for contracts backed by a tree")
		}
		tc, err := rt.treeClient(c.Context, st.Tree)
		if err != nil {
			return err
		}
		if proof, err = tc.Proof(uint32(c.Int("index"))); err != nil {
			return err
		}
	default:
		if !c.IsSet("proof-file") {
			return fmt.Errorf("--proof-file is required for merkle contracts")
		}
		raw, err := os.ReadFile(c.String("proof-file"))
		if err != nil {
			return fmt.Errorf("failed to read proof: %w", err)
		}
		proof = &types.Proof{}
		if err := json.Unmarshal(raw, proof); err != nil {
			return fmt.Errorf("failed to decode proof: %w", err)
		}
	}

	if err := rt.claims.Claim(c.Context, contract, claimer, amount, proof); err != nil {
		return fmt.Errorf("failed to claim: %w", err)
	}
	return printJSON(c, map[string]any{
		"contract": contract,
		"claimer":  claimer,
		"amount":   amount,
	})
}

func claimLeafCommand(c *cli.Context) error {
	addr, err := addressFlag(c, "address")
	if err != nil {
		return err
	}
	return printJSON(c, map[string]any{
		"address": addr,
		"amount":  c.Uint64("amount"),
		"leaf":    claim.LeafFor(addr, c.Uint64("amount")),
	})
}

func showClaimCommand(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	contract, err := addressFlag(c, "contract")
	if err != nil {
		return err
	}
	return showClaim(c, rt, contract)
}

func showClaim(c *cli.Context, rt *runtime, contract common.Address) error {
	st, err := rt.claims.GetState(c.Context, contract)
	if err != nil {
		return err
	}
	return printJSON(c, map[string]any{"contract": contract, "state": st})
}
