package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
)

func accountCommands() *cli.Command {
	addrFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:  "address",
			Usage: "Account address (defaults to the signer)",
		}
	}
	return &cli.Command{
		Name:  "account",
		Usage: "Inspect and fund plain accounts in the local store",
		Subcommands: []*cli.Command{
			{
				Name:  "airdrop",
				Usage: "Credit an account out of thin air (local development only)",
				Flags: []cli.Flag{
					addrFlag(),
					amountFlag(),
				},
				Action: airdropCommand,
			},
			{
				Name:   "show",
				Usage:  "Show an account",
				Flags:  []cli.Flag{addrFlag()},
				Action: showAccountCommand,
			},
		},
	}
}

func airdropCommand(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	addr := rt.signer.Address()
	if c.IsSet("address") {
		if addr, err = addressFlag(c, "address"); err != nil {
			return err
		}
	}

	acct, err := rt.store.LoadAccount(c.Context, addr)
	if err != nil {
		return err
	}
	if acct == nil {
		acct = &types.Account{Address: addr, Owner: "system"}
	}
	amount := c.Uint64("amount")
	if acct.Balance+amount < acct.Balance {
		return fmt.Errorf("balance overflow")
	}
	acct.Balance += amount
	if err := rt.store.SaveAccount(c.Context, acct); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return printJSON(c, acct)
}

func showAccountCommand(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.Close()

	addr := rt.signer.Address()
	if c.IsSet("address") {
		if addr, err = addressFlag(c, "address"); err != nil {
			return err
		}
	}
	acct, err := rt.store.LoadAccount(c.Context, addr)
	if err != nil {
		return err
	}
	if acct == nil {
		return fmt.Errorf("account %s not found", addr.Hex())
	}
	return printJSON(c, acct)
}
