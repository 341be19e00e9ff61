package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/config"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "cmtctl",
		Usage: "Concurrent merkle tree and claim contract tool",
		Description: `Runs the compression and claim programs against a local account store.

This tool can:
- Create trees and append, replace and verify leaves
- Build proofs from a journal of committed change logs
- Initialize, fund and claim from claim contracts`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "store",
				Usage:   "Account store: memory, badger or redis",
				Value:   config.StoreTypeBadger.String(),
				EnvVars: []string{config.EnvCMTStoreType},
			},
			&cli.StringFlag{
				Name:    "data-path",
				Usage:   "Badger data directory",
				Value:   ".cmtctl",
				EnvVars: []string{config.EnvCMTDataPath},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Usage:   "Redis host:port",
				Value:   "localhost:6379",
				EnvVars: []string{config.EnvCMTRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				EnvVars: []string{config.EnvCMTRedisPassword},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number",
				EnvVars: []string{config.EnvCMTRedisDB},
			},
			&cli.StringFlag{
				Name:    "redis-prefix",
				Usage:   "Prefix prepended to every Redis key",
				EnvVars: []string{config.EnvCMTRedisPrefix},
			},
			&cli.StringFlag{
				Name:    "private-key",
				Aliases: []string{"key"},
				Usage:   "secp256k1 private key (hex) used to sign instructions",
				EnvVars: []string{config.EnvCMTPrivateKey},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable debug logging",
				EnvVars: []string{config.EnvCMTVerbose},
			},
		},
		Commands: []*cli.Command{
			treeCommands(),
			claimCommands(),
			accountCommands(),
		},
	}
}
