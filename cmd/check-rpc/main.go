package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ruteri/functions-gemini-relay/cmd/flags"
	"github.com/ruteri/functions-gemini-relay/config"
	"github.com/ruteri/functions-gemini-relay/interfaces"
	"github.com/urfave/cli/v2"
)

var flagTimeout = &cli.DurationFlag{
	Name:  "timeout",
	Value: 10 * time.Second,
	Usage: "RPC timeout",
}

func main() {
	app := &cli.App{
		Name:        "check-rpc",
		Usage:       "Check that RPC_URL answers and report the chain it serves",
		Description: flags.RequiredEnv(config.FlowCheckRPC),
		Flags:       flags.With("check-rpc", flagTimeout),
		Action: func(cCtx *cli.Context) error {
			log := flags.SetupLogger(cCtx)

			cfg, err := config.Load(config.FlowCheckRPC)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cCtx.Context, cCtx.Duration(flagTimeout.Name))
			defer cancel()

			client, err := ethclient.DialContext(ctx, cfg.RPCURL)
			if err != nil {
				return fmt.Errorf("%w: could not dial RPC: %v", interfaces.ErrNetwork, err)
			}
			defer client.Close()

			chainID, err := client.ChainID(ctx)
			if err != nil {
				return fmt.Errorf("%w: eth_chainId: %v", interfaces.ErrNetwork, err)
			}
			block, err := client.BlockNumber(ctx)
			if err != nil {
				return fmt.Errorf("%w: eth_blockNumber: %v", interfaces.ErrNetwork, err)
			}

			if chainID.Int64() != config.SepoliaChainID {
				log.Warn("RPC_URL does not serve Sepolia", "chainId", chainID)
			}
			if cfg.ChainID != nil && cfg.ChainID.Cmp(chainID) != 0 {
				return interfaces.NewConfigError(fmt.Errorf("CHAIN_ID is %s but the node serves chain %s", cfg.ChainID, chainID))
			}

			fmt.Printf("Connected to chain %s, latest block %d\n", chainID, block)
			return nil
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
