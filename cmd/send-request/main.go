package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/functions-gemini-relay/callback"
	"github.com/ruteri/functions-gemini-relay/cmd/chaincommon"
	"github.com/ruteri/functions-gemini-relay/cmd/flags"
	"github.com/ruteri/functions-gemini-relay/config"
	"github.com/ruteri/functions-gemini-relay/interfaces"
	"github.com/ruteri/functions-gemini-relay/relay"
	"github.com/ruteri/functions-gemini-relay/request"
	"github.com/urfave/cli/v2"
)

var flagGasLimit = &cli.UintFlag{
	Name:  "callback-gas-limit",
	Value: config.DefaultCallbackGasLimit,
	Usage: "gas limit of the DON callback",
}

func main() {
	app := &cli.App{
		Name:        "send-request",
		Usage:       "Send the Gemini query through Chainlink Functions and print the answer",
		Description: flags.RequiredEnv(config.FlowSendRequest),
		Flags:       flags.With("send-request",
			flags.SourceFlag,
			flags.ArgsFlag,
			flags.ReturnTypeFlag,
			flags.CallbackTimeoutFlag,
			flagGasLimit,
		),
		Action: func(cCtx *cli.Context) error {
			log := flags.SetupLogger(cCtx)
			ctx := cCtx.Context

			cfg, err := config.Load(config.FlowSendRequest)
			if err != nil {
				return err
			}

			in := request.FromConfig(cfg, cCtx.String(flags.SourceFlag.Name), cCtx.StringSlice(flags.ArgsFlag.Name))
			in.ReturnType = interfaces.ReturnType(cCtx.String(flags.ReturnTypeFlag.Name))
			in.CallbackGasLimit = uint32(cCtx.Uint(flagGasLimit.Name))

			// Everything is validated before the first network call.
			desc, err := request.Build(in, request.FileLoader{})
			if err != nil {
				return err
			}
			if !desc.ReturnType.Known() {
				log.Warn("unknown return type, the answer will be decoded best effort", "returnType", string(desc.ReturnType))
			}

			archive, err := chaincommon.SetupArchive(cfg, log)
			if err != nil {
				return err
			}

			chain, err := chaincommon.Dial(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer chain.Close()

			auth, err := chain.Transactor()
			if err != nil {
				return err
			}

			consumerAddr := interfaces.ContractAddress(cfg.ConsumerAddress)
			client, err := relay.NewClientFor(consumerAddr, chain.Client, log)
			if err != nil {
				return err
			}
			client.SetTransactOpts(auth)

			log.Info("sending request",
				"consumer", cfg.ConsumerAddress.Hex(),
				"subscriptionId", desc.SubscriptionID,
				"secrets", desc.Secrets.String(),
				"args", desc.Args,
				"descriptor", desc.Hash().Hex(),
			)
			result, reqErr := client.Request(ctx, desc, cCtx.Duration(flags.CallbackTimeoutFlag.Name))
			chaincommon.ArchiveRecord(ctx, archive, relay.NewRequestRecord(desc, consumerAddr, result, reqErr), log)

			return report(result, reqErr)
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func report(result *relay.Result, err error) error {
	if result != nil && result.Receipt.TxHash != (common.Hash{}) {
		fmt.Printf("Transaction: %s (block %d)\n", result.Receipt.TxHash.Hex(), result.Receipt.BlockNumber)
		if result.Receipt.HasRequestID {
			fmt.Printf("Request ID: %s\n", result.Receipt.RequestID.String())
		}
	}

	var execErr *interfaces.ExecutionError
	switch {
	case errors.As(err, &execErr) && result != nil:
		fmt.Printf("Chainlink Functions execution error: %s\n", callback.FormatPayload(result.Callback.Err))
		return err
	case err != nil:
		return err
	}

	fmt.Printf("Response (%s): %s\n", result.Value.Kind, result.Value.String())
	return nil
}
