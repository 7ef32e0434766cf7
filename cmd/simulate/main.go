package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/ruteri/functions-gemini-relay/cmd/flags"
	"github.com/ruteri/functions-gemini-relay/config"
	"github.com/ruteri/functions-gemini-relay/interfaces"
	"github.com/ruteri/functions-gemini-relay/request"
	"github.com/ruteri/functions-gemini-relay/secrets"
	"github.com/ruteri/functions-gemini-relay/simulator"
	"github.com/urfave/cli/v2"
)

var flagSecretsFile = &cli.StringFlag{
	Name:  "secrets-file",
	Value: "secrets.json",
	Usage: "JSON object of plaintext secrets exposed to the source as `secrets`",
}

func main() {
	app := &cli.App{
		Name:  "simulate",
		Usage: "Run the Functions source locally with the DON's helpers and limits",
		Flags: flags.With("simulate",
			flags.SourceFlag,
			flags.ArgsFlag,
			flags.ReturnTypeFlag,
			flagSecretsFile,
		),
		Action: func(cCtx *cli.Context) error {
			log := flags.SetupLogger(cCtx)

			if _, err := config.Load(config.FlowSimulate); err != nil {
				return err
			}

			source, err := request.FileLoader{}.Load(cCtx.String(flags.SourceFlag.Name))
			if err != nil {
				return interfaces.NewConfigError(fmt.Errorf("could not read source: %w", err))
			}
			plaintext, err := secrets.LoadLocalSecrets(cCtx.String(flagSecretsFile.Name))
			if err != nil {
				return err
			}

			args := cCtx.StringSlice(flags.ArgsFlag.Name)
			log.Info("simulating", "source", cCtx.String(flags.SourceFlag.Name), "args", args)

			result, err := simulator.NewSimulator(log).Simulate(cCtx.Context, simulator.Request{
				Source:     source,
				Args:       args,
				Secrets:    plaintext,
				ReturnType: interfaces.ReturnType(cCtx.String(flags.ReturnTypeFlag.Name)),
			})
			if err != nil {
				return err
			}

			fmt.Println("--- Simulation Results ---")
			if result.Success() {
				fmt.Println("Simulation SUCCESS!")
				fmt.Printf("Raw Result (bytes): 0x%x\n", result.Result)
				fmt.Printf("Decoded Result (%s): %s\n", result.Decoded.Kind, result.Decoded.String())
			} else {
				fmt.Println("Simulation FAILED!")
				fmt.Println("Error String:", result.Error)
			}
			fmt.Println("--- Captured Functions Script Console Output ---")
			fmt.Println(result.CapturedOutput)

			if !result.Success() {
				return fmt.Errorf("%w: %s", interfaces.ErrOnChainExecution, result.Error)
			}
			return nil
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
