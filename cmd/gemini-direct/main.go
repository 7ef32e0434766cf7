package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ruteri/functions-gemini-relay/cmd/flags"
	"github.com/ruteri/functions-gemini-relay/config"
	"github.com/ruteri/functions-gemini-relay/gemini"
	"github.com/urfave/cli/v2"
)

var flagQuery = &cli.StringFlag{
	Name:  "query",
	Value: "What is the current market cap of Ethereum and Bitcoin today?",
	Usage: "prompt sent to Gemini",
}

var flagModel = &cli.StringFlag{
	Name:  "model",
	Value: gemini.DefaultModel,
	Usage: "Gemini model name",
}

var flagTimeout = &cli.DurationFlag{
	Name:  "timeout",
	Value: 15 * time.Second,
	Usage: "request timeout",
}

func main() {
	app := &cli.App{
		Name:        "gemini-direct",
		Usage:       "Call Gemini directly with GEMINI_API_KEY, bypassing the DON",
		Description: flags.RequiredEnv(config.FlowGeminiDirect),
		Flags:       flags.With("gemini-direct", flagQuery, flagModel, flagTimeout),
		Action: func(cCtx *cli.Context) error {
			log := flags.SetupLogger(cCtx)

			cfg, err := config.Load(config.FlowGeminiDirect)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cCtx.Context, cCtx.Duration(flagTimeout.Name))
			defer cancel()

			gen, err := gemini.NewGenAIGenerator(ctx, cfg.GeminiAPIKey)
			if err != nil {
				return err
			}
			client := gemini.NewClient(gen, log)
			client.SetModel(cCtx.String(flagModel.Name))

			query := cCtx.String(flagQuery.Name)
			log.Info("calling Gemini", "model", client.Model(), "query", query)

			answer, err := client.Ask(ctx, query)
			if err != nil {
				return err
			}

			fmt.Println("--- Gemini Response ---")
			fmt.Println(answer)
			return nil
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
