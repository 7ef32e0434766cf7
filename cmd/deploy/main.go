package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/ruteri/functions-gemini-relay/cmd/chaincommon"
	"github.com/ruteri/functions-gemini-relay/cmd/flags"
	"github.com/ruteri/functions-gemini-relay/config"
	"github.com/ruteri/functions-gemini-relay/deploy"
	"github.com/urfave/cli/v2"
)

var flagArtifact = &cli.StringFlag{
	Name:  "artifact",
	Value: deploy.DefaultArtifactPath,
	Usage: "Hardhat artifact JSON of the consumer contract",
}

func main() {
	app := &cli.App{
		Name:        "deploy",
		Usage:       "Deploy the Functions consumer contract",
		Description: flags.RequiredEnv(config.FlowDeploy),
		Flags:       flags.With("deploy", flagArtifact),
		Action: func(cCtx *cli.Context) error {
			log := flags.SetupLogger(cCtx)
			ctx := cCtx.Context

			cfg, err := config.Load(config.FlowDeploy)
			if err != nil {
				return err
			}

			artifact, err := deploy.LoadArtifact(cCtx.String(flagArtifact.Name))
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

			deployer := deploy.NewDeployer(chain.Client, log)
			deployer.SetTransactOpts(auth)

			log.Info("deploying consumer",
				"contract", artifact.ContractName,
				"router", cfg.RouterAddress.Hex(),
				"donId", cfg.DonID,
				"subscriptionId", cfg.SubscriptionID,
			)
			deployment, err := deployer.Deploy(ctx, artifact, cfg.RouterAddress, cfg.DonID, cfg.SubscriptionID)
			if err != nil {
				return err
			}

			log.Info("consumer deployed", "address", deployment.Address.Hex(), "block", deployment.BlockNumber, "gasUsed", deployment.GasUsed)
			fmt.Println("Update your .env file with the new contract address:")
			fmt.Printf("FUNCTIONS_CONSUMER_CONTRACT_ADDRESS=%q\n", deployment.Address.Hex())
			return nil
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
