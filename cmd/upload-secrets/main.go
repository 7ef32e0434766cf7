package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/ruteri/functions-gemini-relay/cmd/chaincommon"
	"github.com/ruteri/functions-gemini-relay/cmd/flags"
	"github.com/ruteri/functions-gemini-relay/config"
	"github.com/ruteri/functions-gemini-relay/gemini"
	"github.com/ruteri/functions-gemini-relay/interfaces"
	"github.com/ruteri/functions-gemini-relay/secrets"
	"github.com/urfave/cli/v2"
)

var flagSlotID = &cli.UintFlag{
	Name:  "slot-id",
	Value: secrets.DefaultSlotID,
	Usage: "DON-hosted secrets slot",
}

var flagLease = &cli.IntFlag{
	Name:  "lease-minutes",
	Value: secrets.DefaultLeaseMinutes,
	Usage: "how long the DON keeps the secrets",
}

var flagCheckKey = &cli.BoolFlag{
	Name:  "check-key",
	Usage: "call Gemini directly with the key before uploading it",
}

var flagReupload = &cli.StringFlag{
	Name:  "reupload",
	Usage: "content id of an archived ciphertext to upload again instead of encrypting anew",
}

func main() {
	app := &cli.App{
		Name:        "upload-secrets",
		Usage:       "Encrypt GEMINI_API_KEY and upload it as a DON-hosted secret",
		Description: flags.RequiredEnv(config.FlowUploadSecrets),
		Flags:       flags.With("upload-secrets", flagSlotID, flagLease, flagCheckKey, flagReupload),
		Action: func(cCtx *cli.Context) error {
			log := flags.SetupLogger(cCtx)
			ctx := cCtx.Context

			cfg, err := config.Load(config.FlowUploadSecrets)
			if err != nil {
				return err
			}
			if cCtx.Uint(flagSlotID.Name) > 255 {
				return interfaces.NewConfigError(fmt.Errorf("--slot-id must be in 0..255"))
			}

			if cCtx.Bool(flagCheckKey.Name) {
				gen, err := gemini.NewGenAIGenerator(ctx, cfg.GeminiAPIKey)
				if err != nil {
					return err
				}
				if _, err := gemini.NewClient(gen, log).Ask(ctx, "Say 'hello'."); err != nil {
					return fmt.Errorf("GEMINI_API_KEY check failed: %w", err)
				}
				log.Info("GEMINI_API_KEY works")
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

			encryptor, err := secrets.NewEncryptor(chain.Client, cfg.RouterAddress, cfg.DonID, chain.Key)
			if err != nil {
				return err
			}
			uploader, err := secrets.NewGatewayClient(cfg.GatewayURLs, cfg.DonID, chain.Key, log)
			if err != nil {
				return err
			}

			provisioner := secrets.NewProvisioner(encryptor, uploader, log)
			provisioner.SetSlot(uint8(cCtx.Uint(flagSlotID.Name)))
			provisioner.SetLease(cCtx.Int(flagLease.Name))
			if archive != nil {
				provisioner.SetArchive(archive)
			}

			var result *interfaces.UploadResult
			if id := cCtx.String(flagReupload.Name); id != "" {
				contentID, err := interfaces.NewContentIDFromHex(id)
				if err != nil {
					return interfaces.NewConfigError(fmt.Errorf("--reupload: %w", err))
				}
				result, err = provisioner.Reupload(ctx, contentID)
				if err != nil {
					printGateways(result)
					return err
				}
			} else {
				result, err = provisioner.Provision(ctx, map[string]string{"GEMINI_API_KEY": cfg.GeminiAPIKey})
				if err != nil {
					printGateways(result)
					return err
				}
			}

			printGateways(result)
			fmt.Println("Secrets uploaded. Update your .env file with:")
			fmt.Printf("DON_HOSTED_SECRETS_SLOT_ID=%d\n", result.Location.SlotID)
			fmt.Printf("DON_HOSTED_SECRETS_VERSION=%d\n", result.Location.Version)
			fmt.Printf("Secrets expire at %s\n", result.Expiration.UTC().Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func printGateways(result *interfaces.UploadResult) {
	if result == nil {
		return
	}
	for _, gw := range result.Gateways {
		status := "ok"
		if !gw.Success {
			status = "FAILED: " + gw.Error
		}
		fmt.Printf("gateway %s: %d node responses, %s\n", gw.URL, gw.NodeResponses, status)
	}
}
