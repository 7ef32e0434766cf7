package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/ruteri/functions-gemini-relay/interfaces"
)

// SecretsEncryptor seals plaintext secrets for the DON.
type SecretsEncryptor interface {
	Encrypt(ctx context.Context, secrets map[string]string) (string, error)
}

// SecretsUploader stores encrypted secrets on the DON.
type SecretsUploader interface {
	Upload(ctx context.Context, req UploadRequest) (*interfaces.UploadResult, error)
}

// Provisioner runs the encrypt, archive and upload steps and reports the
// resulting secret location.
type Provisioner struct {
	encryptor    SecretsEncryptor
	uploader     SecretsUploader
	archive      interfaces.StorageBackend
	slotID       uint8
	leaseMinutes int
	log          *slog.Logger
}

func NewProvisioner(encryptor SecretsEncryptor, uploader SecretsUploader, log *slog.Logger) *Provisioner {
	if log == nil {
		log = slog.Default()
	}
	return &Provisioner{
		encryptor:    encryptor,
		uploader:     uploader,
		slotID:       DefaultSlotID,
		leaseMinutes: DefaultLeaseMinutes,
		log:          log,
	}
}

// SetArchive keeps a copy of every ciphertext in backend so it can be
// uploaded again later. Archiving failures are logged, never fatal.
func (p *Provisioner) SetArchive(backend interfaces.StorageBackend) {
	p.archive = backend
}

func (p *Provisioner) SetSlot(slotID uint8) {
	p.slotID = slotID
}

func (p *Provisioner) SetLease(minutes int) {
	p.leaseMinutes = minutes
}

// Provision encrypts secrets and uploads them to the DON.
func (p *Provisioner) Provision(ctx context.Context, secrets map[string]string) (*interfaces.UploadResult, error) {
	encrypted, err := p.encryptor.Encrypt(ctx, secrets)
	if err != nil {
		return nil, fmt.Errorf("could not encrypt secrets: %w", err)
	}
	p.log.Info("secrets encrypted", "keys", len(secrets))

	if p.archive != nil {
		id, err := p.archive.Store(ctx, []byte(encrypted), interfaces.EncryptedSecretsType)
		if err != nil {
			p.log.Warn("could not archive encrypted secrets", "backend", p.archive.Name(), "err", err)
		} else {
			p.log.Info("encrypted secrets archived", "backend", p.archive.Name(), "contentId", id.String())
		}
	}

	return p.upload(ctx, encrypted)
}

// Reupload renews a lease by uploading an archived ciphertext under a new version.
func (p *Provisioner) Reupload(ctx context.Context, id interfaces.ContentID) (*interfaces.UploadResult, error) {
	if p.archive == nil {
		return nil, interfaces.NewConfigError(fmt.Errorf("no archive configured"))
	}

	encrypted, err := p.archive.Fetch(ctx, id, interfaces.EncryptedSecretsType)
	if err != nil {
		return nil, fmt.Errorf("could not fetch archived secrets %s: %w", id.String(), err)
	}
	return p.upload(ctx, string(encrypted))
}

func (p *Provisioner) upload(ctx context.Context, encrypted string) (*interfaces.UploadResult, error) {
	result, err := p.uploader.Upload(ctx, UploadRequest{
		EncryptedSecretsHex: encrypted,
		SlotID:              p.slotID,
		LeaseMinutes:        p.leaseMinutes,
	})
	if err != nil {
		return result, fmt.Errorf("could not upload secrets: %w", err)
	}

	p.log.Info("secrets uploaded",
		"slotId", result.Location.SlotID,
		"version", result.Location.Version,
		"expiration", result.Expiration,
	)
	return result, nil
}

// LoadLocalSecrets reads a flat JSON object of secret names to plaintext
// values, as used for local simulation.
func LoadLocalSecrets(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, interfaces.NewConfigError(fmt.Errorf("could not read secrets file: %w", err))
	}

	var secrets map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, interfaces.NewConfigError(fmt.Errorf("secrets file %s must be a JSON object of strings: %w", path, err))
	}
	return secrets, nil
}
