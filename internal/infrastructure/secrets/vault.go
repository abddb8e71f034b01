package secrets

import (
	"context"
	"fmt"

	vault "github.com/hashicorp/vault/api"
	"github.com/mitchellh/mapstructure"
)

// Vault reads key/value secrets and decodes them into tagged structs.
type Vault struct {
	api *vault.Client
}

// NewVault builds a client. Empty address and token fall back to
// VAULT_ADDR and VAULT_TOKEN.
func NewVault(address, token string) (*Vault, error) {
	cfg := vault.DefaultConfig()
	if cfg.Error != nil {
		return nil, fmt.Errorf("failed to read vault environment: %w", cfg.Error)
	}
	if address != "" {
		cfg.Address = address
	}

	api, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if token != "" {
		api.SetToken(token)
	}
	return &Vault{api: api}, nil
}

// Read returns the secret's fields. KV v2 responses are unwrapped from their
// "data" envelope.
func (v *Vault) Read(ctx context.Context, path string) (map[string]any, error) {
	secret, err := v.api.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vault secret %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no data found at path: %s", path)
	}
	return unwrapKV2(secret.Data), nil
}

// Decode reads path and decodes it into out using mapstructure tags.
func (v *Vault) Decode(ctx context.Context, path string, out any) error {
	data, err := v.Read(ctx, path)
	if err != nil {
		return err
	}
	return decode(data, out)
}

func unwrapKV2(data map[string]any) map[string]any {
	inner, ok := data["data"].(map[string]any)
	if !ok {
		return data
	}
	if _, hasMeta := data["metadata"]; hasMeta {
		return inner
	}
	return data
}

func decode(data map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(data); err != nil {
		return fmt.Errorf("failed to decode vault secret: %w", err)
	}
	return nil
}
