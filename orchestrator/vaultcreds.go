package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/vault/api"

	"github.com/mediastack/media-storage-backend/interfaces"
)

// credentialRefPrefix marks a credential field as an indirect reference.
const credentialRefPrefix = "vault:"

// CredentialResolver resolves indirect credential references found in
// backend configurations.
type CredentialResolver interface {
	// Resolve returns the secret value a reference points at.
	Resolve(ctx context.Context, ref string) (string, error)
}

// VaultCredentials resolves vault:<mount>/<path>#<field> references against
// a Vault KV v2 secrets engine.
type VaultCredentials struct {
	client *api.Client
}

// NewVaultCredentials creates a resolver for the Vault server at address,
// authenticating with the given token.
func NewVaultCredentials(address, token string) (*VaultCredentials, error) {
	cfg := api.DefaultConfig()
	cfg.Address = address

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(token)

	return &VaultCredentials{client: client}, nil
}

// Resolve reads the referenced KV v2 secret and returns the named field.
func (v *VaultCredentials) Resolve(ctx context.Context, ref string) (string, error) {
	mount, secretPath, field, err := parseCredentialRef(ref)
	if err != nil {
		return "", err
	}

	// KV v2 injects /data/ between the mount and the secret path.
	readPath := fmt.Sprintf("%s/data/%s", mount, secretPath)
	secret, err := v.client.Logical().ReadWithContext(ctx, readPath)
	if err != nil {
		return "", fmt.Errorf("failed to read from Vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("%w: secret %s not found in Vault", interfaces.ErrInvalidConfig, readPath)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("%w: unexpected KV v2 payload at %s", interfaces.ErrInvalidConfig, readPath)
	}
	value, ok := data[field].(string)
	if !ok {
		return "", fmt.Errorf("%w: field %q missing in secret %s", interfaces.ErrInvalidConfig, field, readPath)
	}
	return value, nil
}

// parseCredentialRef splits vault:<mount>/<path>#<field> into its parts.
func parseCredentialRef(ref string) (mount, secretPath, field string, err error) {
	rest, ok := strings.CutPrefix(ref, credentialRefPrefix)
	if !ok {
		return "", "", "", fmt.Errorf("%w: not a vault reference: %q", interfaces.ErrInvalidConfig, ref)
	}

	rest, field, ok = strings.Cut(rest, "#")
	if !ok || field == "" {
		return "", "", "", fmt.Errorf("%w: vault reference missing #field: %q", interfaces.ErrInvalidConfig, ref)
	}

	mount, secretPath, ok = strings.Cut(rest, "/")
	if !ok || mount == "" || secretPath == "" {
		return "", "", "", fmt.Errorf("%w: vault reference missing mount or path: %q", interfaces.ErrInvalidConfig, ref)
	}
	return mount, secretPath, field, nil
}
