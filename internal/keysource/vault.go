package keysource

import (
	"context"
	"errors"
	"fmt"
	"sort"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/vyrodovalexey/signgate/internal/apikey"
	"github.com/vyrodovalexey/signgate/internal/config"
)

// VaultSource reads keys from a Vault KV v2 mount. Each configured path
// holds a map of key id to secret; simple key values are ignored.
type VaultSource struct {
	client *vaultapi.Client
	mount  string
	paths  map[apikey.Scheme]string
}

// NewVaultSource creates a Vault client for cfg. It does not contact
// Vault until Load.
func NewVaultSource(cfg config.VaultSourceConfig) (*VaultSource, error) {
	vcfg := vaultapi.DefaultConfig()
	vcfg.Address = cfg.Address
	if cfg.Timeout > 0 {
		vcfg.Timeout = cfg.Timeout.Duration()
	}
	vcfg.MaxRetries = 1

	client, err := vaultapi.NewClient(vcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	mount := cfg.Mount
	if mount == "" {
		mount = config.DefaultVaultMount
	}

	paths := make(map[apikey.Scheme]string, 2)
	if cfg.SimplePath != "" {
		paths[apikey.SchemeSimple] = cfg.SimplePath
	}
	if cfg.ComplexPath != "" {
		paths[apikey.SchemeComplex] = cfg.ComplexPath
	}

	return &VaultSource{client: client, mount: mount, paths: paths}, nil
}

// Load implements Source.
func (s *VaultSource) Load(ctx context.Context) ([]config.KeyRecord, error) {
	var out []config.KeyRecord

	for _, scheme := range []apikey.Scheme{apikey.SchemeSimple, apikey.SchemeComplex} {
		path, ok := s.paths[scheme]
		if !ok {
			continue
		}

		secret, err := s.client.KVv2(s.mount).Get(ctx, path)
		if err != nil {
			if errors.Is(err, vaultapi.ErrSecretNotFound) {
				continue
			}
			return nil, fmt.Errorf("%w: vault %s/%s: %w", ErrSourceUnavailable, s.mount, path, err)
		}

		records, err := recordsFromData(scheme, secret.Data)
		if err != nil {
			return nil, fmt.Errorf("vault %s/%s: %w", s.mount, path, err)
		}
		out = append(out, records...)
	}

	return out, nil
}

// Name implements Source.
func (s *VaultSource) Name() string {
	return SourceVault
}

func recordsFromData(scheme apikey.Scheme, data map[string]any) ([]config.KeyRecord, error) {
	ids := make([]string, 0, len(data))
	for id := range data {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]config.KeyRecord, 0, len(ids))
	for _, id := range ids {
		rec := config.KeyRecord{ID: id, Scheme: string(scheme)}
		if scheme == apikey.SchemeComplex {
			secret, ok := data[id].(string)
			if !ok || secret == "" {
				return nil, fmt.Errorf("%w: complex key %q has no string secret", apikey.ErrInvalidRecord, id)
			}
			rec.Secret = secret
		}
		out = append(out, rec)
	}
	return out, nil
}
