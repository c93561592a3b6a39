package orchestrator

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/mediastack/media-storage-backend/interfaces"
)

// bindingsFile is the on-disk shape of storage configuration: per-category
// defaults plus tenant overrides.
type bindingsFile struct {
	Defaults map[string]interfaces.BackendConfig `json:"defaults"`
	Tenants  []interfaces.TenantBinding          `json:"tenants"`
}

// LoadBindings reads category defaults and tenant bindings from JSON and
// installs them, invalidating any cached instances they affect. Configs are
// validated up front so a broken file is rejected whole; note that vault:
// credential references cannot be validated here and may still fail at
// construction time.
func (o *Orchestrator) LoadBindings(r io.Reader) error {
	var file bindingsFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return fmt.Errorf("failed to parse bindings: %w", err)
	}

	for category, cfg := range file.Defaults {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("default for category %q: %w", category, err)
		}
	}
	for _, b := range file.Tenants {
		if b.Tenant == "" || b.Category == "" {
			return fmt.Errorf("%w: tenant binding missing tenant or category", interfaces.ErrInvalidConfig)
		}
		if err := b.Config.Validate(); err != nil {
			return fmt.Errorf("binding for %s/%s: %w", b.Tenant, b.Category, err)
		}
	}

	for category, cfg := range file.Defaults {
		o.SetDefault(category, cfg)
	}
	for _, b := range file.Tenants {
		o.SetBinding(b)
	}

	o.log.Info("Loaded storage bindings",
		"defaults", len(file.Defaults),
		"tenants", len(file.Tenants))
	return nil
}
