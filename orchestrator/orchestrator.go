package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mediastack/media-storage-backend/interfaces"
	"github.com/mediastack/media-storage-backend/metrics"
	"github.com/mediastack/media-storage-backend/storage"
)

// instanceKey identifies one cached backend instance.
type instanceKey struct {
	tenant   string
	category string
}

// ProvisionResult is one backend's entry in a hierarchy provisioning report:
// either the logical keys of the folders it ensured, or its specific error.
type ProvisionResult struct {
	Created []string
	Err     error
}

// Orchestrator resolves, caches and routes to storage backends per
// (tenant, category). It holds the only two process-wide mutable structures:
// the instance cache guarded here and the directory cache inside the factory.
type Orchestrator struct {
	mu        sync.RWMutex
	instances map[instanceKey]interfaces.StorageBackend
	bindings  map[instanceKey]interfaces.BackendConfig
	defaults  map[string]interfaces.BackendConfig

	factory  *storage.Factory
	fallback interfaces.BackendConfig
	creds    CredentialResolver
	log      *slog.Logger
}

// New creates an orchestrator. The fallback config must describe a local
// backend; it is used when a resolved configuration cannot produce a working
// backend.
func New(factory *storage.Factory, fallback interfaces.BackendConfig, log *slog.Logger) (*Orchestrator, error) {
	if fallback.Kind != interfaces.KindLocal {
		return nil, fmt.Errorf("%w: fallback must be a local backend", interfaces.ErrInvalidConfig)
	}
	if err := fallback.Validate(); err != nil {
		return nil, err
	}

	return &Orchestrator{
		instances: make(map[instanceKey]interfaces.StorageBackend),
		bindings:  make(map[instanceKey]interfaces.BackendConfig),
		defaults:  make(map[string]interfaces.BackendConfig),
		factory:   factory,
		fallback:  fallback,
		log:       log,
	}, nil
}

// WithCredentialResolver enables vault: credential references in backend
// configurations.
func (o *Orchestrator) WithCredentialResolver(creds CredentialResolver) *Orchestrator {
	o.creds = creds
	return o
}

// SetDefault installs the global default backend for a content category and
// drops every cached instance that resolved through it.
func (o *Orchestrator) SetDefault(category string, cfg interfaces.BackendConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.defaults[category] = cfg
	for key := range o.instances {
		if key.category == category {
			if _, bound := o.bindings[key]; !bound {
				delete(o.instances, key)
			}
		}
	}
}

// SetBinding installs a tenant override and invalidates the affected cached
// instance atomically.
func (o *Orchestrator) SetBinding(b interfaces.TenantBinding) {
	key := instanceKey{tenant: b.Tenant, category: b.Category}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.bindings[key] = b.Config
	delete(o.instances, key)
}

// RemoveBinding drops a tenant override; the tenant falls back to the
// category default on next resolution.
func (o *Orchestrator) RemoveBinding(tenant, category string) {
	key := instanceKey{tenant: tenant, category: category}

	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.bindings, key)
	delete(o.instances, key)
}

// Invalidate removes the cached instance for (tenant, category) so the next
// resolution rebuilds it from fresh configuration.
func (o *Orchestrator) Invalidate(tenant, category string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.instances, instanceKey{tenant: tenant, category: category})
}

// Resolve returns the backend serving (tenant, category), constructing and
// caching it on first use. Construction may resolve credentials over the
// network, so it runs outside the lock: a slow build for one tenant never
// stalls cache hits for others. Construction failures degrade to the local
// fallback rather than failing the caller.
func (o *Orchestrator) Resolve(ctx context.Context, tenant, category string) (interfaces.StorageBackend, error) {
	key := instanceKey{tenant: tenant, category: category}

	o.mu.RLock()
	backend, ok := o.instances[key]
	cfg := o.configForLocked(key)
	o.mu.RUnlock()
	if ok {
		return backend, nil
	}

	backend, err := o.construct(ctx, cfg)
	if err != nil {
		o.log.Error("Failed to construct configured backend, falling back to local storage",
			slog.String("tenant", tenant),
			slog.String("category", category),
			slog.String("kind", string(cfg.Kind)),
			"err", err)
		metrics.FallbackTotal.Inc()

		backend, err = o.factory.BackendFor(o.fallback)
		if err != nil {
			return nil, fmt.Errorf("fallback backend construction failed: %w", err)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	// Another caller may have finished constructing while we did; keep its
	// instance so concurrent resolutions converge on one backend.
	if existing, ok := o.instances[key]; ok {
		return existing, nil
	}
	// If the binding changed underneath us, serve the now-stale backend for
	// this call only; caching it would mask the new configuration.
	if o.configForLocked(key) != cfg {
		return backend, nil
	}

	o.instances[key] = backend
	return backend, nil
}

// ProvisionHierarchy fans provisioning out to every backend relevant to this
// tenant's configuration and returns a partial-success map keyed by backend
// name: a failure in one backend never blocks provisioning in another, and
// construction failures are reported rather than masked by the fallback.
func (o *Orchestrator) ProvisionHierarchy(ctx context.Context, tenant string, categories, subfolders []string) map[string]ProvisionResult {
	o.mu.RLock()
	// Group categories by the distinct physical backend serving them.
	groups := make(map[string]struct {
		cfg        interfaces.BackendConfig
		categories []string
	})
	for _, category := range categories {
		cfg := o.configForLocked(instanceKey{tenant: tenant, category: category})
		name := configName(cfg)
		group := groups[name]
		group.cfg = cfg
		group.categories = append(group.categories, category)
		groups[name] = group
	}
	o.mu.RUnlock()

	results := make(map[string]ProvisionResult, len(groups))
	for name, group := range groups {
		backend, err := o.construct(ctx, group.cfg)
		if err != nil {
			results[name] = ProvisionResult{Err: fmt.Errorf("backend construction failed: %w", err)}
			continue
		}

		created, err := backend.Provision(ctx, tenant, group.categories, subfolders)
		results[name] = ProvisionResult{Created: created, Err: err}
	}

	o.log.Info("Provisioned tenant hierarchy",
		slog.String("tenant", tenant),
		slog.Int("backends", len(results)))
	return results
}

// configForLocked resolves the configuration for a key: tenant binding, then
// category default, then the local fallback. Caller must hold o.mu (read or
// write).
func (o *Orchestrator) configForLocked(key instanceKey) interfaces.BackendConfig {
	if cfg, ok := o.bindings[key]; ok {
		return cfg
	}
	if cfg, ok := o.defaults[key.category]; ok {
		return cfg
	}
	return o.fallback
}

// construct resolves credential references and builds the backend.
func (o *Orchestrator) construct(ctx context.Context, cfg interfaces.BackendConfig) (interfaces.StorageBackend, error) {
	resolved, err := o.resolveCredentials(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return o.factory.BackendFor(resolved)
}

// resolveCredentials replaces vault: references in credential fields with
// their secret values.
func (o *Orchestrator) resolveCredentials(ctx context.Context, cfg interfaces.BackendConfig) (interfaces.BackendConfig, error) {
	for _, field := range []*string{&cfg.AccessKey, &cfg.SecretKey, &cfg.Token} {
		if !strings.HasPrefix(*field, credentialRefPrefix) {
			continue
		}
		if o.creds == nil {
			return cfg, fmt.Errorf("%w: credential reference %q but no resolver configured", interfaces.ErrInvalidConfig, *field)
		}
		value, err := o.creds.Resolve(ctx, *field)
		if err != nil {
			return cfg, fmt.Errorf("resolving credential reference: %w", err)
		}
		*field = value
	}
	return cfg, nil
}

// configName derives the backend name a config would produce, so
// provisioning reports stay keyed consistently even when construction fails.
func configName(cfg interfaces.BackendConfig) string {
	switch cfg.Kind {
	case interfaces.KindLocal:
		return fmt.Sprintf("local-%s", filepath.Base(cfg.RootDir))
	case interfaces.KindS3:
		return fmt.Sprintf("s3-%s", cfg.Bucket)
	case interfaces.KindDrive:
		if u, err := url.Parse(cfg.BaseURL); err == nil && u.Host != "" {
			return fmt.Sprintf("drive-%s", u.Host)
		}
		return "drive"
	default:
		return string(cfg.Kind)
	}
}
