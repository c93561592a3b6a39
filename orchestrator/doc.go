// Package orchestrator routes storage operations to the correct backend per
// tenant and content category.
//
// Resolution walks: cached instance → tenant binding → per-category default →
// configured local fallback. Constructed backends are cached per
// (tenant, category) because construction is non-trivial (connection pools,
// credential resolution); a binding change must be followed by Invalidate so
// the next resolution rebuilds from fresh configuration.
//
// When a tenant's configured backend cannot be constructed (missing or
// invalid credentials) the orchestrator degrades to the local fallback
// instead of failing the caller. The degrade is logged at Error level and
// counted in metrics so it cannot pass unnoticed. Hierarchy provisioning
// never applies the fallback: construction failures show up as per-backend
// failure entries in the provisioning report.
//
// Credential fields in backend configs may be indirect references of the form
//
//	vault:<mount>/<path>#<field>
//
// resolved against Vault KV v2 at construction time, so bindings files never
// carry tenant secrets.
package orchestrator
