// Package interfaces defines the contracts shared across the media storage
// system.
//
// The central abstraction is StorageBackend: the operation set every physical
// backend (local disk, S3-compatible object store, remote cloud drive)
// implements. Callers address content through LogicalPath values — a
// (tenant, category, relative path) triple that maps deterministically to one
// physical location per backend — and never depend on a concrete backend type.
//
// # Backend Selection
//
// Backends are described by BackendConfig, a tagged value whose Kind field
// selects exactly one implementation:
//
//	cfg := interfaces.BackendConfig{
//	    Kind:    interfaces.KindS3,
//	    Bucket:  "media-prod",
//	    Region:  "eu-central-1",
//	}
//
// The storage package's factory turns a BackendConfig into a StorageBackend;
// the orchestrator package resolves which BackendConfig applies to a given
// (tenant, category) pair.
//
// # Error Taxonomy
//
// Operations surface a small set of sentinel errors callers can test with
// errors.Is:
//
//   - ErrNotFound: object absent on Get.
//   - ErrStorageUnavailable: transient backend failures that survived the
//     retry budget. Retryable by the caller.
//   - ErrPermanentBackend: auth/permission failures. Not retryable; requires
//     a configuration fix.
//   - ErrInvalidConfig: a BackendConfig that cannot produce a working backend.
//   - ErrInvalidPath: a LogicalPath that fails validation.
package interfaces
