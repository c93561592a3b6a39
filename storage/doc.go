// Package storage implements the StorageBackend contract for the three
// physical backends and the pieces they share.
//
//   - LocalBackend: direct filesystem I/O under a configured root. No
//     retries; disk errors are permanent.
//   - S3Backend: single-call operations against an S3-compatible bucket via
//     the AWS SDK. Timeouts and 5xx responses go through the shared retry
//     policy.
//   - DriveBackend: an OAuth-bearer HTTP backend with pooled connections,
//     chunked concurrent transfer for large payloads and a shared
//     directory-existence cache.
//
// The shared pieces are:
//
//   - RetryPolicy: capped exponential backoff with jitter and a
//     retryable-error predicate, used uniformly by every network-calling
//     backend so retry semantics stay consistent and testable in isolation.
//   - DirCache: a bounded LRU memo of directory existence checks with
//     per-entry TTL, shared by backends that pay a network round-trip for
//     existence checks.
//   - Factory: produces exactly one backend per BackendConfig so call sites
//     depend only on the interfaces.StorageBackend contract.
//
// # Error Classification
//
// Network failures are classified at the call site: HTTP 429 and 5xx
// responses and connection timeouts are marked transient and retried; other
// 4xx responses surface immediately as interfaces.ErrPermanentBackend. A
// transient failure that survives the retry budget surfaces as
// interfaces.ErrStorageUnavailable.
package storage
