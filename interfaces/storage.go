package interfaces

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a requested object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrStorageUnavailable is returned once a transient backend failure has
	// exhausted the retry budget. The operation may succeed if repeated.
	ErrStorageUnavailable = errors.New("storage backend unavailable")

	// ErrPermanentBackend is returned for auth and permission failures that
	// will not resolve on retry. A configuration fix is required.
	ErrPermanentBackend = errors.New("permanent backend error")

	// ErrInvalidConfig is returned when a BackendConfig cannot produce a
	// working backend.
	ErrInvalidConfig = errors.New("invalid backend configuration")

	// ErrInvalidPath is returned when a LogicalPath fails validation.
	ErrInvalidPath = errors.New("invalid logical path")
)

// StorageBackend is the uniform contract every physical backend implements.
// All operations are safe for concurrent use by independent callers. No
// ordering is guaranteed between operations on different paths; concurrent
// writers to the same path are a caller responsibility to avoid.
type StorageBackend interface {
	// Save writes data at path, creating parent folders as needed, and
	// returns a caller-usable retrieval URL.
	Save(ctx context.Context, p LogicalPath, data []byte) (string, error)

	// Get returns the exact bytes previously saved at path, or ErrNotFound.
	Get(ctx context.Context, p LogicalPath) ([]byte, error)

	// Delete removes the object at path. Deleting a non-existent path is not
	// an error; the bool reports whether an object was actually removed.
	Delete(ctx context.Context, p LogicalPath) (bool, error)

	// Exists reports whether an object is present at path.
	Exists(ctx context.Context, p LogicalPath) (bool, error)

	// PublicURL derives the retrieval URL for path from backend configuration
	// alone. It performs no network call and does not imply the object exists.
	PublicURL(p LogicalPath) string

	// CreateDirectory ensures the folder at path exists. The bool reports
	// whether it was newly created.
	CreateDirectory(ctx context.Context, p LogicalPath) (bool, error)

	// DirectoryExists reports whether the folder at path exists.
	DirectoryExists(ctx context.Context, p LogicalPath) (bool, error)

	// ListDirectories returns the names of folders directly under base.
	ListDirectories(ctx context.Context, base LogicalPath) ([]string, error)

	// Provision pre-creates the folder tree for a tenant: one folder per
	// category, each with the given subfolders. It returns the logical keys
	// of the folders it ensured.
	Provision(ctx context.Context, tenant string, categories, subfolders []string) ([]string, error)

	// Kind returns the backend kind tag.
	Kind() BackendKind

	// Name returns an identifier for logging and provisioning reports.
	Name() string
}
