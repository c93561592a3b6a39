package interfaces

import (
	"fmt"
	"path"
	"strings"
)

// LogicalPath identifies one stored object or folder independently of any
// physical backend. It is an immutable value; composing a deeper path returns
// a new value.
type LogicalPath struct {
	// Tenant is the owning tenant's slug.
	Tenant string

	// Category is the content category slug (e.g. "images", "videos").
	Category string

	// Rel is the slash-separated path below the category. May be empty, in
	// which case the path names the category folder itself.
	Rel string
}

// NewLogicalPath creates a validated logical path from a tenant, category and
// optional relative segments.
func NewLogicalPath(tenant, category string, segments ...string) (LogicalPath, error) {
	if err := validateSlug(tenant); err != nil {
		return LogicalPath{}, fmt.Errorf("%w: tenant %q: %v", ErrInvalidPath, tenant, err)
	}
	if err := validateSlug(category); err != nil {
		return LogicalPath{}, fmt.Errorf("%w: category %q: %v", ErrInvalidPath, category, err)
	}
	for _, seg := range segments {
		if err := validateSegment(seg); err != nil {
			return LogicalPath{}, fmt.Errorf("%w: segment %q: %v", ErrInvalidPath, seg, err)
		}
	}
	return LogicalPath{
		Tenant:   tenant,
		Category: category,
		Rel:      path.Join(segments...),
	}, nil
}

// Join returns a new path with the given segments appended. Invalid segments
// yield an error rather than silently escaping the tenant's tree.
func (p LogicalPath) Join(segments ...string) (LogicalPath, error) {
	for _, seg := range segments {
		if err := validateSegment(seg); err != nil {
			return LogicalPath{}, fmt.Errorf("%w: segment %q: %v", ErrInvalidPath, seg, err)
		}
	}
	joined := p
	joined.Rel = path.Join(append([]string{p.Rel}, segments...)...)
	return joined, nil
}

// Key returns the canonical slash-separated form, unique per object.
func (p LogicalPath) Key() string {
	if p.Rel == "" {
		return p.Tenant + "/" + p.Category
	}
	return p.Tenant + "/" + p.Category + "/" + p.Rel
}

// String implements fmt.Stringer.
func (p LogicalPath) String() string {
	return p.Key()
}

func validateSlug(s string) error {
	if s == "" {
		return fmt.Errorf("must not be empty")
	}
	if strings.ContainsAny(s, "/\\") {
		return fmt.Errorf("must not contain path separators")
	}
	return validateSegment(s)
}

func validateSegment(s string) error {
	if s == "" {
		return fmt.Errorf("must not be empty")
	}
	if strings.Contains(s, "\\") {
		return fmt.Errorf("must not contain backslashes")
	}
	if strings.HasPrefix(s, "/") {
		return fmt.Errorf("must be relative")
	}
	for _, part := range strings.Split(s, "/") {
		if part == ".." || part == "." {
			return fmt.Errorf("must not contain traversal elements")
		}
	}
	return nil
}

// BackendKind selects a concrete StorageBackend implementation.
type BackendKind string

const (
	// KindLocal stores objects on the local filesystem.
	KindLocal BackendKind = "local"
	// KindS3 stores objects in an S3-compatible bucket.
	KindS3 BackendKind = "s3"
	// KindDrive stores objects on an OAuth-authenticated remote cloud drive.
	KindDrive BackendKind = "drive"
)

// ParseBackendKind converts a string into a BackendKind.
func ParseBackendKind(s string) (BackendKind, error) {
	switch BackendKind(strings.ToLower(s)) {
	case KindLocal:
		return KindLocal, nil
	case KindS3:
		return KindS3, nil
	case KindDrive:
		return KindDrive, nil
	default:
		return "", fmt.Errorf("%w: unknown backend kind %q", ErrInvalidConfig, s)
	}
}

// BackendConfig describes one physical backend. Only the fields for the
// selected Kind are consulted. Credential fields may hold "vault:" references
// resolved by the orchestrator before construction.
type BackendConfig struct {
	Kind BackendKind `json:"kind"`

	// RootDir is the filesystem root for KindLocal.
	RootDir string `json:"root_dir,omitempty"`

	// S3 settings for KindS3.
	Bucket    string `json:"bucket,omitempty"`
	Prefix    string `json:"prefix,omitempty"`
	Region    string `json:"region,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
	AccessKey string `json:"access_key,omitempty"`
	SecretKey string `json:"secret_key,omitempty"`

	// Remote drive settings for KindDrive.
	BaseURL    string `json:"base_url,omitempty"`
	Token      string `json:"token,omitempty"`
	RootFolder string `json:"root_folder,omitempty"`

	// ChunkSize is the transfer chunk size in bytes for KindDrive.
	// Zero selects the default (10 MiB).
	ChunkSize int64 `json:"chunk_size,omitempty"`

	// UploadConcurrency bounds parallel chunk transfers for KindDrive.
	// Zero selects the default (3).
	UploadConcurrency int `json:"upload_concurrency,omitempty"`

	// PublicBaseURL overrides the base of URLs returned by PublicURL.
	PublicBaseURL string `json:"public_base_url,omitempty"`
}

// Validate checks that the fields required by the selected kind are present.
func (c BackendConfig) Validate() error {
	switch c.Kind {
	case KindLocal:
		if c.RootDir == "" {
			return fmt.Errorf("%w: local backend requires root_dir", ErrInvalidConfig)
		}
	case KindS3:
		if c.Bucket == "" {
			return fmt.Errorf("%w: s3 backend requires bucket", ErrInvalidConfig)
		}
		if c.Region == "" && c.Endpoint == "" {
			return fmt.Errorf("%w: s3 backend requires region or endpoint", ErrInvalidConfig)
		}
	case KindDrive:
		if c.BaseURL == "" {
			return fmt.Errorf("%w: drive backend requires base_url", ErrInvalidConfig)
		}
		if c.Token == "" {
			return fmt.Errorf("%w: drive backend requires token", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown backend kind %q", ErrInvalidConfig, c.Kind)
	}
	return nil
}

// TenantBinding overrides the per-category default backend for one tenant.
type TenantBinding struct {
	Tenant   string        `json:"tenant"`
	Category string        `json:"category"`
	Config   BackendConfig `json:"config"`
}
