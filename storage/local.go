package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mediastack/media-storage-backend/interfaces"
	"github.com/mediastack/media-storage-backend/metrics"
)

// LocalBackend implements a storage backend on the local filesystem. I/O
// errors are treated as permanent and never retried: disk state does not
// self-heal on retry.
type LocalBackend struct {
	rootDir    string
	publicBase string
	log        *slog.Logger
}

// NewLocalBackend creates a filesystem backend rooted at cfg.RootDir,
// creating the root if necessary.
func NewLocalBackend(cfg interfaces.BackendConfig, log *slog.Logger) (*LocalBackend, error) {
	if cfg.RootDir == "" {
		return nil, fmt.Errorf("%w: local backend requires root_dir", interfaces.ErrInvalidConfig)
	}

	root, err := filepath.Abs(cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving root: %v", interfaces.ErrInvalidConfig, err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}

	return &LocalBackend{
		rootDir:    root,
		publicBase: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
		log:        log,
	}, nil
}

// Save writes data under the root, creating parent directories as needed.
func (b *LocalBackend) Save(ctx context.Context, p interfaces.LogicalPath, data []byte) (string, error) {
	fp := b.filePath(p)

	if err := os.MkdirAll(filepath.Dir(fp), 0755); err != nil {
		metrics.OpsTotal.WithLabelValues("local", "save", "error").Inc()
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(fp, data, 0644); err != nil {
		metrics.OpsTotal.WithLabelValues("local", "save", "error").Inc()
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	b.log.Debug("Stored content on local disk",
		slog.String("path", fp),
		slog.Int("size", len(data)))
	metrics.OpsTotal.WithLabelValues("local", "save", "ok").Inc()

	return b.PublicURL(p), nil
}

// Get returns the bytes at path, or interfaces.ErrNotFound.
func (b *LocalBackend) Get(ctx context.Context, p interfaces.LogicalPath) ([]byte, error) {
	fp := b.filePath(p)

	data, err := os.ReadFile(fp)
	if err != nil {
		if os.IsNotExist(err) {
			metrics.OpsTotal.WithLabelValues("local", "get", "miss").Inc()
			return nil, interfaces.ErrNotFound
		}
		metrics.OpsTotal.WithLabelValues("local", "get", "error").Inc()
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	b.log.Debug("Fetched content from local disk",
		slog.String("path", fp),
		slog.Int("size", len(data)))
	metrics.OpsTotal.WithLabelValues("local", "get", "ok").Inc()

	return data, nil
}

// Delete removes the object at path. A missing path is not an error.
func (b *LocalBackend) Delete(ctx context.Context, p interfaces.LogicalPath) (bool, error) {
	fp := b.filePath(p)

	if err := os.Remove(fp); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		metrics.OpsTotal.WithLabelValues("local", "delete", "error").Inc()
		return false, fmt.Errorf("failed to delete file: %w", err)
	}

	b.log.Debug("Deleted content from local disk", slog.String("path", fp))
	metrics.OpsTotal.WithLabelValues("local", "delete", "ok").Inc()
	return true, nil
}

// Exists reports whether a regular file is present at path.
func (b *LocalBackend) Exists(ctx context.Context, p interfaces.LogicalPath) (bool, error) {
	info, err := os.Stat(b.filePath(p))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
	return !info.IsDir(), nil
}

// PublicURL returns the configured public base joined with the logical key,
// or a file:// URL when no base is configured.
func (b *LocalBackend) PublicURL(p interfaces.LogicalPath) string {
	if b.publicBase != "" {
		return b.publicBase + "/" + p.Key()
	}
	return "file://" + b.filePath(p)
}

// CreateDirectory ensures the folder at path exists.
func (b *LocalBackend) CreateDirectory(ctx context.Context, p interfaces.LogicalPath) (bool, error) {
	fp := b.filePath(p)

	if info, err := os.Stat(fp); err == nil && info.IsDir() {
		return false, nil
	}
	if err := os.MkdirAll(fp, 0755); err != nil {
		return false, fmt.Errorf("failed to create directory: %w", err)
	}
	return true, nil
}

// DirectoryExists reports whether the folder at path exists. This is a cheap
// local syscall; no caching is needed.
func (b *LocalBackend) DirectoryExists(ctx context.Context, p interfaces.LogicalPath) (bool, error) {
	info, err := os.Stat(b.filePath(p))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat directory: %w", err)
	}
	return info.IsDir(), nil
}

// ListDirectories returns the folder names directly under base.
func (b *LocalBackend) ListDirectories(ctx context.Context, base interfaces.LogicalPath) ([]string, error) {
	entries, err := os.ReadDir(b.filePath(base))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// Provision creates the category and subfolder tree for a tenant.
func (b *LocalBackend) Provision(ctx context.Context, tenant string, categories, subfolders []string) ([]string, error) {
	var created []string
	for _, category := range categories {
		p, err := interfaces.NewLogicalPath(tenant, category)
		if err != nil {
			return created, err
		}
		if _, err := b.CreateDirectory(ctx, p); err != nil {
			return created, fmt.Errorf("provisioning %s: %w", p.Key(), err)
		}
		created = append(created, p.Key())

		for _, sub := range subfolders {
			sp, err := p.Join(sub)
			if err != nil {
				return created, err
			}
			if _, err := b.CreateDirectory(ctx, sp); err != nil {
				return created, fmt.Errorf("provisioning %s: %w", sp.Key(), err)
			}
			created = append(created, sp.Key())
		}
	}

	b.log.Debug("Provisioned tenant hierarchy on local disk",
		slog.String("tenant", tenant),
		slog.Int("folders", len(created)))
	return created, nil
}

// Kind returns the backend kind tag.
func (b *LocalBackend) Kind() interfaces.BackendKind {
	return interfaces.KindLocal
}

// Name returns a unique identifier for this storage backend.
func (b *LocalBackend) Name() string {
	return fmt.Sprintf("local-%s", filepath.Base(b.rootDir))
}

// filePath maps a logical path to its physical location under the root.
func (b *LocalBackend) filePath(p interfaces.LogicalPath) string {
	return filepath.Join(b.rootDir, filepath.FromSlash(p.Key()))
}
