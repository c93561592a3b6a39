package storage

import (
	"fmt"
	"log/slog"

	"github.com/mediastack/media-storage-backend/interfaces"
)

// Factory creates storage backends from tagged BackendConfig values. All
// drive backends it creates share one directory-existence cache, so repeated
// checks across tenants bound to the same drive host stay cheap.
type Factory struct {
	log  *slog.Logger
	dirs *DirCache
}

// NewFactory creates a factory with a shared directory cache of default
// capacity and TTL.
func NewFactory(log *slog.Logger) *Factory {
	return &Factory{
		log:  log,
		dirs: NewDirCache(0, 0),
	}
}

// WithDirCache replaces the shared directory cache; used to tune capacity
// and TTL from configuration.
func (f *Factory) WithDirCache(dirs *DirCache) *Factory {
	f.dirs = dirs
	return f
}

// BackendFor creates exactly one backend for cfg based on its Kind tag.
// Returns interfaces.ErrInvalidConfig for unknown kinds or incomplete
// configuration.
func (f *Factory) BackendFor(cfg interfaces.BackendConfig) (interfaces.StorageBackend, error) {
	switch cfg.Kind {
	case interfaces.KindLocal:
		f.log.Debug("Creating local backend", slog.String("root", cfg.RootDir))
		return NewLocalBackend(cfg, f.log)
	case interfaces.KindS3:
		f.log.Debug("Creating S3 backend", slog.String("bucket", cfg.Bucket))
		return NewS3Backend(cfg, f.log)
	case interfaces.KindDrive:
		f.log.Debug("Creating drive backend", slog.String("base_url", cfg.BaseURL))
		return NewDriveBackend(cfg, f.dirs, f.log)
	default:
		return nil, fmt.Errorf("%w: unsupported backend kind: %s", interfaces.ErrInvalidConfig, cfg.Kind)
	}
}
