package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediastack/media-storage-backend/interfaces"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLocalBackend(t *testing.T) *LocalBackend {
	t.Helper()
	backend, err := NewLocalBackend(interfaces.BackendConfig{
		Kind:    interfaces.KindLocal,
		RootDir: t.TempDir(),
	}, testLogger())
	require.NoError(t, err)
	return backend
}

func mustPath(t *testing.T, tenant, category string, segments ...string) interfaces.LogicalPath {
	t.Helper()
	p, err := interfaces.NewLogicalPath(tenant, category, segments...)
	require.NoError(t, err)
	return p
}

func TestLocalBackend_RoundTrip(t *testing.T) {
	backend := newTestLocalBackend(t)
	ctx := context.Background()
	p := mustPath(t, "acme", "images", "2026", "photo.jpg")
	payload := []byte("jpeg bytes")

	url, err := backend.Save(ctx, p, payload)
	require.NoError(t, err)
	assert.NotEmpty(t, url)

	got, err := backend.Get(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	exists, err := backend.Exists(ctx, p)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLocalBackend_GetNotFound(t *testing.T) {
	backend := newTestLocalBackend(t)

	_, err := backend.Get(context.Background(), mustPath(t, "acme", "images", "missing.jpg"))
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestLocalBackend_DeleteIdempotent(t *testing.T) {
	backend := newTestLocalBackend(t)
	ctx := context.Background()
	p := mustPath(t, "acme", "images", "photo.jpg")

	// Deleting a path that never existed succeeds and reports false.
	deleted, err := backend.Delete(ctx, p)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = backend.Save(ctx, p, []byte("data"))
	require.NoError(t, err)

	deleted, err = backend.Delete(ctx, p)
	require.NoError(t, err)
	assert.True(t, deleted)

	exists, err := backend.Exists(ctx, p)
	require.NoError(t, err)
	assert.False(t, exists)

	deleted, err = backend.Delete(ctx, p)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestLocalBackend_Directories(t *testing.T) {
	backend := newTestLocalBackend(t)
	ctx := context.Background()
	base := mustPath(t, "acme", "images")

	exists, err := backend.DirectoryExists(ctx, base)
	require.NoError(t, err)
	assert.False(t, exists)

	created, err := backend.CreateDirectory(ctx, base)
	require.NoError(t, err)
	assert.True(t, created)

	// Creating an existing directory reports false.
	created, err = backend.CreateDirectory(ctx, base)
	require.NoError(t, err)
	assert.False(t, created)

	for _, sub := range []string{"thumbs", "raw"} {
		sp, err := base.Join(sub)
		require.NoError(t, err)
		_, err = backend.CreateDirectory(ctx, sp)
		require.NoError(t, err)
	}

	dirs, err := backend.ListDirectories(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, []string{"raw", "thumbs"}, dirs)
}

func TestLocalBackend_Provision(t *testing.T) {
	backend := newTestLocalBackend(t)
	ctx := context.Background()

	created, err := backend.Provision(ctx, "acme", []string{"images", "videos"}, []string{"thumbs"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"acme/images",
		"acme/images/thumbs",
		"acme/videos",
		"acme/videos/thumbs",
	}, created)

	for _, category := range []string{"images", "videos"} {
		exists, err := backend.DirectoryExists(ctx, mustPath(t, "acme", category, "thumbs"))
		require.NoError(t, err)
		assert.True(t, exists)
	}
}

func TestLocalBackend_PublicURL(t *testing.T) {
	backend, err := NewLocalBackend(interfaces.BackendConfig{
		Kind:          interfaces.KindLocal,
		RootDir:       t.TempDir(),
		PublicBaseURL: "https://media.example.com/",
	}, testLogger())
	require.NoError(t, err)

	p := mustPath(t, "acme", "images", "photo.jpg")
	assert.Equal(t, "https://media.example.com/acme/images/photo.jpg", backend.PublicURL(p))
}

func TestLocalBackend_RequiresRoot(t *testing.T) {
	_, err := NewLocalBackend(interfaces.BackendConfig{Kind: interfaces.KindLocal}, testLogger())
	assert.ErrorIs(t, err, interfaces.ErrInvalidConfig)
}
