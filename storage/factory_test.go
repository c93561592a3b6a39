package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediastack/media-storage-backend/interfaces"
)

func TestFactory_BackendFor(t *testing.T) {
	factory := NewFactory(testLogger())

	local, err := factory.BackendFor(interfaces.BackendConfig{
		Kind:    interfaces.KindLocal,
		RootDir: t.TempDir(),
	})
	require.NoError(t, err)
	assert.IsType(t, &LocalBackend{}, local)
	assert.Equal(t, interfaces.KindLocal, local.Kind())

	s3b, err := factory.BackendFor(interfaces.BackendConfig{
		Kind:      interfaces.KindS3,
		Bucket:    "media",
		Region:    "us-east-1",
		AccessKey: "a",
		SecretKey: "s",
	})
	require.NoError(t, err)
	assert.IsType(t, &S3Backend{}, s3b)
	assert.Equal(t, interfaces.KindS3, s3b.Kind())

	drive, err := factory.BackendFor(interfaces.BackendConfig{
		Kind:    interfaces.KindDrive,
		BaseURL: "https://drive.example.com",
		Token:   "t",
	})
	require.NoError(t, err)
	assert.IsType(t, &DriveBackend{}, drive)
	assert.Equal(t, interfaces.KindDrive, drive.Kind())
}

func TestFactory_UnknownKind(t *testing.T) {
	factory := NewFactory(testLogger())

	_, err := factory.BackendFor(interfaces.BackendConfig{Kind: "ftp"})
	assert.ErrorIs(t, err, interfaces.ErrInvalidConfig)
}

func TestFactory_IncompleteConfig(t *testing.T) {
	factory := NewFactory(testLogger())

	// A drive config without a base URL must be rejected, not constructed.
	_, err := factory.BackendFor(interfaces.BackendConfig{Kind: interfaces.KindDrive})
	assert.ErrorIs(t, err, interfaces.ErrInvalidConfig)
}

func TestFactory_DriveBackendsShareDirCache(t *testing.T) {
	factory := NewFactory(testLogger())

	a, err := factory.BackendFor(interfaces.BackendConfig{
		Kind:    interfaces.KindDrive,
		BaseURL: "https://drive-a.example.com",
		Token:   "t",
	})
	require.NoError(t, err)
	b, err := factory.BackendFor(interfaces.BackendConfig{
		Kind:    interfaces.KindDrive,
		BaseURL: "https://drive-b.example.com",
		Token:   "t",
	})
	require.NoError(t, err)

	assert.Same(t, a.(*DriveBackend).dirs, b.(*DriveBackend).dirs)
}
