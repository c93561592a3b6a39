package interfaces

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogicalPath(t *testing.T) {
	p, err := NewLogicalPath("acme", "images", "2026", "photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, "acme/images/2026/photo.jpg", p.Key())
	assert.Equal(t, p.Key(), p.String())

	// Without segments the path names the category folder.
	p, err = NewLogicalPath("acme", "images")
	require.NoError(t, err)
	assert.Equal(t, "acme/images", p.Key())
}

func TestNewLogicalPath_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		tenant   string
		category string
		segments []string
	}{
		{name: "empty tenant", tenant: "", category: "images"},
		{name: "empty category", tenant: "acme", category: ""},
		{name: "tenant with slash", tenant: "acme/evil", category: "images"},
		{name: "category with backslash", tenant: "acme", category: `ima\ges`},
		{name: "traversal segment", tenant: "acme", category: "images", segments: []string{".."}},
		{name: "dot segment", tenant: "acme", category: "images", segments: []string{"."}},
		{name: "embedded traversal", tenant: "acme", category: "images", segments: []string{"a/../b"}},
		{name: "absolute segment", tenant: "acme", category: "images", segments: []string{"/etc"}},
		{name: "empty segment", tenant: "acme", category: "images", segments: []string{""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLogicalPath(tt.tenant, tt.category, tt.segments...)
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}

func TestLogicalPath_Join(t *testing.T) {
	base, err := NewLogicalPath("acme", "images")
	require.NoError(t, err)

	deep, err := base.Join("2026", "photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, "acme/images/2026/photo.jpg", deep.Key())

	// Join is non-mutating.
	assert.Equal(t, "acme/images", base.Key())

	_, err = base.Join("..")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestParseBackendKind(t *testing.T) {
	for s, want := range map[string]BackendKind{
		"local": KindLocal,
		"s3":    KindS3,
		"S3":    KindS3,
		"Drive": KindDrive,
	} {
		kind, err := ParseBackendKind(s)
		require.NoError(t, err)
		assert.Equal(t, want, kind)
	}

	_, err := ParseBackendKind("ftp")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBackendConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     BackendConfig
		wantErr bool
	}{
		{name: "valid local", cfg: BackendConfig{Kind: KindLocal, RootDir: "/data"}},
		{name: "local without root", cfg: BackendConfig{Kind: KindLocal}, wantErr: true},
		{name: "valid s3 with region", cfg: BackendConfig{Kind: KindS3, Bucket: "b", Region: "us-east-1"}},
		{name: "valid s3 with endpoint", cfg: BackendConfig{Kind: KindS3, Bucket: "b", Endpoint: "http://minio:9000"}},
		{name: "s3 without bucket", cfg: BackendConfig{Kind: KindS3, Region: "us-east-1"}, wantErr: true},
		{name: "s3 without region or endpoint", cfg: BackendConfig{Kind: KindS3, Bucket: "b"}, wantErr: true},
		{name: "valid drive", cfg: BackendConfig{Kind: KindDrive, BaseURL: "https://d.example.com", Token: "t"}},
		{name: "drive without base url", cfg: BackendConfig{Kind: KindDrive, Token: "t"}, wantErr: true},
		{name: "drive without token", cfg: BackendConfig{Kind: KindDrive, BaseURL: "https://d.example.com"}, wantErr: true},
		{name: "unknown kind", cfg: BackendConfig{Kind: "ftp"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
