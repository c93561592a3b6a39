package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediastack/media-storage-backend/interfaces"
)

func TestParseCredentialRef(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		mount   string
		path    string
		field   string
		wantErr bool
	}{
		{
			name:  "simple",
			ref:   "vault:secret/acme-drive#token",
			mount: "secret", path: "acme-drive", field: "token",
		},
		{
			name:  "nested path",
			ref:   "vault:kv/tenants/acme/s3#secret_key",
			mount: "kv", path: "tenants/acme/s3", field: "secret_key",
		},
		{name: "missing prefix", ref: "secret/acme#token", wantErr: true},
		{name: "missing field", ref: "vault:secret/acme", wantErr: true},
		{name: "empty field", ref: "vault:secret/acme#", wantErr: true},
		{name: "missing path", ref: "vault:secret#token", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mount, path, field, err := parseCredentialRef(tt.ref)
			if tt.wantErr {
				assert.ErrorIs(t, err, interfaces.ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.mount, mount)
			assert.Equal(t, tt.path, path)
			assert.Equal(t, tt.field, field)
		})
	}
}

func TestVaultCredentials_Resolve(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != "test-token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		switch r.URL.Path {
		case "/v1/secret/data/acme-drive":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"data":{"data":{"token":"s3cr3t-bearer"},"metadata":{"version":1}}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(ts.Close)

	creds, err := NewVaultCredentials(ts.URL, "test-token")
	require.NoError(t, err)

	value, err := creds.Resolve(context.Background(), "vault:secret/acme-drive#token")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t-bearer", value)

	// Present secret, absent field.
	_, err = creds.Resolve(context.Background(), "vault:secret/acme-drive#missing")
	assert.ErrorIs(t, err, interfaces.ErrInvalidConfig)

	// Absent secret.
	_, err = creds.Resolve(context.Background(), "vault:secret/unknown#token")
	assert.ErrorIs(t, err, interfaces.ErrInvalidConfig)
}

func TestOrchestrator_ResolvesCredentialReferences(t *testing.T) {
	vault := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/secret/data/acme-drive" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"data":{"token":"resolved-token"}}}`)
	}))
	t.Cleanup(vault.Close)

	creds, err := NewVaultCredentials(vault.URL, "test-token")
	require.NoError(t, err)

	orc := newTestOrchestrator(t).WithCredentialResolver(creds)

	cfg := driveConfig("https://acme-drive.example.com")
	cfg.Token = "vault:secret/acme-drive#token"
	orc.SetBinding(interfaces.TenantBinding{Tenant: "acme", Category: "images", Config: cfg})

	backend, err := orc.Resolve(context.Background(), "acme", "images")
	require.NoError(t, err)
	assert.Equal(t, interfaces.KindDrive, backend.Kind(), "reference resolution must not trigger the fallback")
}
