package vault_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Surf-Wax/automated-secrets-management-poc/internal/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVaultServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestHealth(t *testing.T) {
	t.Parallel()

	srv := newVaultServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/sys/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))

	client := vault.NewClient(srv.URL, "root")
	require.NoError(t, client.Health(context.Background()))
}

func TestHealthSealed(t *testing.T) {
	t.Parallel()

	srv := newVaultServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable) // sealed
	}))

	client := vault.NewClient(srv.URL, "root")
	assert.Error(t, client.Health(context.Background()))
}

func TestHealthUnreachable(t *testing.T) {
	t.Parallel()

	client := vault.NewClient("http://127.0.0.1:1", "root")
	err := client.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vault endpoint unreachable")
}

func TestTokenLookupSelf(t *testing.T) {
	t.Parallel()

	srv := newVaultServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/auth/token/lookup-self", r.URL.Path)
		if r.Header.Get("X-Vault-Token") != "root" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, vault.NewClient(srv.URL, "root").TokenLookupSelf(context.Background()))
	assert.Error(t, vault.NewClient(srv.URL, "wrong").TokenLookupSelf(context.Background()))
}

func TestReadDecodesSecret(t *testing.T) {
	t.Parallel()

	srv := newVaultServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/aws/static-creds/app-credentials", r.URL.Path)
		assert.Equal(t, "root", r.Header.Get("X-Vault-Token"))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"request_id":     "req-1",
			"lease_id":       "aws/static-creds/app-credentials/abc",
			"lease_duration": 61,
			"data": map[string]interface{}{
				"access_key": "AKIAMOCK0001",
				"secret_key": "mock-secret-1",
				"ttl":        42,
			},
		})
	}))

	client := vault.NewClient(srv.URL, "root")
	secret, err := client.Read(context.Background(), "aws/static-creds/app-credentials")
	require.NoError(t, err)
	require.NotNil(t, secret)
	assert.Equal(t, "AKIAMOCK0001", secret.Data["access_key"])
	assert.Equal(t, 61, secret.LeaseDuration)
}

func TestReadNotFoundReturnsNil(t *testing.T) {
	t.Parallel()

	srv := newVaultServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	secret, err := vault.NewClient(srv.URL, "root").Read(context.Background(), "aws/static-creds/missing")
	require.NoError(t, err)
	assert.Nil(t, secret)
}

func TestWriteSendsToken(t *testing.T) {
	t.Parallel()

	var got map[string]interface{}
	srv := newVaultServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/v1/aws/config/root", r.URL.Path)
		assert.Equal(t, "root", r.Header.Get("X-Vault-Token"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))

	err := vault.NewClient(srv.URL, "root").Write(context.Background(), "aws/config/root", map[string]interface{}{
		"access_key": "AKIAMANAGER",
		"region":     "us-east-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "AKIAMANAGER", got["access_key"])
}

func TestWriteSurfacesVaultError(t *testing.T) {
	t.Parallel()

	srv := newVaultServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":["missing username"]}`))
	}))

	err := vault.NewClient(srv.URL, "root").Write(context.Background(), "aws/static-roles/x", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing username")
}

func TestMountExists(t *testing.T) {
	t.Parallel()

	srv := newVaultServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/sys/mounts", r.URL.Path)
		_, _ = w.Write([]byte(`{"aws/": {"type": "aws"}, "secret/": {"type": "kv"}}`))
	}))

	client := vault.NewClient(srv.URL, "root")

	exists, err := client.MountExists(context.Background(), "aws")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = client.MountExists(context.Background(), "gcp")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestEnableSecretsEngine(t *testing.T) {
	t.Parallel()

	var got map[string]interface{}
	srv := newVaultServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/sys/mounts/aws", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))

	err := vault.NewClient(srv.URL, "root").EnableSecretsEngine(context.Background(), "aws", "aws", "demo engine")
	require.NoError(t, err)
	assert.Equal(t, "aws", got["type"])
}
