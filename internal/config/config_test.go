package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Surf-Wax/automated-secrets-management-poc/internal/config"
	dserrors "github.com/Surf-Wax/automated-secrets-management-poc/internal/errors"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) *config.Config {
	t.Helper()

	// Isolate from ambient Vault/AWS environment
	for _, key := range []string{"VAULT_ADDR", "VAULT_TOKEN", "AWS_ENDPOINT_URL", "AWS_REGION"} {
		t.Setenv(key, "")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "rotationdemo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return &config.Config{
		Path:   path,
		Logger: logging.New(false, true),
	}
}

func TestLoadMinimalConfigAppliesDefaults(t *testing.T) {
	cfg := writeConfig(t, "version: 0\n")

	require.NoError(t, cfg.Load())

	def := cfg.Definition
	assert.Equal(t, config.DefaultVaultAddress, def.Vault.Address)
	assert.Equal(t, config.DefaultSimulatorEndpoint, def.Simulator.Endpoint)
	assert.Equal(t, "us-east-1", def.Simulator.Region)
	assert.Equal(t, "aws", def.Vault.Mount)
	assert.Equal(t, "app-user", def.Identities.ManagedUser)
	assert.Equal(t, "vault-manager", def.Identities.ManagerUser)
	assert.Equal(t, "app-credentials", def.Rotation.RoleName)
	assert.Equal(t, 61, def.Rotation.IntervalSeconds)
	assert.Equal(t, "rotationdemo.state.json", def.StateFile)
}

func TestLoadFullConfig(t *testing.T) {
	cfg := writeConfig(t, `
version: 0
vault:
  address: http://127.0.0.1:8201
  token: root
  mount: aws-demo
simulator:
  endpoint: http://localhost:4567
  region: eu-west-1
identities:
  managed_user: demo-app
  manager_user: demo-manager
rotation:
  role_name: demo-credentials
  interval_seconds: 30
  safety_margin_seconds: 5
state_file: demo.state.json
`)

	require.NoError(t, cfg.Load())

	def := cfg.Definition
	assert.Equal(t, "http://127.0.0.1:8201", def.Vault.Address)
	assert.Equal(t, "aws-demo", def.Vault.Mount)
	assert.Equal(t, "eu-west-1", def.Simulator.Region)
	assert.Equal(t, 30*time.Second, def.RotationInterval())
	assert.Equal(t, 5*time.Second, def.SafetyMargin())
	assert.Equal(t, 35*time.Second, def.WaitDuration())
}

// TestWaitExceedsInterval pins the zero-downtime boundary: the wait must
// always be strictly greater than the rotation interval.
func TestWaitExceedsInterval(t *testing.T) {
	cfg := writeConfig(t, `
version: 0
rotation:
  interval_seconds: 61
  safety_margin_seconds: 4
`)
	require.NoError(t, cfg.Load())

	def := cfg.Definition
	assert.Greater(t, def.WaitDuration(), def.RotationInterval())
}

func TestZeroSafetyMarginRejected(t *testing.T) {
	cfg := writeConfig(t, `
version: 0
rotation:
  interval_seconds: 61
  safety_margin_seconds: -1
`)

	err := cfg.Load()
	var cfgErr dserrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "rotation.safety_margin_seconds", cfgErr.Field)
	assert.Contains(t, cfgErr.Message, "safety margin")
}

// TestExplicitZeroMarginRejected pins that writing safety_margin_seconds: 0
// is an error, not a silent fallback to the default margin.
func TestExplicitZeroMarginRejected(t *testing.T) {
	cfg := writeConfig(t, `
version: 0
rotation:
  safety_margin_seconds: 0
`)

	err := cfg.Load()
	var cfgErr dserrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "rotation.safety_margin_seconds", cfgErr.Field)
}

func TestExplicitZeroIntervalRejected(t *testing.T) {
	cfg := writeConfig(t, `
version: 0
rotation:
  interval_seconds: 0
`)

	err := cfg.Load()
	var cfgErr dserrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "rotation.interval_seconds", cfgErr.Field)
}

func TestIdenticalIdentitiesRejected(t *testing.T) {
	cfg := writeConfig(t, `
version: 0
identities:
  managed_user: same
  manager_user: same
`)

	err := cfg.Load()
	var cfgErr dserrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Message, "distinct")
}

func TestSchemaRejectsBadEndpoint(t *testing.T) {
	cfg := writeConfig(t, `
version: 0
simulator:
  endpoint: localhost:4566
`)

	err := cfg.Load()
	var cfgErr dserrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Message, "schema")
}

func TestUnsupportedVersionRejected(t *testing.T) {
	cfg := writeConfig(t, "version: 3\n")

	err := cfg.Load()
	var cfgErr dserrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "version", cfgErr.Field)
}

func TestInvalidYAMLRejected(t *testing.T) {
	cfg := writeConfig(t, "version: 0\nvault:\n  address: [unclosed\n")

	err := cfg.Load()
	var cfgErr dserrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Message, "YAML")
}

func TestMissingFile(t *testing.T) {
	cfg := &config.Config{
		Path:   filepath.Join(t.TempDir(), "absent.yaml"),
		Logger: logging.New(false, true),
	}

	err := cfg.Load()
	var cfgErr dserrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Message, "not found")
}

func TestEnvOverrides(t *testing.T) {
	cfg := writeConfig(t, `
version: 0
vault:
  address: http://127.0.0.1:8200
  token: file-token
`)

	t.Setenv("VAULT_ADDR", "http://vault.test:8200")
	t.Setenv("VAULT_TOKEN", "env-token")
	t.Setenv("AWS_ENDPOINT_URL", "http://sim.test:4566")
	t.Setenv("AWS_REGION", "us-west-2")

	require.NoError(t, cfg.Load())

	def := cfg.Definition
	assert.Equal(t, "http://vault.test:8200", def.Vault.Address)
	assert.Equal(t, "env-token", def.Vault.Token)
	assert.Equal(t, "http://sim.test:4566", def.Simulator.Endpoint)
	assert.Equal(t, "us-west-2", def.Simulator.Region)

	token, err := cfg.VaultToken()
	require.NoError(t, err)
	assert.Equal(t, "env-token", token)
}

func TestVaultTokenMissing(t *testing.T) {
	cfg := writeConfig(t, "version: 0\n")
	require.NoError(t, cfg.Load())

	_, err := cfg.VaultToken()
	var cfgErr dserrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "vault.token", cfgErr.Field)
}
