// Package integration exercises the full demonstration cycle against the
// in-memory stand-ins for Vault and the cloud simulator: provision,
// verify, outwait a rotation, and verify again.
package integration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Surf-Wax/automated-secrets-management-poc/internal/cloud"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/config"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/demo"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/logging"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/provision"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/vault"
	"github.com/Surf-Wax/automated-secrets-management-poc/tests/testutil"
)

// TestFullRotationCycle provisions the environment and runs the whole
// demonstration with a one-second rotation period.
func TestFullRotationCycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store := testutil.NewIAMStore()
	vaultSrv := testutil.NewVaultServer(store, "root", false)
	defer vaultSrv.Close()

	def := &config.Definition{
		Vault:     config.VaultConfig{Address: vaultSrv.URL, Token: "root", Mount: "aws"},
		Simulator: config.SimulatorConfig{Endpoint: "http://localhost:4566", Region: "us-east-1"},
		Identities: config.IdentityConfig{
			ManagedUser: "app-user",
			ManagerUser: "vault-manager",
		},
		Rotation: config.RotationConfig{
			RoleName:            "app-credentials",
			IntervalSeconds:     61,
			SafetyMarginSeconds: 4,
		},
		StateFile: filepath.Join(t.TempDir(), "state.json"),
	}

	logger := logging.New(false, true)
	ctx := context.Background()

	cloudClient, err := cloud.New(ctx, def.Simulator.Endpoint, def.Simulator.Region,
		cloud.KeyPair{AccessKeyID: "test", SecretAccessKey: "test"},
		cloud.WithIAMClient(store),
		cloud.WithEC2Factory(store.EC2Factory(1)),
	)
	require.NoError(t, err)

	vaultClient := vault.NewClient(vaultSrv.URL, "root")
	engine := vault.NewAWSEngine(vaultClient, def.Vault.Mount)

	// Provision the whole environment.
	deps := provision.NewDeps(cloudClient, vaultClient, engine, logger)
	applier := provision.NewApplier(deps, def.StateFile)
	require.NoError(t, applier.Apply(ctx, provision.DemoResources(def)))

	require.True(t, vaultSrv.HasRole("aws", "app-credentials"))
	require.Equal(t, 2, store.UserCount())

	// Run the demonstration. The engine rotates during the wait; driving
	// the rotation from the waiter keeps the test deterministic.
	orchestrator, err := demo.New(engine, cloudClient, logger,
		def.Rotation.RoleName, def.RotationInterval(), def.SafetyMargin(),
		demo.WithWaiter(func(_ context.Context, _ time.Duration) error {
			return vaultSrv.Rotate("aws", "app-credentials")
		}),
	)
	require.NoError(t, err)

	report, err := orchestrator.Run(ctx)
	require.NoError(t, err)

	assert.True(t, report.Rotated)
	assert.NotEqual(t, report.First.AccessKeyID, report.Second.AccessKeyID)
	assert.Equal(t, 1, report.First.Instances)
	assert.Equal(t, 1, report.Second.Instances)
	assert.Empty(t, report.FailedStep)

	// The rotated-out key no longer authenticates.
	assert.False(t, store.KeyValid(report.First.AccessKeyID),
		"rotation deletes the previous key")
	assert.True(t, store.KeyValid(report.Second.AccessKeyID))

	assert.GreaterOrEqual(t, vaultSrv.Rotations("aws", "app-credentials"), 1)
}

// TestScheduledRotation runs the engine's own rotation timer with a
// one-second period and waits for it to fire.
func TestScheduledRotation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store := testutil.NewIAMStore()
	vaultSrv := testutil.NewVaultServer(store, "root", true)
	defer vaultSrv.Close()

	ctx := context.Background()
	vaultClient := vault.NewClient(vaultSrv.URL, "root")
	engine := vault.NewAWSEngine(vaultClient, "aws")

	cloudClient, err := cloud.New(ctx, "http://localhost:4566", "us-east-1",
		cloud.KeyPair{AccessKeyID: "test", SecretAccessKey: "test"},
		cloud.WithIAMClient(store),
		cloud.WithEC2Factory(store.EC2Factory(0)),
	)
	require.NoError(t, err)

	_, err = cloudClient.EnsureUser(ctx, "app-user")
	require.NoError(t, err)

	require.NoError(t, vaultClient.EnableSecretsEngine(ctx, "aws", "aws", ""))
	require.NoError(t, engine.ConfigureRoot(ctx, vault.RootConfig{
		AccessKeyID:     "AKIAMANAGER00000001",
		SecretAccessKey: "manager-secret",
		Region:          "us-east-1",
	}))
	require.NoError(t, engine.WriteStaticRole(ctx, "app-credentials", "app-user", time.Second))

	first, err := engine.ReadStaticCreds(ctx, "app-credentials")
	require.NoError(t, err)

	// Poll until the timer fires; well under the deadline on any machine.
	deadline := time.Now().Add(5 * time.Second)
	for vaultSrv.Rotations("aws", "app-credentials") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("rotation timer did not fire within 5s")
		}
		time.Sleep(50 * time.Millisecond)
	}

	second, err := engine.ReadStaticCreds(ctx, "app-credentials")
	require.NoError(t, err)
	assert.NotEqual(t, first.AccessKeyID, second.AccessKeyID)
	assert.False(t, store.KeyValid(first.AccessKeyID))
}

// TestReapplyConverges re-runs apply against an already-provisioned
// environment and checks nothing is duplicated.
func TestReapplyConverges(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store := testutil.NewIAMStore()
	vaultSrv := testutil.NewVaultServer(store, "root", false)
	defer vaultSrv.Close()

	def := &config.Definition{
		Vault:     config.VaultConfig{Address: vaultSrv.URL, Token: "root", Mount: "aws"},
		Simulator: config.SimulatorConfig{Endpoint: "http://localhost:4566", Region: "us-east-1"},
		Identities: config.IdentityConfig{
			ManagedUser: "app-user",
			ManagerUser: "vault-manager",
		},
		Rotation: config.RotationConfig{
			RoleName:            "app-credentials",
			IntervalSeconds:     61,
			SafetyMarginSeconds: 4,
		},
		StateFile: filepath.Join(t.TempDir(), "state.json"),
	}

	logger := logging.New(false, true)
	ctx := context.Background()

	cloudClient, err := cloud.New(ctx, def.Simulator.Endpoint, def.Simulator.Region,
		cloud.KeyPair{AccessKeyID: "test", SecretAccessKey: "test"},
		cloud.WithIAMClient(store),
		cloud.WithEC2Factory(store.EC2Factory(0)),
	)
	require.NoError(t, err)

	vaultClient := vault.NewClient(vaultSrv.URL, "root")
	engine := vault.NewAWSEngine(vaultClient, def.Vault.Mount)

	deps := provision.NewDeps(cloudClient, vaultClient, engine, logger)
	applier := provision.NewApplier(deps, def.StateFile)
	require.NoError(t, applier.Apply(ctx, provision.DemoResources(def)))

	users := store.UserCount()
	keys := store.KeyCount("vault-manager")

	// A fresh applier simulates a second CLI invocation reading the same
	// state file.
	deps2 := provision.NewDeps(cloudClient, vaultClient, engine, logger)
	applier2 := provision.NewApplier(deps2, def.StateFile)
	require.NoError(t, applier2.Apply(ctx, provision.DemoResources(def)))

	assert.Equal(t, users, store.UserCount())
	assert.Equal(t, keys, store.KeyCount("vault-manager"))

	// Credentials are still readable after the second run.
	creds, err := engine.ReadStaticCreds(ctx, def.Rotation.RoleName)
	require.NoError(t, err)
	assert.NotEmpty(t, creds.AccessKeyID)
}
