package commands

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Surf-Wax/automated-secrets-management-poc/internal/config"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/logging"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/vault"
	"github.com/Surf-Wax/automated-secrets-management-poc/tests/testutil"
)

// writeDemoConfig writes a config file pointing at the given endpoints
// and returns a Config ready to load. Ambient environment overrides are
// cleared so tests are hermetic.
func writeDemoConfig(t *testing.T, def *config.Definition) *config.Config {
	t.Helper()

	for _, key := range []string{"VAULT_ADDR", "VAULT_TOKEN", "AWS_ENDPOINT_URL", "AWS_REGION"} {
		t.Setenv(key, "")
	}

	configPath := filepath.Join(t.TempDir(), "rotationdemo.yaml")
	configBytes, err := yaml.Marshal(def)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(configPath, configBytes, 0o644))

	return &config.Config{
		Path:   configPath,
		Logger: logging.New(false, true), // quiet mode
	}
}

// seedStaticRole provisions the minimum for a role to serve credentials:
// the managed user, the engine mount, root config, and the static role.
func seedStaticRole(t *testing.T, store *testutil.IAMStore, vaultSrv *testutil.VaultServer, username, role string) {
	t.Helper()
	ctx := context.Background()

	_, err := store.CreateUser(ctx, &iam.CreateUserInput{UserName: aws.String(username)})
	require.NoError(t, err)

	client := vault.NewClient(vaultSrv.URL, "root")
	require.NoError(t, client.EnableSecretsEngine(ctx, "aws", "aws", ""))

	engine := vault.NewAWSEngine(client, "aws")
	require.NoError(t, engine.ConfigureRoot(ctx, vault.RootConfig{
		AccessKeyID:     "AKIAMANAGER00000001",
		SecretAccessKey: "manager-secret",
		Region:          "us-east-1",
	}))
	require.NoError(t, engine.WriteStaticRole(ctx, role, username, 61*time.Second))
}

// captureOutput captures stdout while executing a command. The command's
// error, if any, is returned alongside the output.
func captureOutput(t *testing.T, cmd *cobra.Command, args []string) (string, error) {
	t.Helper()

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	if args != nil {
		cmd.SetArgs(args)
	}

	err := cmd.Execute()

	_ = w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)

	return buf.String(), err
}
