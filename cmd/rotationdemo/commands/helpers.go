package commands

import (
	"context"

	"github.com/Surf-Wax/automated-secrets-management-poc/internal/cloud"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/config"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/vault"
)

// simulatorAdminKey is the key pair used for management calls against the
// simulator. LocalStack-style simulators accept any well-formed pair.
var simulatorAdminKey = cloud.KeyPair{
	AccessKeyID:     "test",
	SecretAccessKey: "test",
}

// buildVault constructs the Vault client and the typed AWS engine view
// from loaded configuration.
func buildVault(cfg *config.Config) (*vault.Client, *vault.AWSEngine, error) {
	token, err := cfg.VaultToken()
	if err != nil {
		return nil, nil, err
	}

	client := vault.NewClient(cfg.Definition.Vault.Address, token)
	return client, vault.NewAWSEngine(client, cfg.Definition.Vault.Mount), nil
}

// buildCloud constructs the simulator client from loaded configuration.
func buildCloud(ctx context.Context, cfg *config.Config) (*cloud.Client, error) {
	return cloud.New(ctx, cfg.Definition.Simulator.Endpoint, cfg.Definition.Simulator.Region, simulatorAdminKey)
}
