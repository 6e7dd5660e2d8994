package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Surf-Wax/automated-secrets-management-poc/internal/config"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/provision"
)

// NewApplyCommand creates the apply command that provisions the
// demonstration environment.
func NewApplyCommand(cfg *config.Config) *cobra.Command {
	var stateFile string

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Provision the identities, policies, and secrets engine",
		Long: `Apply the declarative resource graph for the demonstration:

- the managed identity with a read-only compute policy
- the manager identity with a key-lifecycle policy scoped to it
- the AWS secrets engine mount, seeded with the manager's key pair
- the static role binding the managed identity to its rotation schedule

Resources apply in dependency order and the run stops at the first
failure. Re-running converges: identities already recorded in the state
file are not recreated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}

			ctx := context.Background()

			cloudClient, err := buildCloud(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to build simulator client: %w", err)
			}

			vaultClient, engine, err := buildVault(cfg)
			if err != nil {
				return err
			}

			path := stateFile
			if path == "" {
				path = cfg.Definition.StateFile
			}

			deps := provision.NewDeps(cloudClient, vaultClient, engine, cfg.Logger)
			applier := provision.NewApplier(deps, path)

			cfg.Logger.Info("Applying demonstration resources (state: %s)", path)
			if err := applier.Apply(ctx, provision.DemoResources(cfg.Definition)); err != nil {
				return err
			}

			cfg.Logger.Info("✓ Environment ready. Rotation of '%s' runs every %s",
				cfg.Definition.Rotation.RoleName, cfg.Definition.RotationInterval())
			return nil
		},
	}

	cmd.Flags().StringVar(&stateFile, "state", "", "Override the state file path")

	return cmd
}
