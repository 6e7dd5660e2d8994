package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Surf-Wax/automated-secrets-management-poc/internal/cloud"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/config"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/logging"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/secure"
)

// NewVerifyCommand creates the verify command: one credential read plus
// one compute listing, without waiting for a rotation.
func NewVerifyCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Read current credentials and exercise them once",
		Long: `Read the static role's current key pair from Vault and use it to list
compute instances on the simulator. This is a single verification pass;
use 'demo' to prove a full rotation cycle.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}

			ctx := context.Background()

			cloudClient, err := buildCloud(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to build simulator client: %w", err)
			}

			_, engine, err := buildVault(cfg)
			if err != nil {
				return err
			}

			roleName := cfg.Definition.Rotation.RoleName
			cfg.Logger.Info("Reading credentials for role '%s'", roleName)

			creds, err := engine.ReadStaticCreds(ctx, roleName)
			if err != nil {
				return err
			}

			secret := secure.NewSecureString(creds.SecretAccessKey)
			defer secret.Destroy()
			creds.SecretAccessKey = ""

			cfg.Logger.Info("Access key %s (lease %s, next rotation in %s)",
				logging.MaskKeyID(creds.AccessKeyID), creds.LeaseID, creds.TTL)

			var instances int
			err = secret.WithString(func(secretKey string) error {
				var verifyErr error
				instances, verifyErr = cloudClient.VerifyCompute(ctx, cloud.KeyPair{
					AccessKeyID:     creds.AccessKeyID,
					SecretAccessKey: secretKey,
				})
				return verifyErr
			})
			if err != nil {
				return err
			}

			cfg.Logger.Info("✓ Credentials accepted: listed %d instance(s)", instances)
			return nil
		},
	}

	return cmd
}
