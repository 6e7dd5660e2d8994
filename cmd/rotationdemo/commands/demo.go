package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Surf-Wax/automated-secrets-management-poc/internal/config"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/demo"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/logging"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/provision"
)

// NewDemoCommand creates the demo command that runs the full rotation
// demonstration sequence.
func NewDemoCommand(cfg *config.Config) *cobra.Command {
	var (
		metricsListen string
		skipApply     bool
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the full zero-downtime rotation demonstration",
		Long: `Run the demonstration end to end:

1. Provision the environment (same as 'apply'; already-applied
   resources are skipped)
2. Read the static role's current credentials from Vault
3. Prove they work by listing compute instances on the simulator
4. Wait out one rotation period plus a safety margin
5. Read again, confirm the access key changed, and prove the new
   credentials work`,
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

			if !skipApply {
				deps := provision.NewDeps(cloudClient, vaultClient, engine, cfg.Logger)
				applier := provision.NewApplier(deps, cfg.Definition.StateFile)
				if err := applier.Apply(ctx, provision.DemoResources(cfg.Definition)); err != nil {
					return err
				}
			}

			if metricsListen != "" {
				serverConfig := demo.DefaultMetricsServerConfig()
				serverConfig.Enabled = true
				serverConfig.Addr = metricsListen

				server := demo.NewMetricsServer(serverConfig, cfg.Logger)
				if err := server.Start(); err != nil {
					return fmt.Errorf("failed to start metrics server: %w", err)
				}
				defer func() { _ = server.Stop(context.Background()) }()
				cfg.Logger.Info("Serving metrics on %s", metricsListen)
			}

			orchestrator, err := demo.New(engine, cloudClient, cfg.Logger,
				cfg.Definition.Rotation.RoleName,
				cfg.Definition.RotationInterval(),
				cfg.Definition.SafetyMargin(),
			)
			if err != nil {
				return err
			}

			report, err := orchestrator.Run(ctx)
			if err != nil {
				return err
			}

			cfg.Logger.Info("✓ Zero-downtime rotation demonstrated: %s rotated to %s after %s",
				logging.MaskKeyID(report.First.AccessKeyID),
				logging.MaskKeyID(report.Second.AccessKeyID),
				report.Waited)
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address while running (e.g. :9090)")
	cmd.Flags().BoolVar(&skipApply, "skip-apply", false, "Assume the environment is already provisioned")

	return cmd
}
