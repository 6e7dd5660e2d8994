package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Surf-Wax/automated-secrets-management-poc/internal/config"
)

// checkResult is the outcome of one doctor probe.
type checkResult struct {
	Name    string
	Status  string // healthy, error
	Message string
}

// NewDoctorCommand creates the doctor command that checks connectivity
// to both external collaborators before anything is provisioned.
func NewDoctorCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check Vault and simulator connectivity",
		Long: `Verify the demonstration environment is reachable.

This command checks:
- Configuration file validity
- Vault server health and token validity
- Whether the AWS secrets engine is mounted
- Cloud simulator reachability`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Logger.Info("Checking rotationdemo configuration...")
			if err := cfg.Load(); err != nil {
				cfg.Logger.Error("Configuration error: %v", err)
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg.Logger.Info("✓ Configuration loaded successfully")

			ctx := context.Background()
			results := make([]checkResult, 0, 4)

			vaultClient, _, err := buildVault(cfg)
			if err != nil {
				return err
			}

			if err := vaultClient.Health(ctx); err != nil {
				results = append(results, checkResult{"vault health", "error", err.Error()})
			} else {
				results = append(results, checkResult{"vault health", "healthy", "server is initialized and unsealed"})

				if err := vaultClient.TokenLookupSelf(ctx); err != nil {
					results = append(results, checkResult{"vault token", "error", err.Error()})
				} else {
					results = append(results, checkResult{"vault token", "healthy", "token is valid"})
				}

				mounted, err := vaultClient.MountExists(ctx, cfg.Definition.Vault.Mount)
				switch {
				case err != nil:
					results = append(results, checkResult{"secrets engine", "error", err.Error()})
				case mounted:
					results = append(results, checkResult{"secrets engine", "healthy",
						fmt.Sprintf("aws engine mounted at %s/", cfg.Definition.Vault.Mount)})
				default:
					results = append(results, checkResult{"secrets engine", "error",
						"not mounted; run 'rotationdemo apply'"})
				}
			}

			cloudClient, err := buildCloud(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to build simulator client: %w", err)
			}
			if err := cloudClient.Ping(ctx); err != nil {
				results = append(results, checkResult{"simulator", "error", err.Error()})
			} else {
				results = append(results, checkResult{"simulator", "healthy",
					fmt.Sprintf("IAM endpoint responding at %s", cfg.Definition.Simulator.Endpoint)})
			}

			displayCheckResults(results)

			healthy := 0
			for _, result := range results {
				if result.Status == "healthy" {
					healthy++
				}
			}

			fmt.Printf("\nSummary: %d/%d checks healthy\n", healthy, len(results))
			if healthy < len(results) {
				return fmt.Errorf("some checks failed")
			}

			cfg.Logger.Info("✓ All systems operational!")
			return nil
		},
	}

	return cmd
}

// displayCheckResults shows probe outcomes in a formatted table.
func displayCheckResults(results []checkResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "CHECK\tSTATUS\tMESSAGE\n")
	_, _ = fmt.Fprintf(w, "-----\t------\t-------\n")

	for _, result := range results {
		status := result.Status
		switch result.Status {
		case "healthy":
			status = "✓ " + status
		case "error":
			status = "✗ " + status
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", result.Name, status, result.Message)
	}

	_ = w.Flush()
}
