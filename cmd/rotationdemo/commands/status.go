package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Surf-Wax/automated-secrets-management-poc/internal/config"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/logging"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/provision"
)

// NewStatusCommand creates the status command showing the current state
// of the demonstration environment. Secret material is always redacted.
func NewStatusCommand(cfg *config.Config) *cobra.Command {
	var stateFile string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show provisioned resources and the current credential lease",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}

			ctx := context.Background()

			path := stateFile
			if path == "" {
				path = cfg.Definition.StateFile
			}

			state, err := provision.LoadState(path)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(w, "RESOURCE\tAPPLIED\n")
			_, _ = fmt.Fprintf(w, "--------\t-------\n")
			for _, r := range provision.DemoResources(cfg.Definition) {
				applied := "-"
				if record, ok := state.Resources[r.ID()]; ok {
					applied = record.AppliedAt.Format("2006-01-02 15:04:05")
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\n", r.ID(), applied)
			}
			_ = w.Flush()

			_, engine, err := buildVault(cfg)
			if err != nil {
				return err
			}

			roleName := cfg.Definition.Rotation.RoleName
			creds, err := engine.ReadStaticCreds(ctx, roleName)
			if err != nil {
				cfg.Logger.Warn("Could not read credentials for role '%s': %v", roleName, err)
				return nil
			}
			creds.SecretAccessKey = ""

			fmt.Println()
			_, _ = fmt.Fprintf(w, "ROLE\tACCESS KEY\tSECRET\tLEASE\tNEXT ROTATION\n")
			_, _ = fmt.Fprintf(w, "----\t----------\t------\t-----\t-------------\n")
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				roleName,
				logging.MaskKeyID(creds.AccessKeyID),
				"[REDACTED]",
				creds.LeaseID,
				creds.TTL,
			)
			_ = w.Flush()

			return nil
		},
	}

	cmd.Flags().StringVar(&stateFile, "state", "", "Override the state file path")

	return cmd
}
