package main

import (
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/Surf-Wax/automated-secrets-management-poc/cmd/rotationdemo/commands"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/config"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Wipe any protected credential buffers on exit.
	defer memguard.Purge()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Global flags
	var (
		configFile     string
		noColor        bool
		debug          bool
		nonInteractive bool
	)

	// Create config placeholder
	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "rotationdemo",
		Short: "Demonstrate zero-downtime credential rotation with Vault static roles",
		Long: `rotationdemo provisions a Vault AWS secrets engine against a local
cloud-identity simulator and proves that an application keeps working
while its access keys are rotated underneath it.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize logger with parsed flags
			logger := logging.New(debug, noColor)

			// Update config with parsed values
			cfg.Path = configFile
			cfg.Logger = logger
			cfg.NonInteractive = nonInteractive
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "rotationdemo.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "Non-interactive mode")

	// Add commands
	rootCmd.AddCommand(
		commands.NewApplyCommand(cfg),
		commands.NewVerifyCommand(cfg),
		commands.NewDemoCommand(cfg),
		commands.NewStatusCommand(cfg),
		commands.NewDoctorCommand(cfg),
		commands.NewCompletionCommand(cfg),
	)

	return rootCmd.Execute()
}
