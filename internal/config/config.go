package config

import (
	"fmt"
	"os"
	"time"

	dserrors "github.com/Surf-Wax/automated-secrets-management-poc/internal/errors"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/logging"
	"gopkg.in/yaml.v3"
)

// Config holds the runtime configuration
type Config struct {
	Path           string
	Logger         *logging.Logger
	NonInteractive bool
	Definition     *Definition
}

// Definition represents the rotationdemo.yaml structure
type Definition struct {
	Version    int             `yaml:"version" json:"version"`
	Vault      VaultConfig     `yaml:"vault" json:"vault"`
	Simulator  SimulatorConfig `yaml:"simulator" json:"simulator"`
	Identities IdentityConfig  `yaml:"identities" json:"identities"`
	Rotation   RotationConfig  `yaml:"rotation" json:"rotation"`
	StateFile  string          `yaml:"state_file,omitempty" json:"state_file,omitempty"`
}

// VaultConfig holds the secrets-management service settings
type VaultConfig struct {
	Address string `yaml:"address" json:"address"`
	Token   string `yaml:"token,omitempty" json:"token,omitempty"` // discouraged, use VAULT_TOKEN
	Mount   string `yaml:"mount,omitempty" json:"mount,omitempty"`
}

// SimulatorConfig holds the cloud-identity simulator settings
type SimulatorConfig struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Region   string `yaml:"region,omitempty" json:"region,omitempty"`
}

// IdentityConfig names the two principals created during provisioning
type IdentityConfig struct {
	ManagedUser string `yaml:"managed_user,omitempty" json:"managed_user,omitempty"`
	ManagerUser string `yaml:"manager_user,omitempty" json:"manager_user,omitempty"`
}

// RotationConfig binds the static role to its rotation schedule.
// The wait before re-verification is interval + safety margin; the margin
// must be positive, waiting exactly the interval is a false negative.
type RotationConfig struct {
	RoleName            string `yaml:"role_name,omitempty" json:"role_name,omitempty"`
	IntervalSeconds     int    `yaml:"interval_seconds,omitempty" json:"interval_seconds,omitempty"`
	SafetyMarginSeconds int    `yaml:"safety_margin_seconds,omitempty" json:"safety_margin_seconds,omitempty"`
}

// Defaults matching the demonstration environment: a dev-mode Vault and a
// LocalStack-style simulator on their conventional local ports.
const (
	DefaultVaultAddress      = "http://127.0.0.1:8200"
	DefaultSimulatorEndpoint = "http://localhost:4566"
	DefaultRegion            = "us-east-1"
	DefaultMount             = "aws"
	DefaultManagedUser       = "app-user"
	DefaultManagerUser       = "vault-manager"
	DefaultRoleName          = "app-credentials"
	DefaultIntervalSeconds   = 61
	DefaultMarginSeconds     = 4
	DefaultStateFile         = "rotationdemo.state.json"
)

// Load reads, validates, and finalizes the rotationdemo.yaml file
func (c *Config) Load() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return dserrors.ConfigError{
				Field:      "path",
				Value:      c.Path,
				Message:    "configuration file not found",
				Suggestion: "Create a rotationdemo.yaml or pass --config",
			}
		}
		return dserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return dserrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
		}
	}

	if def.Version != 0 {
		return dserrors.ConfigError{
			Field:      "version",
			Value:      def.Version,
			Message:    "unsupported configuration version",
			Suggestion: "Set 'version: 0' at the top of your rotationdemo.yaml file",
		}
	}

	// Plain ints cannot tell an explicit zero from an absent field, and an
	// explicit zero margin must be rejected rather than defaulted.
	var present rotationPresence
	_ = yaml.Unmarshal(data, &present) // same document, already parsed once

	applyDefaults(&def, &present)
	applyEnvOverrides(&def)

	// Semantic checks run first so their field-level errors are not
	// shadowed by the schema's structural ones.
	if err := validateSemantics(&def); err != nil {
		return err
	}

	if err := validateSchema(&def); err != nil {
		return err
	}

	c.Definition = &def
	return nil
}

// rotationPresence records which rotation numbers the file actually set.
type rotationPresence struct {
	Rotation struct {
		IntervalSeconds     *int `yaml:"interval_seconds"`
		SafetyMarginSeconds *int `yaml:"safety_margin_seconds"`
	} `yaml:"rotation"`
}

func applyDefaults(def *Definition, present *rotationPresence) {
	if def.Vault.Address == "" {
		def.Vault.Address = DefaultVaultAddress
	}
	if def.Vault.Mount == "" {
		def.Vault.Mount = DefaultMount
	}
	if def.Simulator.Endpoint == "" {
		def.Simulator.Endpoint = DefaultSimulatorEndpoint
	}
	if def.Simulator.Region == "" {
		def.Simulator.Region = DefaultRegion
	}
	if def.Identities.ManagedUser == "" {
		def.Identities.ManagedUser = DefaultManagedUser
	}
	if def.Identities.ManagerUser == "" {
		def.Identities.ManagerUser = DefaultManagerUser
	}
	if def.Rotation.RoleName == "" {
		def.Rotation.RoleName = DefaultRoleName
	}
	if present.Rotation.IntervalSeconds == nil {
		def.Rotation.IntervalSeconds = DefaultIntervalSeconds
	}
	if present.Rotation.SafetyMarginSeconds == nil {
		def.Rotation.SafetyMarginSeconds = DefaultMarginSeconds
	}
	if def.StateFile == "" {
		def.StateFile = DefaultStateFile
	}
}

// applyEnvOverrides lets the conventional environment variables win over
// the file, matching how the Vault and AWS CLIs behave.
func applyEnvOverrides(def *Definition) {
	if addr := os.Getenv("VAULT_ADDR"); addr != "" {
		def.Vault.Address = addr
	}
	if token := os.Getenv("VAULT_TOKEN"); token != "" {
		def.Vault.Token = token
	}
	if endpoint := os.Getenv("AWS_ENDPOINT_URL"); endpoint != "" {
		def.Simulator.Endpoint = endpoint
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		def.Simulator.Region = region
	}
}

// validateSemantics enforces the field-level rules. It runs before the
// schema check so these richer per-field errors surface first.
func validateSemantics(def *Definition) error {
	if def.Rotation.IntervalSeconds < 1 {
		return dserrors.ConfigError{
			Field:      "rotation.interval_seconds",
			Value:      def.Rotation.IntervalSeconds,
			Message:    "rotation interval must be at least one second",
			Suggestion: "Use 61 for the standard demonstration interval",
		}
	}
	if def.Rotation.SafetyMarginSeconds < 1 {
		return dserrors.ConfigError{
			Field:      "rotation.safety_margin_seconds",
			Value:      def.Rotation.SafetyMarginSeconds,
			Message:    "safety margin must be positive; waiting exactly the rotation interval races the rotation",
			Suggestion: "Use a margin of a few seconds, e.g. 4",
		}
	}
	if def.Identities.ManagedUser == def.Identities.ManagerUser {
		return dserrors.ConfigError{
			Field:      "identities",
			Message:    "managed and manager identities must be distinct principals",
			Suggestion: "The manager rotates the managed identity's keys and needs its own long-lived key pair",
		}
	}
	return nil
}

// VaultToken resolves the Vault token, preferring the config file value
// (already overridden by VAULT_TOKEN during Load).
func (c *Config) VaultToken() (string, error) {
	if c.Definition == nil {
		return "", fmt.Errorf("configuration not loaded")
	}
	if c.Definition.Vault.Token == "" {
		return "", dserrors.ConfigError{
			Field:      "vault.token",
			Message:    "no Vault token configured",
			Suggestion: "Set vault.token in rotationdemo.yaml or export VAULT_TOKEN (dev servers use 'root')",
		}
	}
	return c.Definition.Vault.Token, nil
}

// RotationInterval returns the configured rotation period.
func (d *Definition) RotationInterval() time.Duration {
	return time.Duration(d.Rotation.IntervalSeconds) * time.Second
}

// SafetyMargin returns the extra wait beyond the rotation period.
func (d *Definition) SafetyMargin() time.Duration {
	return time.Duration(d.Rotation.SafetyMarginSeconds) * time.Second
}

// WaitDuration is how long the orchestrator sleeps between the two
// verification passes. Always strictly greater than the rotation interval.
func (d *Definition) WaitDuration() time.Duration {
	return d.RotationInterval() + d.SafetyMargin()
}
