package provision

import (
	"context"
	"fmt"

	"github.com/Surf-Wax/automated-secrets-management-poc/internal/cloud"
	dserrors "github.com/Surf-Wax/automated-secrets-management-poc/internal/errors"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/logging"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/vault"
)

// Resource is one node of the declarative provisioning graph. Resources
// are applied strictly in dependency order; the first failure aborts the
// whole run.
//
// Apply must be idempotent: re-running against already-applied state may
// not create duplicate identities.
type Resource interface {
	// ID uniquely names the resource within the graph, e.g. "iam_user.managed".
	ID() string

	// DependsOn lists the IDs of resources that must be applied first.
	DependsOn() []string

	// Apply creates or updates the resource.
	Apply(ctx context.Context, deps *Deps) error
}

// Deps carries the clients and cross-resource outputs shared by a single
// apply run.
type Deps struct {
	Cloud  *cloud.Client
	Vault  *vault.Client
	Engine *vault.AWSEngine
	Logger *logging.Logger

	// outputs holds values produced by applied resources (ARNs, key ids)
	// and consumed by their dependents. Sensitive values live here only
	// for the duration of the run and are logged redacted.
	outputs map[string]string
}

// NewDeps builds the shared dependency container for one apply run.
func NewDeps(cloudClient *cloud.Client, vaultClient *vault.Client, engine *vault.AWSEngine, logger *logging.Logger) *Deps {
	return &Deps{
		Cloud:   cloudClient,
		Vault:   vaultClient,
		Engine:  engine,
		Logger:  logger,
		outputs: make(map[string]string),
	}
}

// SetOutput records a value produced by a resource.
func (d *Deps) SetOutput(key, value string) {
	d.outputs[key] = value
}

// Output fetches a value produced by an earlier resource. A missing key
// means the graph wiring is broken, which is a provisioning bug rather
// than an environment problem.
func (d *Deps) Output(key string) (string, error) {
	v, ok := d.outputs[key]
	if !ok {
		return "", dserrors.ProvisionError{
			Resource: key,
			Message:  fmt.Sprintf("required output %q was not produced by any applied resource", key),
		}
	}
	return v, nil
}

// Outputs returns a copy of the non-secret outputs for recording in the
// state file. Keys ending in ".secret" are never persisted.
func (d *Deps) Outputs() map[string]string {
	out := make(map[string]string, len(d.outputs))
	for k, v := range d.outputs {
		if isSecretOutput(k) {
			continue
		}
		out[k] = v
	}
	return out
}

func isSecretOutput(key string) bool {
	return len(key) > 7 && key[len(key)-7:] == ".secret"
}
