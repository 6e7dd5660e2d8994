package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/Surf-Wax/automated-secrets-management-poc/internal/config"
	dserrors "github.com/Surf-Wax/automated-secrets-management-poc/internal/errors"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/logging"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/vault"
)

// Output keys shared between resources.
const (
	OutputManagedUserARN   = "iam_user.managed.arn"
	OutputManagerUserARN   = "iam_user.manager.arn"
	OutputManagedKeyID     = "iam_access_key.managed.id"
	OutputManagedKeySecret = "iam_access_key.managed.secret"
	OutputManagerKeyID     = "iam_access_key.manager.id"
	OutputManagerKeySecret = "iam_access_key.manager.secret"
)

// computeReadPolicy grants the managed identity read-only access to the
// compute listing API and nothing else.
const computeReadPolicy = `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Action": ["ec2:Describe*"],
      "Resource": "*"
    }
  ]
}`

// keyLifecyclePolicy grants the manager identity control over exactly one
// user's access keys. The secrets engine signs with the manager's key
// pair when it rotates the managed identity's credentials.
func keyLifecyclePolicy(managedARN string) string {
	return fmt.Sprintf(`{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Action": [
        "iam:GetUser",
        "iam:CreateAccessKey",
        "iam:DeleteAccessKey",
        "iam:ListAccessKeys"
      ],
      "Resource": %q
    }
  ]
}`, managedARN)
}

// ManagedUser creates the principal whose credentials get rotated.
type ManagedUser struct {
	Name string
}

func (r *ManagedUser) ID() string          { return "iam_user.managed" }
func (r *ManagedUser) DependsOn() []string { return nil }

func (r *ManagedUser) Apply(ctx context.Context, deps *Deps) error {
	arn, err := deps.Cloud.EnsureUser(ctx, r.Name)
	if err != nil {
		return dserrors.ProvisionError{Resource: r.ID(), Err: err}
	}
	deps.SetOutput(OutputManagedUserARN, arn)
	deps.Logger.Info("Managed identity %s ready (%s)", r.Name, arn)
	return nil
}

// ManagedUserPolicy attaches the read-only compute policy.
type ManagedUserPolicy struct {
	User string
}

func (r *ManagedUserPolicy) ID() string          { return "iam_user_policy.managed" }
func (r *ManagedUserPolicy) DependsOn() []string { return []string{"iam_user.managed"} }

func (r *ManagedUserPolicy) Apply(ctx context.Context, deps *Deps) error {
	if err := deps.Cloud.PutUserPolicy(ctx, r.User, "compute-read-only", computeReadPolicy); err != nil {
		return dserrors.ProvisionError{Resource: r.ID(), Err: err}
	}
	deps.Logger.Info("Attached compute-read-only policy to %s", r.User)
	return nil
}

// ManagedAccessKey creates the managed identity's initial key pair. The
// secrets engine takes ownership once the static role exists, so nothing
// downstream consumes this pair; it is emitted as sensitive output only.
type ManagedAccessKey struct {
	User string
}

func (r *ManagedAccessKey) ID() string          { return "iam_access_key.managed" }
func (r *ManagedAccessKey) DependsOn() []string { return []string{"iam_user.managed"} }

func (r *ManagedAccessKey) Apply(ctx context.Context, deps *Deps) error {
	pair, err := deps.Cloud.CreateAccessKey(ctx, r.User)
	if err != nil {
		return dserrors.ProvisionError{Resource: r.ID(), Err: err}
	}
	deps.SetOutput(OutputManagedKeyID, pair.AccessKeyID)
	deps.SetOutput(OutputManagedKeySecret, pair.SecretAccessKey)
	deps.Logger.Info("Initial key pair for %s: id=%s secret=%s",
		r.User, logging.MaskKeyID(pair.AccessKeyID), logging.Secret(pair.SecretAccessKey))
	return nil
}

// ManagerUser creates the principal that rotates the managed identity's
// keys on the engine's behalf.
type ManagerUser struct {
	Name string
}

func (r *ManagerUser) ID() string          { return "iam_user.manager" }
func (r *ManagerUser) DependsOn() []string { return nil }

func (r *ManagerUser) Apply(ctx context.Context, deps *Deps) error {
	arn, err := deps.Cloud.EnsureUser(ctx, r.Name)
	if err != nil {
		return dserrors.ProvisionError{Resource: r.ID(), Err: err}
	}
	deps.SetOutput(OutputManagerUserARN, arn)
	deps.Logger.Info("Manager identity %s ready (%s)", r.Name, arn)
	return nil
}

// ManagerKeyPolicy scopes the manager's key-lifecycle permissions to the
// managed identity's ARN.
type ManagerKeyPolicy struct {
	User string
}

func (r *ManagerKeyPolicy) ID() string { return "iam_user_policy.manager" }

func (r *ManagerKeyPolicy) DependsOn() []string {
	return []string{"iam_user.manager", "iam_user.managed"}
}

func (r *ManagerKeyPolicy) Apply(ctx context.Context, deps *Deps) error {
	managedARN, err := deps.Output(OutputManagedUserARN)
	if err != nil {
		return err
	}
	if err := deps.Cloud.PutUserPolicy(ctx, r.User, "key-lifecycle", keyLifecyclePolicy(managedARN)); err != nil {
		return dserrors.ProvisionError{Resource: r.ID(), Err: err}
	}
	deps.Logger.Info("Attached key-lifecycle policy to %s (scope: %s)", r.User, managedARN)
	return nil
}

// ManagerAccessKey creates the manager's long-lived key pair that seeds
// the secrets engine.
type ManagerAccessKey struct {
	User string
}

func (r *ManagerAccessKey) ID() string          { return "iam_access_key.manager" }
func (r *ManagerAccessKey) DependsOn() []string { return []string{"iam_user.manager"} }

func (r *ManagerAccessKey) Apply(ctx context.Context, deps *Deps) error {
	pair, err := deps.Cloud.CreateAccessKey(ctx, r.User)
	if err != nil {
		return dserrors.ProvisionError{Resource: r.ID(), Err: err}
	}
	deps.SetOutput(OutputManagerKeyID, pair.AccessKeyID)
	deps.SetOutput(OutputManagerKeySecret, pair.SecretAccessKey)
	deps.Logger.Info("Manager key pair created: id=%s secret=%s",
		logging.MaskKeyID(pair.AccessKeyID), logging.Secret(pair.SecretAccessKey))
	return nil
}

// SecretsMount enables the AWS secrets engine.
type SecretsMount struct {
	Mount string
}

func (r *SecretsMount) ID() string          { return "vault_mount.aws" }
func (r *SecretsMount) DependsOn() []string { return nil }

func (r *SecretsMount) Apply(ctx context.Context, deps *Deps) error {
	exists, err := deps.Vault.MountExists(ctx, r.Mount)
	if err != nil {
		return dserrors.ProvisionError{Resource: r.ID(), Err: err}
	}
	if exists {
		deps.Logger.Debug("Secrets engine already mounted at %s/", r.Mount)
		return nil
	}
	if err := deps.Vault.EnableSecretsEngine(ctx, r.Mount, "aws", "credential rotation demo"); err != nil {
		return dserrors.ProvisionError{Resource: r.ID(), Err: err}
	}
	deps.Logger.Info("Mounted AWS secrets engine at %s/", r.Mount)
	return nil
}

// EngineRootConfig seeds the engine with the manager key pair and points
// it at the simulator. When the manager secret is not available from this
// run (a previous run created the key), a fresh pair is issued so the
// engine can always be configured.
type EngineRootConfig struct {
	ManagerUser string
	Region      string
	Endpoint    string
}

func (r *EngineRootConfig) ID() string { return "vault_config.root" }

func (r *EngineRootConfig) DependsOn() []string {
	return []string{"vault_mount.aws", "iam_access_key.manager"}
}

func (r *EngineRootConfig) Apply(ctx context.Context, deps *Deps) error {
	keyID, idErr := deps.Output(OutputManagerKeyID)
	secret, secErr := deps.Output(OutputManagerKeySecret)
	if idErr != nil || secErr != nil {
		pair, err := deps.Cloud.CreateAccessKey(ctx, r.ManagerUser)
		if err != nil {
			return dserrors.ProvisionError{Resource: r.ID(), Err: err}
		}
		keyID, secret = pair.AccessKeyID, pair.SecretAccessKey
		deps.SetOutput(OutputManagerKeyID, keyID)
		deps.SetOutput(OutputManagerKeySecret, secret)
		deps.Logger.Debug("Issued replacement manager key %s for engine seeding", logging.MaskKeyID(keyID))
	}

	err := deps.Engine.ConfigureRoot(ctx, vault.RootConfig{
		AccessKeyID:     keyID,
		SecretAccessKey: secret,
		Region:          r.Region,
		IAMEndpoint:     r.Endpoint,
		STSEndpoint:     r.Endpoint,
	})
	if err != nil {
		return dserrors.ProvisionError{Resource: r.ID(), Err: err}
	}
	deps.Logger.Info("Secrets engine seeded with manager key %s", logging.MaskKeyID(keyID))
	return nil
}

// StaticRole binds the managed username to the rotation interval. Both
// permission policies and the engine root configuration must exist first;
// rotation starts as soon as this resource is applied.
type StaticRole struct {
	RoleName       string
	Username       string
	RotationPeriod time.Duration
}

func (r *StaticRole) ID() string { return "vault_static_role.app" }

func (r *StaticRole) DependsOn() []string {
	return []string{
		"vault_config.root",
		"iam_user_policy.managed",
		"iam_user_policy.manager",
	}
}

func (r *StaticRole) Apply(ctx context.Context, deps *Deps) error {
	if err := deps.Engine.WriteStaticRole(ctx, r.RoleName, r.Username, r.RotationPeriod); err != nil {
		return dserrors.ProvisionError{Resource: r.ID(), Err: err}
	}
	deps.Logger.Info("Static role %s created: %s rotates every %s", r.RoleName, r.Username, r.RotationPeriod)
	return nil
}

// DemoResources builds the full resource graph for the demonstration.
func DemoResources(def *config.Definition) []Resource {
	return []Resource{
		&ManagedUser{Name: def.Identities.ManagedUser},
		&ManagedUserPolicy{User: def.Identities.ManagedUser},
		&ManagedAccessKey{User: def.Identities.ManagedUser},
		&ManagerUser{Name: def.Identities.ManagerUser},
		&ManagerKeyPolicy{User: def.Identities.ManagerUser},
		&ManagerAccessKey{User: def.Identities.ManagerUser},
		&SecretsMount{Mount: def.Vault.Mount},
		&EngineRootConfig{
			ManagerUser: def.Identities.ManagerUser,
			Region:      def.Simulator.Region,
			Endpoint:    def.Simulator.Endpoint,
		},
		&StaticRole{
			RoleName:       def.Rotation.RoleName,
			Username:       def.Identities.ManagedUser,
			RotationPeriod: def.RotationInterval(),
		},
	}
}
