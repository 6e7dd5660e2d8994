package vault

import (
	"context"
	"fmt"
	"time"

	dserrors "github.com/Surf-Wax/automated-secrets-management-poc/internal/errors"
)

// AWSEngine wraps the logical API of an AWS secrets engine mount. The
// engine owns the rotation schedule and key material for static roles;
// this side only configures it and reads the current credentials.
type AWSEngine struct {
	client *Client
	mount  string
}

// NewAWSEngine returns a typed view over the engine mounted at mount.
func NewAWSEngine(client *Client, mount string) *AWSEngine {
	return &AWSEngine{client: client, mount: mount}
}

// RootConfig seeds the engine with the manager identity's long-lived key
// pair and points it at the simulator's IAM and STS endpoints.
type RootConfig struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	IAMEndpoint     string
	STSEndpoint     string
}

// StaticCredentials is a point-in-time read of a static role's current
// key pair. Superseded whenever the engine rotates the key.
type StaticCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	TTL             time.Duration
	LeaseID         string
}

// ConfigureRoot writes the engine's root credential configuration.
func (e *AWSEngine) ConfigureRoot(ctx context.Context, cfg RootConfig) error {
	data := map[string]interface{}{
		"access_key": cfg.AccessKeyID,
		"secret_key": cfg.SecretAccessKey,
		"region":     cfg.Region,
	}
	if cfg.IAMEndpoint != "" {
		data["iam_endpoint"] = cfg.IAMEndpoint
	}
	if cfg.STSEndpoint != "" {
		data["sts_endpoint"] = cfg.STSEndpoint
	}

	if err := e.client.Write(ctx, e.mount+"/config/root", data); err != nil {
		return fmt.Errorf("configuring %s engine root credentials: %w", e.mount, err)
	}
	return nil
}

// WriteStaticRole binds an IAM username to a rotation period. The engine
// takes ownership of the user's access keys from this point on.
func (e *AWSEngine) WriteStaticRole(ctx context.Context, roleName, username string, rotationPeriod time.Duration) error {
	data := map[string]interface{}{
		"username":        username,
		"rotation_period": fmt.Sprintf("%ds", int(rotationPeriod.Seconds())),
	}

	if err := e.client.Write(ctx, e.mount+"/static-roles/"+roleName, data); err != nil {
		return fmt.Errorf("writing static role %s: %w", roleName, err)
	}
	return nil
}

// ReadStaticCreds reads the current key pair for a static role. A missing
// role is an error here, unlike a generic logical read: the demonstration
// cannot proceed without it.
func (e *AWSEngine) ReadStaticCreds(ctx context.Context, roleName string) (*StaticCredentials, error) {
	path := e.mount + "/static-creds/" + roleName

	secret, err := e.client.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	if secret == nil || secret.Data == nil {
		return nil, dserrors.UserError{
			Message:    fmt.Sprintf("No credentials found at %s", path),
			Suggestion: "Run 'rotationdemo apply' to provision the static role first",
		}
	}

	accessKey, _ := secret.Data["access_key"].(string)
	secretKey, _ := secret.Data["secret_key"].(string)
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("static role %s returned an incomplete key pair", roleName)
	}

	creds := &StaticCredentials{
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
		LeaseID:         secret.LeaseID,
	}

	// ttl is seconds until the next rotation
	switch ttl := secret.Data["ttl"].(type) {
	case float64:
		creds.TTL = time.Duration(ttl) * time.Second
	case int:
		creds.TTL = time.Duration(ttl) * time.Second
	}

	return creds, nil
}
