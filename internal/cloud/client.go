package cloud

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	dserrors "github.com/Surf-Wax/automated-secrets-management-poc/internal/errors"
)

// IAMAPI defines the IAM operations used against the simulator.
// This allows for mocking in tests.
type IAMAPI interface {
	CreateUser(ctx context.Context, params *iam.CreateUserInput, optFns ...func(*iam.Options)) (*iam.CreateUserOutput, error)
	GetUser(ctx context.Context, params *iam.GetUserInput, optFns ...func(*iam.Options)) (*iam.GetUserOutput, error)
	ListUsers(ctx context.Context, params *iam.ListUsersInput, optFns ...func(*iam.Options)) (*iam.ListUsersOutput, error)
	PutUserPolicy(ctx context.Context, params *iam.PutUserPolicyInput, optFns ...func(*iam.Options)) (*iam.PutUserPolicyOutput, error)
	CreateAccessKey(ctx context.Context, params *iam.CreateAccessKeyInput, optFns ...func(*iam.Options)) (*iam.CreateAccessKeyOutput, error)
}

// EC2API defines the compute-listing call used to exercise credentials.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

// EC2Factory builds an EC2 client authenticated with a specific credential
// snapshot. The verification calls use the rotated keys read from Vault,
// not the long-lived admin credentials, so a fresh client is built per
// snapshot.
type EC2Factory func(accessKeyID, secretAccessKey string) EC2API

// KeyPair is an access key id plus its secret.
type KeyPair struct {
	AccessKeyID     string
	SecretAccessKey string
}

// Client talks to an AWS-compatible cloud-identity simulator such as
// LocalStack. All calls target the configured endpoint; nothing here
// reaches real AWS.
type Client struct {
	iam      IAMAPI
	newEC2   EC2Factory
	endpoint string
	region   string
}

// Option is a functional option for configuring the client
type Option func(*Client)

// WithIAMClient sets a custom IAM client (for testing)
func WithIAMClient(api IAMAPI) Option {
	return func(c *Client) {
		c.iam = api
	}
}

// WithEC2Factory sets a custom EC2 client factory (for testing)
func WithEC2Factory(f EC2Factory) Option {
	return func(c *Client) {
		c.newEC2 = f
	}
}

// New creates a simulator client. The admin key pair only needs to be
// well-formed; LocalStack-style simulators accept any credentials for
// management calls.
func New(ctx context.Context, endpoint, region string, admin KeyPair, opts ...Option) (*Client, error) {
	c := &Client{
		endpoint: endpoint,
		region:   region,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.iam == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
			awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(admin.AccessKeyID, admin.SecretAccessKey, ""),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}

		c.iam = iam.NewFromConfig(cfg, func(o *iam.Options) {
			o.BaseEndpoint = &c.endpoint
		})
	}

	if c.newEC2 == nil {
		c.newEC2 = func(accessKeyID, secretAccessKey string) EC2API {
			cfg := aws.Config{
				Region:      region,
				Credentials: credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
			}
			return ec2.NewFromConfig(cfg, func(o *ec2.Options) {
				o.BaseEndpoint = &c.endpoint
			})
		}
	}

	return c, nil
}

// Endpoint returns the simulator endpoint this client targets.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// EnsureUser creates an IAM user, tolerating one that already exists so a
// re-run does not duplicate identities. Returns the user's ARN.
func (c *Client) EnsureUser(ctx context.Context, username string) (string, error) {
	out, err := c.iam.CreateUser(ctx, &iam.CreateUserInput{UserName: &username})
	if err == nil {
		return *out.User.Arn, nil
	}

	var alreadyExists *iamtypes.EntityAlreadyExistsException
	if !errors.As(err, &alreadyExists) {
		return "", dserrors.EndpointError("simulator", c.endpoint, err)
	}

	existing, err := c.iam.GetUser(ctx, &iam.GetUserInput{UserName: &username})
	if err != nil {
		return "", dserrors.EndpointError("simulator", c.endpoint, err)
	}
	return *existing.User.Arn, nil
}

// PutUserPolicy attaches an inline policy document to a user.
func (c *Client) PutUserPolicy(ctx context.Context, username, policyName, document string) error {
	_, err := c.iam.PutUserPolicy(ctx, &iam.PutUserPolicyInput{
		UserName:       &username,
		PolicyName:     &policyName,
		PolicyDocument: &document,
	})
	if err != nil {
		return dserrors.EndpointError("simulator", c.endpoint, err)
	}
	return nil
}

// CreateAccessKey creates a new key pair for a user. Used once during
// provisioning for the manager identity; the managed identity's keys are
// created and destroyed by the secrets engine afterwards.
func (c *Client) CreateAccessKey(ctx context.Context, username string) (KeyPair, error) {
	out, err := c.iam.CreateAccessKey(ctx, &iam.CreateAccessKeyInput{UserName: &username})
	if err != nil {
		return KeyPair{}, dserrors.EndpointError("simulator", c.endpoint, err)
	}
	return KeyPair{
		AccessKeyID:     *out.AccessKey.AccessKeyId,
		SecretAccessKey: *out.AccessKey.SecretAccessKey,
	}, nil
}

// ListUserNames returns the names of all users known to the simulator.
func (c *Client) ListUserNames(ctx context.Context) ([]string, error) {
	out, err := c.iam.ListUsers(ctx, &iam.ListUsersInput{})
	if err != nil {
		return nil, dserrors.EndpointError("simulator", c.endpoint, err)
	}

	names := make([]string, 0, len(out.Users))
	for _, u := range out.Users {
		if u.UserName != nil {
			names = append(names, *u.UserName)
		}
	}
	return names, nil
}

// Ping checks that the simulator's IAM endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.iam.ListUsers(ctx, &iam.ListUsersInput{}); err != nil {
		return dserrors.EndpointError("simulator", c.endpoint, err)
	}
	return nil
}

// VerifyCompute lists compute instances using the supplied credential
// snapshot and returns the instance count. A well-formed response with
// zero instances is still a success; a rejected signature is not.
func (c *Client) VerifyCompute(ctx context.Context, creds KeyPair) (int, error) {
	client := c.newEC2(creds.AccessKeyID, creds.SecretAccessKey)

	out, err := client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{})
	if err != nil {
		if dserrors.IsAuthError(err) {
			return 0, dserrors.UserError{
				Message:    "Simulator rejected the credentials",
				Details:    err.Error(),
				Suggestion: "The key pair may be stale; re-read credentials from Vault",
				Err:        err,
			}
		}
		return 0, dserrors.EndpointError("simulator", c.endpoint, err)
	}

	count := 0
	for _, reservation := range out.Reservations {
		count += len(reservation.Instances)
	}
	return count, nil
}
