// Package testutil provides in-memory stand-ins for the demonstration's
// two external collaborators: the cloud-identity simulator and the
// secrets-management service. They exist so the test suite can exercise
// a full rotation cycle without LocalStack or Vault running.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/Surf-Wax/automated-secrets-management-poc/internal/cloud"
)

// IAMStore is an in-memory identity store implementing cloud.IAMAPI. It
// also backs the mock Vault server's rotation: rotating a user mints a
// new key and deletes the previous one, exactly like the real engine.
type IAMStore struct {
	mu      sync.Mutex
	users   map[string]*storedUser
	keySeq  int
	deleted []string // access key ids that no longer authenticate
}

type storedUser struct {
	arn      string
	policies map[string]string
	keys     []cloud.KeyPair
}

// NewIAMStore creates an empty identity store.
func NewIAMStore() *IAMStore {
	return &IAMStore{users: make(map[string]*storedUser)}
}

func (s *IAMStore) CreateUser(_ context.Context, in *iam.CreateUserInput, _ ...func(*iam.Options)) (*iam.CreateUserOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := aws.ToString(in.UserName)
	if _, exists := s.users[name]; exists {
		return nil, &iamtypes.EntityAlreadyExistsException{
			Message: aws.String("user " + name + " already exists"),
		}
	}

	u := &storedUser{
		arn:      "arn:aws:iam::000000000000:user/" + name,
		policies: make(map[string]string),
	}
	s.users[name] = u

	return &iam.CreateUserOutput{User: &iamtypes.User{
		UserName: in.UserName,
		Arn:      aws.String(u.arn),
	}}, nil
}

func (s *IAMStore) GetUser(_ context.Context, in *iam.GetUserInput, _ ...func(*iam.Options)) (*iam.GetUserOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := aws.ToString(in.UserName)
	u, exists := s.users[name]
	if !exists {
		return nil, fmt.Errorf("api error NoSuchEntity: user %s not found", name)
	}
	return &iam.GetUserOutput{User: &iamtypes.User{
		UserName: in.UserName,
		Arn:      aws.String(u.arn),
	}}, nil
}

func (s *IAMStore) ListUsers(_ context.Context, _ *iam.ListUsersInput, _ ...func(*iam.Options)) (*iam.ListUsersOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := &iam.ListUsersOutput{}
	for name, u := range s.users {
		out.Users = append(out.Users, iamtypes.User{
			UserName: aws.String(name),
			Arn:      aws.String(u.arn),
		})
	}
	return out, nil
}

func (s *IAMStore) PutUserPolicy(_ context.Context, in *iam.PutUserPolicyInput, _ ...func(*iam.Options)) (*iam.PutUserPolicyOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := aws.ToString(in.UserName)
	u, exists := s.users[name]
	if !exists {
		return nil, fmt.Errorf("api error NoSuchEntity: user %s not found", name)
	}
	u.policies[aws.ToString(in.PolicyName)] = aws.ToString(in.PolicyDocument)
	return &iam.PutUserPolicyOutput{}, nil
}

func (s *IAMStore) CreateAccessKey(_ context.Context, in *iam.CreateAccessKeyInput, _ ...func(*iam.Options)) (*iam.CreateAccessKeyOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := aws.ToString(in.UserName)
	pair, err := s.mintKeyLocked(name)
	if err != nil {
		return nil, err
	}

	return &iam.CreateAccessKeyOutput{AccessKey: &iamtypes.AccessKey{
		UserName:        in.UserName,
		AccessKeyId:     aws.String(pair.AccessKeyID),
		SecretAccessKey: aws.String(pair.SecretAccessKey),
	}}, nil
}

func (s *IAMStore) mintKeyLocked(username string) (cloud.KeyPair, error) {
	u, exists := s.users[username]
	if !exists {
		return cloud.KeyPair{}, fmt.Errorf("api error NoSuchEntity: user %s not found", username)
	}

	s.keySeq++
	pair := cloud.KeyPair{
		AccessKeyID:     fmt.Sprintf("AKIAMOCK%08d", s.keySeq),
		SecretAccessKey: fmt.Sprintf("mock-secret-%08d", s.keySeq),
	}
	u.keys = append(u.keys, pair)
	return pair, nil
}

// RotateUserKey mints a new key pair for a user and deletes the one the
// secrets engine previously served, mirroring static-role rotation.
func (s *IAMStore) RotateUserKey(username string, previousKeyID string) (cloud.KeyPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, err := s.mintKeyLocked(username)
	if err != nil {
		return cloud.KeyPair{}, err
	}

	if previousKeyID != "" {
		u := s.users[username]
		for i, k := range u.keys {
			if k.AccessKeyID == previousKeyID {
				u.keys = append(u.keys[:i], u.keys[i+1:]...)
				break
			}
		}
		s.deleted = append(s.deleted, previousKeyID)
	}

	return pair, nil
}

// KeyValid reports whether an access key id still authenticates.
func (s *IAMStore) KeyValid(accessKeyID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		for _, k := range u.keys {
			if k.AccessKeyID == accessKeyID {
				return true
			}
		}
	}
	return false
}

// UserCount returns the number of identities in the store.
func (s *IAMStore) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// KeyCount returns how many active keys a user has.
func (s *IAMStore) KeyCount(username string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, exists := s.users[username]; exists {
		return len(u.keys)
	}
	return 0
}

// Policy returns a user's inline policy document, or "" if absent.
func (s *IAMStore) Policy(username, policyName string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, exists := s.users[username]; exists {
		return u.policies[policyName]
	}
	return ""
}

// EC2Factory returns a cloud.EC2Factory whose DescribeInstances succeeds
// only for keys that are currently valid in the store, responding with
// the given number of mocked instances.
func (s *IAMStore) EC2Factory(instances int) cloud.EC2Factory {
	return func(accessKeyID, _ string) cloud.EC2API {
		return &mockEC2{store: s, keyID: accessKeyID, instances: instances}
	}
}

type mockEC2 struct {
	store     *IAMStore
	keyID     string
	instances int
}

func (m *mockEC2) DescribeInstances(_ context.Context, _ *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	if !m.store.KeyValid(m.keyID) {
		return nil, fmt.Errorf("api error AuthFailure: access key %s could not be validated", m.keyID)
	}

	out := &ec2.DescribeInstancesOutput{}
	if m.instances > 0 {
		reservation := ec2types.Reservation{}
		for i := 0; i < m.instances; i++ {
			reservation.Instances = append(reservation.Instances, ec2types.Instance{
				InstanceId: aws.String(fmt.Sprintf("i-mock%04d", i)),
			})
		}
		out.Reservations = []ec2types.Reservation{reservation}
	}
	return out, nil
}
