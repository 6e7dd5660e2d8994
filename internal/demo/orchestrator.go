// Package demo runs the rotation demonstration: prove that an
// application holding credentials served by a static role keeps working
// across a rotation, and that the rotation actually happened.
package demo

import (
	"context"
	"fmt"
	"time"

	"github.com/Surf-Wax/automated-secrets-management-poc/internal/cloud"
	dserrors "github.com/Surf-Wax/automated-secrets-management-poc/internal/errors"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/logging"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/secure"
	"github.com/Surf-Wax/automated-secrets-management-poc/internal/vault"
)

// Step identifies a phase of the demonstration. Steps run strictly in
// order; a failure stops the run at the failing step with no retry.
type Step string

// The demonstration's phases, in execution order.
const (
	StepInit         Step = "INIT"
	StepFirstVerify  Step = "FIRST_VERIFY"
	StepWait         Step = "WAIT"
	StepSecondVerify Step = "SECOND_VERIFY"
	StepDone         Step = "DONE"
)

// CredentialSource reads the current key pair of a static role.
// *vault.AWSEngine satisfies this.
type CredentialSource interface {
	ReadStaticCreds(ctx context.Context, roleName string) (*vault.StaticCredentials, error)
}

// ComputeVerifier exercises a credential snapshot against the simulator
// and reports how many instances it could list. *cloud.Client satisfies
// this.
type ComputeVerifier interface {
	VerifyCompute(ctx context.Context, creds cloud.KeyPair) (int, error)
}

// Snapshot records the non-secret half of one credential read plus the
// result of verifying it. The secret key never appears here.
type Snapshot struct {
	AccessKeyID string
	LeaseID     string
	TTL         time.Duration
	Instances   int
}

// Report is the outcome of one demonstration run. FailedStep is empty
// when the run reached DONE.
type Report struct {
	First      Snapshot
	Second     Snapshot
	Rotated    bool
	Waited     time.Duration
	FailedStep Step
}

// Orchestrator drives the demonstration sequence.
type Orchestrator struct {
	source   CredentialSource
	verifier ComputeVerifier
	logger   *logging.Logger
	metrics  *Metrics

	roleName string
	interval time.Duration
	margin   time.Duration

	// wait is replaceable in tests so a 61-second demonstration interval
	// does not mean a 61-second test.
	wait func(ctx context.Context, d time.Duration) error
}

// Option is a functional option for configuring the orchestrator
type Option func(*Orchestrator)

// WithWaiter replaces the real sleep between the two verification passes.
func WithWaiter(wait func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) {
		o.wait = wait
	}
}

// WithMetrics records demonstration events to the given metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// New builds an orchestrator for one static role. The wait between the
// two verification passes is interval + margin; the margin must be
// positive, because waiting exactly the rotation interval can observe
// the pre-rotation credentials and report a false failure.
func New(source CredentialSource, verifier ComputeVerifier, logger *logging.Logger, roleName string, interval, margin time.Duration, opts ...Option) (*Orchestrator, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("rotation interval must be positive, got %s", interval)
	}
	if margin <= 0 {
		return nil, fmt.Errorf("safety margin must be positive, got %s", margin)
	}

	o := &Orchestrator{
		source:   source,
		verifier: verifier,
		logger:   logger,
		roleName: roleName,
		interval: interval,
		margin:   margin,
		wait:     sleepWait,
		metrics:  NewMetrics(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o, nil
}

func sleepWait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run executes the demonstration: read credentials, prove they work,
// outwait one rotation, read again, prove the new credentials work, and
// confirm the key actually changed. Returns the report alongside any
// error; on failure the report records which step failed.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	o.logger.Info("Reading initial credentials for role '%s'", o.roleName)
	first, firstSecret, err := o.readCredentials(ctx)
	if err != nil {
		return o.fail(report, StepInit, err)
	}
	defer firstSecret.Destroy()
	report.First = first
	o.logger.Info("Received access key %s (lease %s, ttl %s)",
		logging.MaskKeyID(first.AccessKeyID), first.LeaseID, first.TTL)

	o.logger.Info("Verifying credentials against the simulator")
	report.First.Instances, err = o.verify(ctx, StepFirstVerify, first.AccessKeyID, firstSecret)
	if err != nil {
		return o.fail(report, StepFirstVerify, err)
	}
	o.logger.Info("First verification passed: listed %d instance(s)", report.First.Instances)

	report.Waited = o.interval + o.margin
	o.logger.Info("Waiting %s for the engine to rotate (period %s + margin %s)",
		report.Waited, o.interval, o.margin)
	if err := o.wait(ctx, report.Waited); err != nil {
		return o.fail(report, StepWait, err)
	}

	o.logger.Info("Re-reading credentials for role '%s'", o.roleName)
	second, secondSecret, err := o.readCredentials(ctx)
	if err != nil {
		return o.fail(report, StepSecondVerify, err)
	}
	defer secondSecret.Destroy()
	report.Second = second

	report.Rotated = second.AccessKeyID != first.AccessKeyID
	if !report.Rotated {
		err := dserrors.VerifyError{
			Step:    string(StepSecondVerify),
			Message: fmt.Sprintf("access key %s did not rotate within %s", logging.MaskKeyID(first.AccessKeyID), report.Waited),
		}
		return o.fail(report, StepSecondVerify, err)
	}
	o.metrics.RecordRotationObserved(o.roleName)
	o.logger.Info("Rotation observed: %s replaced %s",
		logging.MaskKeyID(second.AccessKeyID), logging.MaskKeyID(first.AccessKeyID))

	o.logger.Info("Verifying rotated credentials against the simulator")
	report.Second.Instances, err = o.verify(ctx, StepSecondVerify, second.AccessKeyID, secondSecret)
	if err != nil {
		return o.fail(report, StepSecondVerify, err)
	}
	o.logger.Info("Second verification passed: listed %d instance(s)", report.Second.Instances)

	o.logger.Info("Demonstration complete: zero-downtime rotation confirmed")
	return report, nil
}

// readCredentials fetches the role's current key pair. The secret half
// goes straight into a protected buffer; only the access key id and
// lease metadata stay in the clear.
func (o *Orchestrator) readCredentials(ctx context.Context) (Snapshot, *secure.SecureBuffer, error) {
	start := time.Now()
	creds, err := o.source.ReadStaticCreds(ctx, o.roleName)
	o.metrics.RecordCredentialRead(o.roleName, time.Since(start).Seconds(), err == nil)
	if err != nil {
		return Snapshot{}, nil, err
	}

	snapshot := Snapshot{
		AccessKeyID: creds.AccessKeyID,
		LeaseID:     creds.LeaseID,
		TTL:         creds.TTL,
	}
	return snapshot, secure.NewSecureString(creds.SecretAccessKey), nil
}

func (o *Orchestrator) verify(ctx context.Context, step Step, accessKeyID string, secret *secure.SecureBuffer) (int, error) {
	start := time.Now()

	var instances int
	err := secret.WithString(func(secretKey string) error {
		var verifyErr error
		instances, verifyErr = o.verifier.VerifyCompute(ctx, cloud.KeyPair{
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretKey,
		})
		return verifyErr
	})

	o.metrics.RecordVerify(string(step), err == nil, time.Since(start).Seconds())
	if err != nil {
		return 0, err
	}
	return instances, nil
}

func (o *Orchestrator) fail(report *Report, step Step, err error) (*Report, error) {
	report.FailedStep = step
	o.logger.Error("Step %s failed: %v", step, err)

	if _, ok := err.(dserrors.VerifyError); ok {
		return report, err
	}
	return report, dserrors.VerifyError{Step: string(step), Err: err}
}
