package errors

import (
	"errors"
	"fmt"
	"strings"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// ProvisionError represents a failure while applying a declarative resource.
// The whole apply is aborted on the first ProvisionError; there is no
// partial-success handling.
type ProvisionError struct {
	Resource   string
	Message    string
	Suggestion string
	Err        error
}

func (e ProvisionError) Error() string {
	msg := fmt.Sprintf("Provisioning of '%s' failed", e.Resource)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}
	return msg
}

func (e ProvisionError) Unwrap() error {
	return e.Err
}

// VerifyError marks a failed step of the rotation demonstration.
// None of these are retried; the demonstration reports which step failed.
type VerifyError struct {
	Step    string
	Message string
	Err     error
}

func (e VerifyError) Error() string {
	msg := fmt.Sprintf("Verification step %s failed", e.Step)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e VerifyError) Unwrap() error {
	return e.Err
}

// EndpointError enhances connection failures against Vault or the cloud
// simulator with context about which endpoint was involved.
func EndpointError(system string, endpoint string, err error) error {
	return UserError{
		Message:    fmt.Sprintf("%s endpoint unreachable", system),
		Details:    fmt.Sprintf("endpoint: %s: %v", endpoint, err),
		Suggestion: getEndpointSuggestion(system, err),
		Err:        err,
	}
}

// getEndpointSuggestion returns helpful suggestions based on system and error
func getEndpointSuggestion(system string, err error) string {
	errStr := strings.ToLower(err.Error())

	switch system {
	case "vault":
		if strings.Contains(errStr, "connection refused") {
			return "Start the Vault dev server: 'vault server -dev -dev-root-token-id=root'"
		}
		if strings.Contains(errStr, "permission denied") || strings.Contains(errStr, "invalid token") {
			return "Check the Vault token in rotationdemo.yaml or the VAULT_TOKEN environment variable"
		}
	case "simulator":
		if strings.Contains(errStr, "connection refused") {
			return "Start LocalStack (or another AWS-compatible simulator) and check the configured endpoint"
		}
		if strings.Contains(errStr, "invalidclienttokenid") || strings.Contains(errStr, "authfailure") {
			return "The credentials are stale or malformed. Re-run 'rotationdemo apply' to reseed the engine"
		}
	}

	if strings.Contains(errStr, "timeout") {
		return "The operation timed out. Check your network connection and try again"
	}
	if strings.Contains(errStr, "no such host") {
		return "Unable to resolve the endpoint hostname. Check the configured URL"
	}

	return ""
}

// IsAuthError reports whether an error from the simulator indicates the
// presented credentials were rejected, as opposed to a transport problem.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	authPatterns := []string{
		"invalidclienttokenid",
		"authfailure",
		"signaturedoesnotmatch",
		"unrecognizedclient",
		"access denied",
		"accessdenied",
		"invalid security token",
	}

	for _, pattern := range authPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	// Already a user-friendly error
	if _, ok := err.(UserError); ok {
		return err
	}
	if _, ok := err.(ConfigError); ok {
		return err
	}
	if _, ok := err.(ProvisionError); ok {
		return err
	}
	if _, ok := err.(VerifyError); ok {
		return err
	}

	// Unwrap to get the root cause
	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}

	errStr := rootErr.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	return err
}
