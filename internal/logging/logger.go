// Package logging is the CLI's output surface: colored status lines on
// stderr plus the redaction helpers that keep rotated key material out
// of demo transcripts. Secret halves of key pairs pass through Secret,
// access key ids through MaskKeyID; neither ever prints in the clear.
package logging

import (
	"fmt"
	"os"
	"strings"
)

// Logger writes ✓/⚠/✗-prefixed status lines to stderr, leaving stdout
// free for table output (status, doctor).
type Logger struct {
	debug   bool
	noColor bool
}

// New creates a new logger instance
func New(debug, noColor bool) *Logger {
	return &Logger{
		debug:   debug,
		noColor: noColor,
	}
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if !l.noColor {
		fmt.Fprintf(os.Stderr, "\033[32m✓\033[0m %s\n", msg)
	} else {
		fmt.Fprintf(os.Stderr, "✓ %s\n", msg)
	}
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if !l.noColor {
		fmt.Fprintf(os.Stderr, "\033[33m⚠\033[0m %s\n", msg)
	} else {
		fmt.Fprintf(os.Stderr, "⚠ %s\n", msg)
	}
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if !l.noColor {
		fmt.Fprintf(os.Stderr, "\033[31m✗\033[0m %s\n", msg)
	} else {
		fmt.Fprintf(os.Stderr, "✗ %s\n", msg)
	}
}

// Debug logs a debug message if debug mode is enabled
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if !l.noColor {
		fmt.Fprintf(os.Stderr, "\033[36m[DEBUG]\033[0m %s\n", msg)
	} else {
		fmt.Fprintf(os.Stderr, "[DEBUG] %s\n", msg)
	}
}

// Secret wraps a sensitive value, typically the secret half of an
// access key pair, so any attempt to format it prints [REDACTED].
type Secret string

// String implements the Stringer interface, always returning a redacted value
func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString implements the GoStringer interface for %#v formatting
func (s Secret) GoString() string {
	return "[REDACTED]"
}

// Redact replaces known secret values in free text with [REDACTED],
// for scrubbing error details that may echo credentials back.
func Redact(s string, secrets []string) string {
	result := s
	for _, secret := range secrets {
		if secret != "" && len(secret) > 3 { // Only redact non-trivial secrets
			result = strings.ReplaceAll(result, secret, "[REDACTED]")
		}
	}
	return result
}

// MaskKeyID obscures the middle of an access key id. Key ids are not
// secret key material, but masking keeps demo output safe to paste into
// issues and chat logs.
func MaskKeyID(id string) string {
	if len(id) <= 8 {
		return "***"
	}
	return id[:4] + "***" + id[len(id)-4:]
}
