package secure

import (
	"sync"

	"github.com/awnumar/memguard"
)

// SecureBuffer provides memory-safe storage for sensitive data.
// It wraps memguard.Enclave to encrypt secrets at rest in memory
// and protect them from swapping via mlock.
//
// Note: memguard.Enclave doesn't have a direct Destroy method.
// Instead, we track the enclave and use memguard.Purge() for cleanup
// at application exit.
type SecureBuffer struct {
	enclave *memguard.Enclave
	mu      sync.RWMutex
	// destroyed tracks if this buffer has been destroyed to allow
	// idempotent Destroy() calls and prevent use after destroy
	destroyed bool
}

// NewSecureBuffer creates a protected buffer from secret bytes.
// The input data is immediately copied into a protected memory region.
func NewSecureBuffer(data []byte) *SecureBuffer {
	// memguard.NewEnclave encrypts the data using XSalsa20Poly1305,
	// attempts to mlock the memory to prevent swapping, and sets up
	// guard pages for overflow detection.
	return &SecureBuffer{
		enclave: memguard.NewEnclave(data),
	}
}

// NewSecureString creates a protected buffer from a secret string, such as
// the secret half of an access key pair read from Vault.
func NewSecureString(s string) *SecureBuffer {
	return NewSecureBuffer([]byte(s))
}

// Open decrypts and returns the protected data in a locked buffer.
// The caller MUST call Destroy() on the returned LockedBuffer when done
// to securely wipe the plaintext from memory.
func (s *SecureBuffer) Open() (*memguard.LockedBuffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.destroyed {
		// Return an empty locked buffer if already destroyed
		return memguard.NewBufferFromBytes([]byte{}), nil
	}

	return s.enclave.Open()
}

// WithString decrypts the buffer, invokes fn with the plaintext, and wipes
// the plaintext before returning. The string must not escape fn.
func (s *SecureBuffer) WithString(fn func(string) error) error {
	locked, err := s.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()

	return fn(locked.String())
}

// Destroy marks this SecureBuffer as destroyed and prevents further use.
// This method is idempotent. After Destroy(), Open() returns an empty
// buffer. For complete cleanup of all memguard data at application exit,
// call memguard.Purge() in a defer statement in main().
func (s *SecureBuffer) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return
	}

	s.enclave = nil
	s.destroyed = true
}
