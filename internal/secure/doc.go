// Package secure wraps memguard to keep secret access keys encrypted in
// memory while the demonstration holds them between verification steps.
//
// Credential snapshots read from Vault are placed into a SecureBuffer
// immediately and only opened for the duration of a signed API call.
package secure
