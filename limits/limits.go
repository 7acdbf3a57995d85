// Package limits provides centralized size limits for user-supplied strings and
// file chunks handled by the client core.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxMessageLength is the Tox limit for one friend or group message (1372 bytes).
	MaxMessageLength = 1372

	// MaxNameLength is the maximum length of a self or friend display name.
	MaxNameLength = 128

	// MaxStatusMessageLength is the maximum length of a status message.
	MaxStatusMessageLength = 1007

	// MaxFriendRequestLength is the maximum length of the message attached to a friend request.
	MaxFriendRequestLength = 1016

	// MaxFileNameLength is the maximum length of a file name announced to a peer.
	// It matches typical filesystem limits and fits in a uint16.
	MaxFileNameLength = 255

	// DefaultFileChunk is the chunk size negotiated when the session has no better value.
	DefaultFileChunk = 1024

	// MaxFileChunk bounds the chunk size a session may negotiate, preventing
	// oversized transmit buffers.
	MaxFileChunk = 65536
)

var (
	// ErrEmpty indicates an empty value was provided where content is required.
	ErrEmpty = errors.New("empty value")

	// ErrTooLarge indicates a value exceeds its maximum size.
	ErrTooLarge = errors.New("value too large")
)

// ValidateSize validates data against maxSize. Empty data is rejected.
func ValidateSize(data []byte, maxSize int) error {
	if len(data) == 0 {
		return ErrEmpty
	}
	if len(data) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrTooLarge, len(data), maxSize)
	}
	return nil
}

// ValidateMessage validates a chat message.
func ValidateMessage(message string) error {
	return ValidateSize([]byte(message), MaxMessageLength)
}

// ValidateName validates a display name. Empty names are allowed.
func ValidateName(name string) error {
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: name size %d exceeds limit %d", ErrTooLarge, len(name), MaxNameLength)
	}
	return nil
}

// ValidateStatusMessage validates a status message. Empty status messages are allowed.
func ValidateStatusMessage(message string) error {
	if len(message) > MaxStatusMessageLength {
		return fmt.Errorf("%w: status message size %d exceeds limit %d", ErrTooLarge, len(message), MaxStatusMessageLength)
	}
	return nil
}

// ValidateFileName validates a file name announced with a transfer.
func ValidateFileName(name string) error {
	return ValidateSize([]byte(name), MaxFileNameLength)
}

// ClampChunk returns size bounded to [1, MaxFileChunk], substituting
// DefaultFileChunk for non-positive values.
func ClampChunk(size int) int {
	if size <= 0 {
		return DefaultFileChunk
	}
	if size > MaxFileChunk {
		return MaxFileChunk
	}
	return size
}
