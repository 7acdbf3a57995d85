// Package limits provides centralized size constants and validation functions
// for the client core.
//
// # Limits
//
//   - MaxMessageLength (1372 bytes): one friend or group message.
//   - MaxNameLength (128 bytes): display names.
//   - MaxStatusMessageLength (1007 bytes): status messages.
//   - MaxFriendRequestLength (1016 bytes): friend request text.
//   - MaxFileNameLength (255 bytes): announced file names.
//   - DefaultFileChunk / MaxFileChunk: bounds for negotiated file chunk sizes.
//
// # Validation
//
//	if err := limits.ValidateMessage(text); err != nil {
//	    // errors.Is(err, limits.ErrEmpty) or errors.Is(err, limits.ErrTooLarge)
//	}
//
// Commands are validated on the UI side before they are posted and again by
// the session, so oversized input never reaches the network goroutine's
// hot path.
package limits
