package session

import (
	"errors"
	"fmt"
)

var (
	// ErrBufferFull is returned by FileSendData when the transport cannot take
	// another chunk right now. The chunk must be retried on a later iteration.
	ErrBufferFull = errors.New("file transport buffer full")

	// ErrClosed is returned by any operation on a closed session or AV instance.
	ErrClosed = errors.New("session closed")

	// ErrFriendNotFound is returned for an unknown friend number.
	ErrFriendNotFound = errors.New("friend not found")

	// ErrFriendOffline is returned when an operation needs the friend online.
	ErrFriendOffline = errors.New("friend not connected")

	// ErrGroupNotFound is returned for an unknown group number.
	ErrGroupNotFound = errors.New("group not found")

	// ErrFileNotFound is returned for an unknown transfer.
	ErrFileNotFound = errors.New("file transfer not found")

	// ErrCallNotFound is returned for an unknown or finished call.
	ErrCallNotFound = errors.New("call not found")

	// ErrTooManyCalls is returned when every call slot is in use.
	ErrTooManyCalls = errors.New("no free call slot")

	// ErrInvalidCookie is returned when a group invite cookie cannot be used.
	ErrInvalidCookie = errors.New("invalid group invite cookie")
)

// FriendAddCode is the reason a friend add was refused. The numeric values are
// shown to users, so they are stable.
type FriendAddCode uint8

const (
	// FriendAddTooLong means the request message is too long.
	FriendAddTooLong FriendAddCode = iota + 1
	// FriendAddNoMessage means the request message is empty.
	FriendAddNoMessage
	// FriendAddOwnKey means the address is our own.
	FriendAddOwnKey
	// FriendAddAlreadySent means the friend is already on the list.
	FriendAddAlreadySent
	// FriendAddBadChecksum means the address is malformed.
	FriendAddBadChecksum
	// FriendAddSetNewNospam means the friend is known with a different nospam.
	FriendAddSetNewNospam
	// FriendAddNoMem means the friend list could not grow.
	FriendAddNoMem
)

// String describes the code for display.
func (c FriendAddCode) String() string {
	switch c {
	case FriendAddTooLong:
		return "message too long"
	case FriendAddNoMessage:
		return "no message"
	case FriendAddOwnKey:
		return "that is your own address"
	case FriendAddAlreadySent:
		return "friend request already sent"
	case FriendAddBadChecksum:
		return "invalid address"
	case FriendAddSetNewNospam:
		return "nospam changed"
	case FriendAddNoMem:
		return "friend list full"
	default:
		return "unknown error"
	}
}

// FriendAddError is returned by AddFriend and AddFriendNoRequest.
type FriendAddError struct {
	Code FriendAddCode
	Err  error
}

func (e *FriendAddError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("add friend: %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("add friend: %s", e.Code)
}

func (e *FriendAddError) Unwrap() error { return e.Err }

// FriendAddErrorCode extracts the FriendAddCode from err, or 0 when err is not
// a FriendAddError.
func FriendAddErrorCode(err error) FriendAddCode {
	var fe *FriendAddError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return 0
}
