package session

import "time"

// UserStatus is the presence a user advertises to friends.
type UserStatus uint8

const (
	// UserStatusNone means available.
	UserStatusNone UserStatus = iota
	// UserStatusAway means away from keyboard.
	UserStatusAway
	// UserStatusBusy means do not disturb.
	UserStatusBusy
)

// String returns the user-facing name of the status.
func (s UserStatus) String() string {
	switch s {
	case UserStatusNone:
		return "online"
	case UserStatusAway:
		return "away"
	case UserStatusBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// MessageKind distinguishes plain messages from actions ("/me").
type MessageKind uint8

const (
	// MessageNormal is a regular chat message.
	MessageNormal MessageKind = iota
	// MessageAction is an action message.
	MessageAction
)

// FileControl is a file-transfer control signal exchanged with a peer.
type FileControl uint8

const (
	// FileControlAccept starts (or, by policy, resumes) a transfer.
	FileControlAccept FileControl = iota
	// FileControlPause pauses a transfer.
	FileControlPause
	// FileControlKill cancels a transfer.
	FileControlKill
	// FileControlFinished signals that all data has been sent.
	FileControlFinished
	// FileControlResume resumes a paused transfer.
	FileControlResume
)

// String returns the name of the control signal.
func (c FileControl) String() string {
	switch c {
	case FileControlAccept:
		return "accept"
	case FileControlPause:
		return "pause"
	case FileControlKill:
		return "kill"
	case FileControlFinished:
		return "finished"
	case FileControlResume:
		return "resume"
	default:
		return "unknown"
	}
}

// CallID identifies a call slot assigned by the AV subsystem. Valid ids are in
// [0, maxCalls).
type CallID int32

// CallEndReason says why a call ended.
type CallEndReason uint8

const (
	// CallEndHangup is a normal hangup by either side.
	CallEndHangup CallEndReason = iota
	// CallEndRejected means the callee declined the invite.
	CallEndRejected
	// CallEndCancelled means the caller cancelled before an answer.
	CallEndCancelled
	// CallEndTimeout means the request or the peer timed out.
	CallEndTimeout
	// CallEndError means the call failed.
	CallEndError
)

func (r CallEndReason) String() string {
	switch r {
	case CallEndHangup:
		return "hangup"
	case CallEndRejected:
		return "rejected"
	case CallEndCancelled:
		return "cancelled"
	case CallEndTimeout:
		return "timeout"
	case CallEndError:
		return "error"
	default:
		return "unknown"
	}
}

// Audio settings shared between the AV subsystem and the audio loop.
const (
	// DefaultSampleRate is the audio sample rate in Hz.
	DefaultSampleRate = 48000
	// DefaultFrameDuration is the duration of one audio frame.
	DefaultFrameDuration = 20 * time.Millisecond
)

// FrameSamples returns the number of mono samples in one frame.
func FrameSamples(sampleRate int, frameDuration time.Duration) int {
	return int(int64(sampleRate) * int64(frameDuration) / int64(time.Second))
}
