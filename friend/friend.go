// Package friend holds the client's view of its friends.
//
// Records are owned by the network goroutine. The UI only ever sees View
// values produced by Snapshot, so a Friend is never shared across goroutines.
//
// Example:
//
//	roster := friend.NewRoster()
//	f := roster.Add(3, publicKey)
//	f.SetName("Alice")
//	f.AppendMessage(friend.Message{Text: "hi"})
package friend

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient/crypto"
	"github.com/opd-ai/toxclient/session"
)

// TimeProvider abstracts time for deterministic tests.
type TimeProvider interface {
	Now() time.Time
}

// DefaultTimeProvider uses the wall clock.
type DefaultTimeProvider struct{}

// Now returns time.Now().
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

var defaultTimeProvider TimeProvider = DefaultTimeProvider{}

// UnknownName is shown for friends whose name has not arrived yet.
const UnknownName = ""

// CallState is the state of a call with a friend.
type CallState uint8

const (
	// CallIdle means no call.
	CallIdle CallState = iota
	// CallInvited means the friend is calling us.
	CallInvited
	// CallRinging means we are calling the friend.
	CallRinging
	// CallActive means audio is flowing.
	CallActive
)

// String returns the display name of the state.
func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "idle"
	case CallInvited:
		return "incoming"
	case CallRinging:
		return "ringing"
	case CallActive:
		return "active"
	default:
		return "unknown"
	}
}

// Message is one chat line.
type Message struct {
	Outgoing bool
	Action   bool
	Text     string
	Time     time.Time
}

// Friend is a peer on the friend list.
type Friend struct {
	ID            uint32
	PublicKey     [32]byte
	Name          string
	StatusMessage string
	Status        session.UserStatus
	Online        bool
	Typing        bool
	LastSeen      time.Time

	Call   CallState
	CallID session.CallID

	Messages []Message

	timeProvider TimeProvider
}

// New creates a friend record for the session-assigned id.
func New(id uint32, publicKey [32]byte) *Friend {
	return NewWithTimeProvider(id, publicKey, defaultTimeProvider)
}

// NewWithTimeProvider creates a friend record with a custom time provider.
func NewWithTimeProvider(id uint32, publicKey [32]byte, tp TimeProvider) *Friend {
	if tp == nil {
		tp = defaultTimeProvider
	}

	logrus.WithFields(logrus.Fields{
		"function":   "friend.New",
		"friend_id":  id,
		"public_key": publicKey[:8],
	}).Debug("Creating friend record")

	return &Friend{
		ID:           id,
		PublicKey:    publicKey,
		Name:         UnknownName,
		Call:         CallIdle,
		CallID:       -1,
		timeProvider: tp,
	}
}

// SetName sets the friend's display name.
func (f *Friend) SetName(name string) {
	f.Name = name
}

// DisplayName returns the name, or a short form of the public key when the
// name is unknown.
func (f *Friend) DisplayName() string {
	if f.Name != UnknownName {
		return f.Name
	}
	return crypto.PublicKeyString(f.PublicKey)[:8]
}

// SetOnline updates presence and the last-seen time.
func (f *Friend) SetOnline(online bool) {
	if f.Online == online {
		return
	}
	f.Online = online
	f.LastSeen = f.timeProvider.Now()
	if !online {
		f.Typing = false
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Friend.SetOnline",
		"friend_id": f.ID,
		"online":    online,
	}).Info("Friend connection status changed")
}

// AppendMessage adds m to the conversation, stamping it if needed.
func (f *Friend) AppendMessage(m Message) {
	if m.Time.IsZero() {
		m.Time = f.timeProvider.Now()
	}
	f.Messages = append(f.Messages, m)
}

// SetCall moves the call state machine.
func (f *Friend) SetCall(state CallState, id session.CallID) {
	f.Call = state
	if state == CallIdle {
		id = -1
	}
	f.CallID = id
}

// View is an immutable copy of a Friend for display.
type View struct {
	ID            uint32
	PublicKey     [32]byte
	Name          string
	StatusMessage string
	Status        session.UserStatus
	Online        bool
	Typing        bool
	Call          CallState
	CallID        session.CallID
	Messages      []Message
}

// Snapshot copies f. The message slice is copied too so later appends are
// never visible through the view.
func (f *Friend) Snapshot() View {
	msgs := make([]Message, len(f.Messages))
	copy(msgs, f.Messages)
	return View{
		ID:            f.ID,
		PublicKey:     f.PublicKey,
		Name:          f.DisplayName(),
		StatusMessage: f.StatusMessage,
		Status:        f.Status,
		Online:        f.Online,
		Typing:        f.Typing,
		Call:          f.Call,
		CallID:        f.CallID,
		Messages:      msgs,
	}
}
