// Package notify carries UI-bound notifications from the network goroutine to
// the UI goroutine.
//
// The network goroutine calls Sink.Notify and never waits for the UI. The UI
// goroutine selects on Queue.Wake and then drains everything pending in one
// go, so bursts of events cost one redraw.
package notify

import (
	"sync"

	"github.com/opd-ai/toxclient/session"
)

// Kind identifies a notification.
type Kind uint8

const (
	// DHTConnected reports a change in network connectivity. Connected holds the new state.
	DHTConnected Kind = iota + 1
	// FriendRequest carries an incoming friend request (Request, Text).
	FriendRequest
	// FriendAdd confirms (or with Failed, refuses) a friend add (Friend, Err).
	FriendAdd
	// FriendAccept confirms (or refuses) acceptance of a friend request.
	FriendAccept
	// FriendDeleted confirms removal of a friend.
	FriendDeleted
	// FriendMessage is a new message from a friend (Friend, Text, Action).
	FriendMessage
	// FriendUpdated reports a change to a friend's name, status, typing or presence.
	FriendUpdated
	// FriendReceipt reports a read receipt (Friend, Receipt).
	FriendReceipt
	// CallInvite is an incoming call (Friend, Call).
	CallInvite
	// CallRing reports an outgoing call ringing (Friend, Call).
	CallRing
	// CallStart reports that a call is active (Friend, Call).
	CallStart
	// CallEnd reports that a call ended (Friend, Call).
	CallEnd
	// GroupAdd reports a group created or joined (Group).
	GroupAdd
	// GroupInvite is an invitation to a group (Friend, Invite).
	GroupInvite
	// GroupMessage is a new group message (Group, Peer, Text).
	GroupMessage
	// GroupUpdated reports a change in a group's peers or topic.
	GroupUpdated
	// GroupLeft confirms leaving a group.
	GroupLeft
	// FileBeginSend reports a new outgoing transfer (Friend, File, Text=name).
	FileBeginSend
	// FileBeginRecv reports a new incoming transfer (Friend, File, Text=name).
	FileBeginRecv
	// FileUpdated reports a transfer status change.
	FileUpdated
	// FileDone reports a finished or killed transfer.
	FileDone
	// SelfUpdated reports a change to the local profile.
	SelfUpdated
	// CommandFailed reports a user command that could not be carried out (Err).
	CommandFailed
)

var kindNames = map[Kind]string{
	DHTConnected:  "dht_connected",
	FriendRequest: "friend_request",
	FriendAdd:     "friend_add",
	FriendAccept:  "friend_accept",
	FriendDeleted: "friend_deleted",
	FriendMessage: "friend_message",
	FriendUpdated: "friend_updated",
	FriendReceipt: "friend_receipt",
	CallInvite:    "call_invite",
	CallRing:      "call_ring",
	CallStart:     "call_start",
	CallEnd:       "call_end",
	GroupAdd:      "group_add",
	GroupInvite:   "group_invite",
	GroupMessage:  "group_message",
	GroupUpdated:  "group_updated",
	GroupLeft:     "group_left",
	FileBeginSend: "file_begin_send",
	FileBeginRecv: "file_begin_recv",
	FileUpdated:   "file_updated",
	FileDone:      "file_done",
	SelfUpdated:   "self_updated",
	CommandFailed: "command_failed",
}

// String returns a stable name for logging.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Notification is an immutable value handed to the UI. Only the fields named
// in the Kind's documentation are meaningful.
type Notification struct {
	Kind Kind

	Friend  uint32
	Group   uint32
	Peer    uint32
	File    uint32
	Call    session.CallID
	Request int
	Invite  int
	Receipt uint32

	Text      string
	Action    bool
	Connected bool

	// Failed marks a refused operation; Err holds the reason. A CallEnd
	// may carry Err without Failed when the peer could not be told.
	Failed bool
	Err    error
}

// Sink receives notifications. Notify must not block.
type Sink interface {
	Notify(n Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(n Notification)

// Notify calls f(n).
func (f SinkFunc) Notify(n Notification) { f(n) }

// Discard is a Sink that drops everything.
var Discard Sink = SinkFunc(func(Notification) {})

// Queue is an unbounded, coalescing Sink. Producers append and signal; the
// consumer wakes once per burst and takes everything pending.
type Queue struct {
	mu      sync.Mutex
	pending []Notification
	wake    chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// Notify appends n and wakes the consumer if it is not already signalled.
func (q *Queue) Notify(n Notification) {
	q.mu.Lock()
	q.pending = append(q.pending, n)
	q.mu.Unlock()
	q.signal()
}

// Signal wakes the consumer without queueing anything. The client calls it
// after publishing a snapshot, so the consumer redraws once per burst.
func (q *Queue) Signal() {
	q.signal()
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Wake is signalled when notifications are pending or a redraw is due.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}

// Drain returns and clears all pending notifications in arrival order.
func (q *Queue) Drain() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}
