package session

// Event is an inbound session event. The set of variants is closed: every
// concrete type in this file implements it and nothing else does.
type Event interface {
	isEvent()
}

// EventHandler consumes events delivered by Session.Iterate.
type EventHandler interface {
	HandleEvent(ev Event)
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ev Event)

// HandleEvent calls f(ev).
func (f EventHandlerFunc) HandleEvent(ev Event) { f(ev) }

// FriendRequest is an incoming friend request.
type FriendRequest struct {
	PublicKey [32]byte
	Message   string
}

// FriendMessage is a message from a friend.
type FriendMessage struct {
	Friend  uint32
	Kind    MessageKind
	Message string
}

// FriendName reports a friend's new display name.
type FriendName struct {
	Friend uint32
	Name   string
}

// FriendStatusMessage reports a friend's new status message.
type FriendStatusMessage struct {
	Friend  uint32
	Message string
}

// FriendUserStatus reports a friend's new presence.
type FriendUserStatus struct {
	Friend uint32
	Status UserStatus
}

// FriendTyping reports a change in a friend's typing state.
type FriendTyping struct {
	Friend uint32
	Typing bool
}

// FriendReadReceipt reports that a friend received message number Receipt.
type FriendReadReceipt struct {
	Friend  uint32
	Receipt uint32
}

// FriendConnection reports a friend going online or offline.
type FriendConnection struct {
	Friend uint32
	Online bool
}

// GroupInvite is an invitation from a friend to join a group.
type GroupInvite struct {
	Friend uint32
	Cookie []byte
}

// GroupMessage is a message sent to a group.
type GroupMessage struct {
	Group   uint32
	Peer    uint32
	Kind    MessageKind
	Message string
}

// GroupPeerJoin reports a new peer in a group. Its name is not known yet.
type GroupPeerJoin struct {
	Group uint32
	Peer  uint32
}

// GroupPeerLeave reports a peer leaving a group.
type GroupPeerLeave struct {
	Group uint32
	Peer  uint32
}

// GroupPeerName reports a group peer's name.
type GroupPeerName struct {
	Group uint32
	Peer  uint32
	Name  string
}

// FileSendRequest is a friend offering to send a file.
type FileSendRequest struct {
	Friend uint32
	File   uint32
	Size   uint64
	Name   string
}

// FileControlReceived is a control signal from a friend. Outgoing is true when
// the signal refers to a transfer this node is sending.
type FileControlReceived struct {
	Friend   uint32
	File     uint32
	Outgoing bool
	Control  FileControl
}

// FileData is one chunk of an incoming transfer.
type FileData struct {
	Friend uint32
	File   uint32
	Data   []byte
}

// CallInvite is an incoming call.
type CallInvite struct {
	Call   CallID
	Friend uint32
}

// CallRinging reports that the callee's client is ringing.
type CallRinging struct {
	Call   CallID
	Friend uint32
}

// CallStart reports that both sides have joined the call and audio may flow.
type CallStart struct {
	Call   CallID
	Friend uint32
}

// CallEnd reports that a call is over.
type CallEnd struct {
	Call   CallID
	Friend uint32
	Reason CallEndReason
}

func (FriendRequest) isEvent()       {}
func (FriendMessage) isEvent()       {}
func (FriendName) isEvent()          {}
func (FriendStatusMessage) isEvent() {}
func (FriendUserStatus) isEvent()    {}
func (FriendTyping) isEvent()        {}
func (FriendReadReceipt) isEvent()   {}
func (FriendConnection) isEvent()    {}
func (GroupInvite) isEvent()         {}
func (GroupMessage) isEvent()        {}
func (GroupPeerJoin) isEvent()       {}
func (GroupPeerLeave) isEvent()      {}
func (GroupPeerName) isEvent()       {}
func (FileSendRequest) isEvent()     {}
func (FileControlReceived) isEvent() {}
func (FileData) isEvent()            {}
func (CallInvite) isEvent()          {}
func (CallRinging) isEvent()         {}
func (CallStart) isEvent()           {}
func (CallEnd) isEvent()             {}
