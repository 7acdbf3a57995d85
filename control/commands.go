package control

import "github.com/opd-ai/toxclient/session"

// Command is an instruction from the UI goroutine to the network goroutine.
// The set of commands is closed: only the types in this package implement it.
// Each variant carries its own typed payload and is moved across the channel
// by value.
type Command interface {
	// Op names the command for logging.
	Op() string
	isCommand()
}

// SetName changes the local display name.
type SetName struct{ Name string }

// SetStatusMessage changes the local status message.
type SetStatusMessage struct{ Message string }

// SetStatus changes the local presence.
type SetStatus struct{ Status session.UserStatus }

// AddFriend sends a friend request to a Tox address.
type AddFriend struct {
	Address string
	Message string
}

// DeleteFriend removes a friend.
type DeleteFriend struct{ Friend uint32 }

// AcceptFriend accepts a pending friend request. Request is the UI's index of
// the request in the snapshot's request list.
type AcceptFriend struct {
	Request   int
	PublicKey [32]byte
}

// SendMessage sends a message to a friend.
type SendMessage struct {
	Friend uint32
	Kind   session.MessageKind
	Text   string
}

// SendGroupMessage sends a message to a group.
type SendGroupMessage struct {
	Group uint32
	Kind  session.MessageKind
	Text  string
}

// SetTyping tells a friend whether we are typing.
type SetTyping struct {
	Friend uint32
	Typing bool
}

// Call starts an audio call with a friend.
type Call struct{ Friend uint32 }

// AcceptCall answers an incoming call.
type AcceptCall struct{ Call session.CallID }

// Hangup ends or rejects a call.
type Hangup struct{ Call session.CallID }

// NewGroup creates a group chat.
type NewGroup struct{}

// LeaveGroup leaves a group chat.
type LeaveGroup struct{ Group uint32 }

// InviteToGroup invites a friend into a group.
type InviteToGroup struct {
	Group  uint32
	Friend uint32
}

// JoinGroup accepts a group invitation. Invite is the UI's index of the invite.
type JoinGroup struct {
	Invite int
	Friend uint32
	Cookie []byte
}

// SendFile offers a local file to a friend.
type SendFile struct {
	Friend uint32
	Path   string
}

// ControlFile pauses, resumes or kills a transfer locally and tells the peer.
type ControlFile struct {
	Friend   uint32
	File     uint32
	Outgoing bool
	Control  session.FileControl
}

func (SetName) Op() string          { return "set_name" }
func (SetStatusMessage) Op() string { return "set_status_message" }
func (SetStatus) Op() string        { return "set_status" }
func (AddFriend) Op() string        { return "add_friend" }
func (DeleteFriend) Op() string     { return "delete_friend" }
func (AcceptFriend) Op() string     { return "accept_friend" }
func (SendMessage) Op() string      { return "send_message" }
func (SendGroupMessage) Op() string { return "send_group_message" }
func (SetTyping) Op() string        { return "set_typing" }
func (Call) Op() string             { return "call" }
func (AcceptCall) Op() string       { return "accept_call" }
func (Hangup) Op() string           { return "hangup" }
func (NewGroup) Op() string         { return "new_group" }
func (LeaveGroup) Op() string       { return "leave_group" }
func (InviteToGroup) Op() string    { return "invite_to_group" }
func (JoinGroup) Op() string        { return "join_group" }
func (SendFile) Op() string         { return "send_file" }
func (ControlFile) Op() string      { return "control_file" }

func (SetName) isCommand()          {}
func (SetStatusMessage) isCommand() {}
func (SetStatus) isCommand()        {}
func (AddFriend) isCommand()        {}
func (DeleteFriend) isCommand()     {}
func (AcceptFriend) isCommand()     {}
func (SendMessage) isCommand()      {}
func (SendGroupMessage) isCommand() {}
func (SetTyping) isCommand()        {}
func (Call) isCommand()             {}
func (AcceptCall) isCommand()       {}
func (Hangup) isCommand()           {}
func (NewGroup) isCommand()         {}
func (LeaveGroup) isCommand()       {}
func (InviteToGroup) isCommand()    {}
func (JoinGroup) isCommand()        {}
func (SendFile) isCommand()         {}
func (ControlFile) isCommand()      {}
