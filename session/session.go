package session

import "time"

// Session is the peer-to-peer network session driven by the client core. All
// methods except those of the AV returned by NewAV are called from a single
// goroutine. Events raised by the network are delivered synchronously from
// Iterate on that goroutine.
type Session interface {
	// Iterate performs one round of protocol work and delivers pending events.
	Iterate(h EventHandler)
	// IterationInterval is how long the caller should wait before the next Iterate.
	IterationInterval() time.Duration
	// IsConnected reports whether the session is connected to the network.
	IsConnected() bool
	// Bootstrap contacts a bootstrap node.
	Bootstrap(node BootstrapNode) error

	// Save serializes the complete session state.
	Save() ([]byte, error)
	// Load replaces the session state with a blob produced by Save.
	Load(data []byte) error
	// Close releases the session.
	Close() error

	SelfAddress() string
	SelfName() string
	SetName(name string) error
	SelfStatusMessage() string
	SetStatusMessage(message string) error
	SelfStatus() UserStatus
	SetStatus(status UserStatus) error
	SetTyping(friend uint32, typing bool) error

	// AddFriend sends a friend request to a Tox address.
	AddFriend(address, message string) (uint32, error)
	// AddFriendNoRequest adds a friend by public key, typically to accept a request.
	AddFriendNoRequest(publicKey [32]byte) (uint32, error)
	DeleteFriend(friend uint32) error
	FriendList() []uint32
	FriendPublicKey(friend uint32) ([32]byte, error)
	FriendName(friend uint32) (string, error)
	FriendStatusMessage(friend uint32) (string, error)
	// SendMessage queues a message and returns its receipt number.
	SendMessage(friend uint32, kind MessageKind, message string) (uint32, error)

	NewGroup() (uint32, error)
	DeleteGroup(group uint32) error
	InviteToGroup(friend, group uint32) error
	JoinGroup(friend uint32, cookie []byte) (uint32, error)
	SendGroupMessage(group uint32, kind MessageKind, message string) error

	// FileSend announces a new outgoing file and returns its file number.
	FileSend(friend uint32, size uint64, name string) (uint32, error)
	// FileControl sends a control signal. outgoing is true for transfers this
	// node is sending.
	FileControl(friend, file uint32, outgoing bool, control FileControl) error
	// FileSendData sends one chunk. ErrBufferFull signals backpressure.
	FileSendData(friend, file uint32, data []byte) error
	// FileDataSize is the negotiated chunk size for transfers to friend.
	FileDataSize(friend uint32) int

	// NewAV creates the call subsystem with maxCalls call slots.
	NewAV(maxCalls int) (AV, error)
}

// AV is the call subsystem. Call control methods are used by the network
// goroutine; the audio methods are used concurrently by the audio goroutine and
// must be safe for that.
type AV interface {
	// Call starts a call and returns its slot.
	Call(friend uint32) (CallID, error)
	Answer(call CallID) error
	Hangup(call CallID) error

	// PrepareAudioFrame encodes one frame of PCM samples.
	PrepareAudioFrame(call CallID, pcm []int16) ([]byte, error)
	// SendAudio transmits an encoded frame.
	SendAudio(call CallID, frame []byte) error
	// ReceiveAudio decodes the next incoming frame into pcm and returns the
	// number of samples written, or 0 when nothing is queued.
	ReceiveAudio(call CallID, pcm []int16) (int, error)

	Close() error
}
