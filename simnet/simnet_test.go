package simnet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/toxclient/crypto"
	"github.com/opd-ai/toxclient/session"
)

var testBootstrap = session.BootstrapNode{
	Address:   "127.0.0.1",
	Port:      33445,
	PublicKey: strings.Repeat("AB", 32),
}

func newNode(t *testing.T, h *Hub, name string) *Node {
	t.Helper()
	n, err := h.NewNode()
	require.NoError(t, err)
	require.NoError(t, n.SetName(name))
	require.NoError(t, n.Bootstrap(testBootstrap))
	return n
}

func drain(n *Node) []session.Event {
	var out []session.Event
	n.Iterate(session.EventHandlerFunc(func(ev session.Event) {
		out = append(out, ev)
	}))
	return out
}

// befriend makes a and b mutual friends and drains the resulting events.
func befriend(t *testing.T, a, b *Node) (ab, ba uint32) {
	t.Helper()
	ab, err := a.AddFriend(b.SelfAddress(), "hello")
	require.NoError(t, err)
	drain(a)
	evs := drain(b)
	require.Contains(t, evs, session.FriendRequest{PublicKey: a.PublicKey(), Message: "hello"})
	ba, err = b.AddFriendNoRequest(a.PublicKey())
	require.NoError(t, err)
	drain(a)
	drain(b)
	return ab, ba
}

func TestFriendRequestAndConnection(t *testing.T) {
	h := NewHub()
	a := newNode(t, h, "alice")
	b := newNode(t, h, "bob")
	require.NoError(t, b.SetStatusMessage("around"))
	require.True(t, a.IsConnected())

	ab, err := a.AddFriend(b.SelfAddress(), "hello")
	require.NoError(t, err)
	assert.Empty(t, drain(a), "no connection before the request is accepted")

	assert.Equal(t, []session.Event{
		session.FriendRequest{PublicKey: a.PublicKey(), Message: "hello"},
	}, drain(b))

	ba, err := b.AddFriendNoRequest(a.PublicKey())
	require.NoError(t, err)

	assert.Equal(t, []session.Event{
		session.FriendConnection{Friend: ab, Online: true},
		session.FriendName{Friend: ab, Name: "bob"},
		session.FriendStatusMessage{Friend: ab, Message: "around"},
		session.FriendUserStatus{Friend: ab, Status: session.UserStatusNone},
	}, drain(a))
	assert.Contains(t, drain(b), session.FriendConnection{Friend: ba, Online: true})

	name, err := a.FriendName(ab)
	require.NoError(t, err)
	assert.Equal(t, "bob", name)

	h.SetOnline(b, false)
	assert.Equal(t, []session.Event{session.FriendConnection{Friend: ab, Online: false}}, drain(a))
	assert.False(t, b.IsConnected())
}

func TestAddFriendErrors(t *testing.T) {
	h := NewHub()
	a := newNode(t, h, "alice")
	b := newNode(t, h, "bob")
	_, err := a.AddFriend(b.SelfAddress(), "hi")
	require.NoError(t, err)

	otherNospam := crypto.NewToxID(b.PublicKey(), [4]byte{0xde, 0xad, 0xbe, 0xef}).String()

	tests := []struct {
		name    string
		address string
		message string
		want    session.FriendAddCode
	}{
		{"bad address", "not-an-address", "hi", session.FriendAddBadChecksum},
		{"empty message", b.SelfAddress(), "", session.FriendAddNoMessage},
		{"message too long", b.SelfAddress(), strings.Repeat("x", 2000), session.FriendAddTooLong},
		{"own address", a.SelfAddress(), "hi", session.FriendAddOwnKey},
		{"already sent", b.SelfAddress(), "hi", session.FriendAddAlreadySent},
		{"new nospam", otherNospam, "hi", session.FriendAddSetNewNospam},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.AddFriend(tt.address, tt.message)
			require.Error(t, err)
			assert.Equal(t, tt.want, session.FriendAddErrorCode(err))
		})
	}

	_, err = a.AddFriendNoRequest(a.PublicKey())
	assert.Equal(t, session.FriendAddOwnKey, session.FriendAddErrorCode(err))
}

func TestStaleNospamDropsRequest(t *testing.T) {
	h := NewHub()
	a := newNode(t, h, "alice")
	b := newNode(t, h, "bob")

	stale := crypto.NewToxID(b.PublicKey(), [4]byte{1, 2, 3, 4}).String()
	require.NotEqual(t, b.SelfAddress(), stale)
	_, err := a.AddFriend(stale, "hello")
	require.NoError(t, err)

	drain(a)
	assert.Empty(t, drain(b))
}

func TestRequestWaitsForTarget(t *testing.T) {
	h := NewHub()
	a := newNode(t, h, "alice")
	b := newNode(t, h, "bob")
	h.SetOnline(b, false)

	_, err := a.AddFriend(b.SelfAddress(), "hello")
	require.NoError(t, err)
	drain(a)
	assert.Empty(t, drain(b))

	h.SetOnline(b, true)
	drain(a)
	assert.Len(t, drain(b), 1)
}

func TestMessageReceipts(t *testing.T) {
	h := NewHub()
	a := newNode(t, h, "alice")
	b := newNode(t, h, "bob")
	ab, ba := befriend(t, a, b)

	r1, err := a.SendMessage(ab, session.MessageNormal, "hi")
	require.NoError(t, err)
	r2, err := a.SendMessage(ab, session.MessageAction, "waves")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), r1)
	assert.Equal(t, uint32(2), r2)

	assert.Equal(t, []session.Event{
		session.FriendMessage{Friend: ba, Kind: session.MessageNormal, Message: "hi"},
		session.FriendMessage{Friend: ba, Kind: session.MessageAction, Message: "waves"},
	}, drain(b))
	assert.Equal(t, []session.Event{
		session.FriendReadReceipt{Friend: ab, Receipt: 1},
		session.FriendReadReceipt{Friend: ab, Receipt: 2},
	}, drain(a))

	require.NoError(t, a.SetTyping(ab, true))
	assert.Equal(t, []session.Event{session.FriendTyping{Friend: ba, Typing: true}}, drain(b))

	_, err = a.SendMessage(ab, session.MessageNormal, "")
	assert.Error(t, err)
	_, err = a.SendMessage(99, session.MessageNormal, "x")
	assert.ErrorIs(t, err, session.ErrFriendNotFound)

	h.SetOnline(b, false)
	_, err = a.SendMessage(ab, session.MessageNormal, "x")
	assert.ErrorIs(t, err, session.ErrFriendOffline)
}

func TestSelfChangesReachFriends(t *testing.T) {
	h := NewHub()
	a := newNode(t, h, "alice")
	b := newNode(t, h, "bob")
	_, ba := befriend(t, a, b)

	require.NoError(t, a.SetName("alice2"))
	require.NoError(t, a.SetStatusMessage("busy busy"))
	require.NoError(t, a.SetStatus(session.UserStatusBusy))
	assert.Equal(t, []session.Event{
		session.FriendName{Friend: ba, Name: "alice2"},
		session.FriendStatusMessage{Friend: ba, Message: "busy busy"},
		session.FriendUserStatus{Friend: ba, Status: session.UserStatusBusy},
	}, drain(b))
	assert.Equal(t, session.UserStatusBusy, a.SelfStatus())
	assert.Error(t, a.SetStatus(session.UserStatus(9)))
}

func TestFileTransferFlow(t *testing.T) {
	h := NewHub()
	h.FileWindow = 2
	a := newNode(t, h, "alice")
	b := newNode(t, h, "bob")
	ab, ba := befriend(t, a, b)

	file, err := a.FileSend(ab, 4, "notes.txt")
	require.NoError(t, err)
	require.NoError(t, a.FileSendData(ab, file, []byte("ab")))
	require.NoError(t, a.FileSendData(ab, file, []byte("cd")))
	assert.ErrorIs(t, a.FileSendData(ab, file, []byte("ef")), session.ErrBufferFull)

	assert.Equal(t, []session.Event{
		session.FileSendRequest{Friend: ba, File: file, Size: 4, Name: "notes.txt"},
		session.FileData{Friend: ba, File: file, Data: []byte("ab")},
		session.FileData{Friend: ba, File: file, Data: []byte("cd")},
	}, drain(b))
	require.NoError(t, a.FileSendData(ab, file, []byte("ef")), "window reopens after delivery")

	require.NoError(t, b.FileControl(ba, file, false, session.FileControlPause))
	assert.Equal(t, []session.Event{
		session.FileControlReceived{Friend: ab, File: file, Outgoing: true, Control: session.FileControlPause},
	}, drain(a))

	require.NoError(t, a.FileControl(ab, file, true, session.FileControlFinished))
	assert.ErrorIs(t, a.FileSendData(ab, file, []byte("x")), session.ErrFileNotFound)
	assert.ErrorIs(t, b.FileControl(ba, file, false, session.FileControlKill), session.ErrFileNotFound)

	evs := drain(b)
	assert.Equal(t, session.FileControlReceived{Friend: ba, File: file, Outgoing: false, Control: session.FileControlFinished}, evs[len(evs)-1])

	assert.Equal(t, DefaultChunkSize, a.FileDataSize(ab))
	assert.Error(t, a.FileSendData(ab, 42, []byte("x")))
}

func TestDisconnectKillsTransfers(t *testing.T) {
	h := NewHub()
	a := newNode(t, h, "alice")
	b := newNode(t, h, "bob")
	ab, _ := befriend(t, a, b)

	file, err := a.FileSend(ab, 10, "x.bin")
	require.NoError(t, err)
	h.SetOnline(b, false)

	assert.Equal(t, []session.Event{
		session.FriendConnection{Friend: ab, Online: false},
		session.FileControlReceived{Friend: ab, File: file, Outgoing: true, Control: session.FileControlKill},
	}, drain(a))
}

func TestGroupLifecycle(t *testing.T) {
	h := NewHub()
	a := newNode(t, h, "alice")
	b := newNode(t, h, "bob")
	ab, ba := befriend(t, a, b)

	g, err := a.NewGroup()
	require.NoError(t, err)
	assert.Equal(t, []session.Event{
		session.GroupPeerJoin{Group: g, Peer: 0},
		session.GroupPeerName{Group: g, Peer: 0, Name: "alice"},
	}, drain(a))

	require.NoError(t, a.InviteToGroup(ab, g))
	evs := drain(b)
	require.Len(t, evs, 1)
	invite := evs[0].(session.GroupInvite)
	assert.Equal(t, ba, invite.Friend)

	bg, err := b.JoinGroup(ba, invite.Cookie)
	require.NoError(t, err)
	assert.Equal(t, []session.Event{
		session.GroupPeerJoin{Group: g, Peer: 1},
		session.GroupPeerName{Group: g, Peer: 1, Name: "bob"},
	}, drain(a))
	assert.Equal(t, []session.Event{
		session.GroupPeerJoin{Group: bg, Peer: 0},
		session.GroupPeerName{Group: bg, Peer: 0, Name: "alice"},
		session.GroupPeerJoin{Group: bg, Peer: 1},
		session.GroupPeerName{Group: bg, Peer: 1, Name: "bob"},
	}, drain(b))

	again, err := b.JoinGroup(ba, invite.Cookie)
	require.NoError(t, err)
	assert.Equal(t, bg, again)

	require.NoError(t, a.SendGroupMessage(g, session.MessageNormal, "hi all"))
	assert.Equal(t, []session.Event{session.GroupMessage{Group: g, Peer: 0, Message: "hi all"}}, drain(a))
	assert.Equal(t, []session.Event{session.GroupMessage{Group: bg, Peer: 0, Message: "hi all"}}, drain(b))

	require.NoError(t, b.SetName("robert"))
	assert.Contains(t, drain(a), session.GroupPeerName{Group: g, Peer: 1, Name: "robert"})
	drain(b)

	require.NoError(t, b.DeleteGroup(bg))
	assert.Equal(t, []session.Event{session.GroupPeerLeave{Group: g, Peer: 1}}, drain(a))
	assert.ErrorIs(t, b.SendGroupMessage(bg, session.MessageNormal, "x"), session.ErrGroupNotFound)

	_, err = b.JoinGroup(ba, []byte{1, 2})
	assert.ErrorIs(t, err, session.ErrInvalidCookie)
	_, err = b.JoinGroup(ba, []byte{0, 0, 0, 0, 0, 0, 0, 99})
	assert.ErrorIs(t, err, session.ErrInvalidCookie)
}

func TestCallLifecycle(t *testing.T) {
	h := NewHub()
	a := newNode(t, h, "alice")
	b := newNode(t, h, "bob")
	ab, ba := befriend(t, a, b)

	aav, err := a.NewAV(2)
	require.NoError(t, err)
	bav, err := b.NewAV(2)
	require.NoError(t, err)
	_, err = a.NewAV(2)
	assert.Error(t, err)

	id, err := aav.Call(ab)
	require.NoError(t, err)
	assert.Equal(t, session.CallID(0), id)

	assert.Equal(t, []session.Event{session.CallInvite{Call: 0, Friend: ba}}, drain(b))
	assert.Equal(t, []session.Event{session.CallRinging{Call: id, Friend: ab}}, drain(a))

	_, err = aav.PrepareAudioFrame(id, []int16{1})
	assert.ErrorIs(t, err, session.ErrCallNotFound, "no audio before the answer")

	require.NoError(t, bav.Answer(0))
	assert.Equal(t, []session.Event{session.CallStart{Call: id, Friend: ab}}, drain(a))
	assert.Equal(t, []session.Event{session.CallStart{Call: 0, Friend: ba}}, drain(b))

	pcm := []int16{1, -2, 300, -32768, 32767}
	frame, err := aav.PrepareAudioFrame(id, pcm)
	require.NoError(t, err)
	require.NoError(t, aav.SendAudio(id, frame))

	out := make([]int16, 960)
	n, err := bav.ReceiveAudio(0, out)
	require.NoError(t, err)
	assert.Equal(t, pcm, out[:n])
	n, err = bav.ReceiveAudio(0, out)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, bav.Hangup(0))
	assert.Equal(t, []session.Event{session.CallEnd{Call: id, Friend: ab, Reason: session.CallEndHangup}}, drain(a))
	assert.ErrorIs(t, aav.SendAudio(id, frame), session.ErrCallNotFound)
}

func TestCallEndReasons(t *testing.T) {
	tests := []struct {
		name   string
		hangup func(caller, callee session.AV, id session.CallID) error
		want   session.CallEndReason
		// toCaller is true when the caller observes the end.
		toCaller bool
	}{
		{"callee rejects", func(_, callee session.AV, _ session.CallID) error { return callee.Hangup(0) }, session.CallEndRejected, true},
		{"caller cancels", func(caller, _ session.AV, id session.CallID) error { return caller.Hangup(id) }, session.CallEndCancelled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHub()
			a := newNode(t, h, "alice")
			b := newNode(t, h, "bob")
			ab, ba := befriend(t, a, b)
			aav, err := a.NewAV(1)
			require.NoError(t, err)
			bav, err := b.NewAV(1)
			require.NoError(t, err)

			id, err := aav.Call(ab)
			require.NoError(t, err)
			_, err = aav.Call(ab)
			assert.ErrorIs(t, err, session.ErrTooManyCalls)
			drain(b)
			drain(a)

			require.NoError(t, tt.hangup(aav, bav, id))
			if tt.toCaller {
				assert.Equal(t, []session.Event{session.CallEnd{Call: id, Friend: ab, Reason: tt.want}}, drain(a))
			} else {
				assert.Equal(t, []session.Event{session.CallEnd{Call: 0, Friend: ba, Reason: tt.want}}, drain(b))
			}
		})
	}
}

func TestCallEndsOnDisconnect(t *testing.T) {
	h := NewHub()
	a := newNode(t, h, "alice")
	b := newNode(t, h, "bob")
	ab, _ := befriend(t, a, b)
	aav, err := a.NewAV(1)
	require.NoError(t, err)
	_, err = b.NewAV(1)
	require.NoError(t, err)

	id, err := aav.Call(ab)
	require.NoError(t, err)
	h.SetOnline(b, false)

	assert.Equal(t, []session.Event{
		session.FriendConnection{Friend: ab, Online: false},
		session.CallEnd{Call: id, Friend: ab, Reason: session.CallEndTimeout},
	}, drain(a))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	h := NewHub()
	a := newNode(t, h, "alice")
	b := newNode(t, h, "bob")
	c := newNode(t, h, "carol")
	befriend(t, a, b)
	_, err := a.AddFriend(c.SelfAddress(), "pending")
	require.NoError(t, err)
	require.NoError(t, a.SetStatusMessage("here"))

	blob, err := a.Save()
	require.NoError(t, err)

	other := NewHub()
	restored, err := other.NewNode()
	require.NoError(t, err)
	require.NoError(t, restored.Load(blob))

	again, err := restored.Save()
	require.NoError(t, err)
	assert.Equal(t, string(blob), string(again))
	assert.Equal(t, a.SelfAddress(), restored.SelfAddress())
	assert.Equal(t, "alice", restored.SelfName())
	assert.Equal(t, a.FriendList(), restored.FriendList())

	name, err := restored.FriendName(0)
	require.NoError(t, err)
	assert.Equal(t, "bob", name)

	_, ok := other.Node(a.PublicKey())
	assert.True(t, ok)
}

func TestLoadRejectsGarbage(t *testing.T) {
	n, err := NewHub().NewNode()
	require.NoError(t, err)

	for _, data := range []string{"", "{", `{"version":2}`, `{"version":1,"secret_key":"zz"}`} {
		assert.ErrorIs(t, n.Load([]byte(data)), ErrBadState, data)
	}
}

func TestClosedNode(t *testing.T) {
	h := NewHub()
	a := newNode(t, h, "alice")
	b := newNode(t, h, "bob")
	ab, _ := befriend(t, a, b)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.False(t, b.IsConnected())
	assert.ErrorIs(t, b.SetName("x"), session.ErrClosed)
	_, err := b.Save()
	assert.ErrorIs(t, err, session.ErrClosed)

	assert.Equal(t, []session.Event{session.FriendConnection{Friend: ab, Online: false}}, drain(a))
	assert.Error(t, b.Bootstrap(session.BootstrapNode{PublicKey: "bad"}))
}
