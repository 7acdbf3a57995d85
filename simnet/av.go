package simnet

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient/session"
)

// ErrNoAV is returned when calling a friend whose node has no call support.
var ErrNoAV = errors.New("friend has no call support")

type callState uint8

const (
	callOutgoing callState = iota
	callIncoming
	callActive
)

// call is one end of a call. All fields are guarded by Hub.avMu.
type call struct {
	id     session.CallID
	friend uint32
	state  callState
	owner  *AV
	remote *call
	ended  bool
	frames [][]byte
}

// AV implements session.AV for a Node.
type AV struct {
	node   *Node
	slots  []*call
	closed bool
}

var _ session.AV = (*AV)(nil)

// NewAV implements session.Session.
func (n *Node) NewAV(maxCalls int) (session.AV, error) {
	if maxCalls <= 0 {
		return nil, fmt.Errorf("invalid call slot count %d", maxCalls)
	}
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	if n.closed {
		return nil, session.ErrClosed
	}
	if n.av != nil && !n.av.closed {
		return nil, errors.New("call subsystem already created")
	}
	n.av = &AV{node: n, slots: make([]*call, maxCalls)}
	return n.av, nil
}

// free returns the lowest free slot or -1. avMu must be held.
func (a *AV) free() session.CallID {
	for i, c := range a.slots {
		if c == nil {
			return session.CallID(i)
		}
	}
	return -1
}

func (a *AV) slot(id session.CallID) (*call, error) {
	if a.closed {
		return nil, session.ErrClosed
	}
	if id < 0 || int(id) >= len(a.slots) || a.slots[id] == nil {
		return nil, fmt.Errorf("%w: %d", session.ErrCallNotFound, id)
	}
	return a.slots[id], nil
}

// Call implements session.AV.
func (a *AV) Call(friend uint32) (session.CallID, error) {
	h := a.node.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	l, err := a.node.link(friend)
	if err != nil {
		return -1, err
	}
	p, back, ok := h.reachable(a.node, l)
	if !ok {
		return -1, session.ErrFriendOffline
	}
	if p.av == nil || p.av.closed {
		return -1, ErrNoAV
	}

	h.avMu.Lock()
	defer h.avMu.Unlock()
	if a.closed {
		return -1, session.ErrClosed
	}
	mine, theirs := a.free(), p.av.free()
	if mine < 0 || theirs < 0 {
		return -1, session.ErrTooManyCalls
	}
	out := &call{id: mine, friend: friend, state: callOutgoing, owner: a}
	in := &call{id: theirs, friend: back, state: callIncoming, owner: p.av}
	out.remote, in.remote = in, out
	a.slots[mine] = out
	p.av.slots[theirs] = in

	p.inbox = append(p.inbox, envelope{
		ev:   session.CallInvite{Call: theirs, Friend: back},
		from: a.node,
		ring: out,
	})

	logrus.WithFields(logrus.Fields{
		"function": "AV.Call",
		"friend":   friend,
		"call":     mine,
	}).Debug("Call invite sent")
	return mine, nil
}

// Answer implements session.AV.
func (a *AV) Answer(id session.CallID) error {
	h := a.node.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	h.avMu.Lock()
	defer h.avMu.Unlock()
	c, err := a.slot(id)
	if err != nil {
		return err
	}
	if c.state != callIncoming {
		return fmt.Errorf("%w: call %d is not ringing", session.ErrCallNotFound, id)
	}
	c.state, c.remote.state = callActive, callActive
	a.node.inbox = append(a.node.inbox, envelope{ev: session.CallStart{Call: c.id, Friend: c.friend}})
	r := c.remote
	r.owner.node.inbox = append(r.owner.node.inbox, envelope{ev: session.CallStart{Call: r.id, Friend: r.friend}})
	return nil
}

// Hangup implements session.AV. The peer sees the call end as rejected,
// cancelled or hung up depending on how far it got.
func (a *AV) Hangup(id session.CallID) error {
	h := a.node.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	h.avMu.Lock()
	defer h.avMu.Unlock()
	c, err := a.slot(id)
	if err != nil {
		return err
	}
	reason := session.CallEndHangup
	switch c.state {
	case callIncoming:
		reason = session.CallEndRejected
	case callOutgoing:
		reason = session.CallEndCancelled
	}
	end(c, reason)
	return nil
}

// end frees both ends of c and tells the remote side. h.mu and h.avMu must be
// held.
func end(c *call, reason session.CallEndReason) {
	c.ended = true
	c.owner.slots[c.id] = nil
	r := c.remote
	if r.ended {
		return
	}
	r.ended = true
	r.owner.slots[r.id] = nil
	if n := r.owner.node; !n.closed {
		n.inbox = append(n.inbox, envelope{ev: session.CallEnd{Call: r.id, Friend: r.friend, Reason: reason}})
	}
}

// dropFriend ends every call with friend and returns local CallEnd events.
// h.mu must be held.
func (a *AV) dropFriend(friend uint32, reason session.CallEndReason) []envelope {
	h := a.node.hub
	h.avMu.Lock()
	defer h.avMu.Unlock()
	var out []envelope
	for _, c := range a.slots {
		if c == nil || c.friend != friend {
			continue
		}
		end(c, reason)
		out = append(out, envelope{ev: session.CallEnd{Call: c.id, Friend: friend, Reason: reason}})
	}
	return out
}

// PrepareAudioFrame implements session.AV.
func (a *AV) PrepareAudioFrame(id session.CallID, pcm []int16) ([]byte, error) {
	h := a.node.hub
	h.avMu.Lock()
	c, err := a.slot(id)
	if err == nil && c.state != callActive {
		err = fmt.Errorf("%w: call %d not active", session.ErrCallNotFound, id)
	}
	h.avMu.Unlock()
	if err != nil {
		return nil, err
	}
	return h.codec.Encode(pcm)
}

// SendAudio implements session.AV. The remote queue drops its oldest frame
// when full.
func (a *AV) SendAudio(id session.CallID, frame []byte) error {
	h := a.node.hub
	h.avMu.Lock()
	defer h.avMu.Unlock()
	c, err := a.slot(id)
	if err != nil {
		return err
	}
	if c.state != callActive || c.remote.ended {
		return fmt.Errorf("%w: call %d not active", session.ErrCallNotFound, id)
	}
	r := c.remote
	r.frames = append(r.frames, append([]byte(nil), frame...))
	if over := len(r.frames) - h.AudioQueue; over > 0 {
		r.frames = r.frames[over:]
	}
	return nil
}

// ReceiveAudio implements session.AV.
func (a *AV) ReceiveAudio(id session.CallID, pcm []int16) (int, error) {
	h := a.node.hub
	h.avMu.Lock()
	c, err := a.slot(id)
	var frame []byte
	if err == nil && len(c.frames) > 0 {
		frame = c.frames[0]
		c.frames = c.frames[1:]
	}
	h.avMu.Unlock()
	if err != nil || frame == nil {
		return 0, err
	}
	return h.codec.Decode(frame, pcm)
}

// Close implements session.AV. Live calls end as hung up.
func (a *AV) Close() error {
	h := a.node.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	a.close()
	return nil
}

// close requires h.mu.
func (a *AV) close() {
	h := a.node.hub
	h.avMu.Lock()
	defer h.avMu.Unlock()
	if a.closed {
		return
	}
	for _, c := range a.slots {
		if c != nil {
			end(c, session.CallEndHangup)
		}
	}
	a.closed = true
}
