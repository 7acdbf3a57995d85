package simnet

import (
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient/crypto"
	"github.com/opd-ai/toxclient/limits"
	"github.com/opd-ai/toxclient/session"
)

// envelope is a queued event plus the bookkeeping that happens when it is
// delivered.
type envelope struct {
	ev   session.Event
	from *Node
	// credit returns a file window slot to from.
	credit bool
	// receipt is acknowledged to from.
	receipt uint32
	// ring is the caller's end of a call whose invite this is.
	ring *call
}

type fileState struct {
	size uint64
	name string
}

// link is one friend list entry.
type link struct {
	key           [32]byte
	nospam        [4]byte
	name          string
	statusMessage string
	status        session.UserStatus
	online        bool

	request    string
	requesting bool

	lastReceipt uint32
	inflight    int
	nextFile    uint32
	out         map[uint32]*fileState
	in          map[uint32]*fileState
}

func newLink(key [32]byte) *link {
	return &link{
		key: key,
		out: make(map[uint32]*fileState),
		in:  make(map[uint32]*fileState),
	}
}

// Node is one participant on a Hub.
type Node struct {
	hub *Hub

	keys          *crypto.KeyPair
	nospam        [4]byte
	name          string
	statusMessage string
	status        session.UserStatus
	bootstrapped  bool
	closed        bool

	friends map[uint32]*link
	groups  map[uint32]*simGroup
	inbox   []envelope
	av      *AV
}

// PublicKey returns the node's long-term public key.
func (n *Node) PublicKey() [32]byte {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	return n.keys.Public
}

// Iterate implements session.Session.
func (n *Node) Iterate(handler session.EventHandler) {
	h := n.hub
	h.mu.Lock()
	if n.closed {
		h.mu.Unlock()
		return
	}
	pending := n.refreshLinks()
	n.sendRequests()
	pending = append(pending, n.inbox...)
	n.inbox = nil
	for _, env := range pending {
		n.settle(env)
	}
	h.mu.Unlock()

	for _, env := range pending {
		handler.HandleEvent(env.ev)
	}
}

// refreshLinks reports connection changes since the last Iterate.
func (n *Node) refreshLinks() []envelope {
	var out []envelope
	for _, num := range n.friendNumbers() {
		l := n.friends[num]
		p, _, ok := n.hub.reachable(n, l)
		if ok == l.online {
			continue
		}
		l.online = ok
		out = append(out, envelope{ev: session.FriendConnection{Friend: num, Online: ok}})
		if ok {
			l.name, l.statusMessage, l.status = p.name, p.statusMessage, p.status
			out = append(out,
				envelope{ev: session.FriendName{Friend: num, Name: p.name}},
				envelope{ev: session.FriendStatusMessage{Friend: num, Message: p.statusMessage}},
				envelope{ev: session.FriendUserStatus{Friend: num, Status: p.status}},
			)
			continue
		}

		out = append(out, n.killTransfers(num, l)...)
		if n.av != nil {
			out = append(out, n.av.dropFriend(num, session.CallEndTimeout)...)
		}
	}
	return out
}

func (n *Node) killTransfers(num uint32, l *link) []envelope {
	var out []envelope
	for _, file := range sortedFiles(l.out) {
		out = append(out, envelope{ev: session.FileControlReceived{
			Friend: num, File: file, Outgoing: true, Control: session.FileControlKill,
		}})
	}
	for _, file := range sortedFiles(l.in) {
		out = append(out, envelope{ev: session.FileControlReceived{
			Friend: num, File: file, Outgoing: false, Control: session.FileControlKill,
		}})
	}
	l.out = make(map[uint32]*fileState)
	l.in = make(map[uint32]*fileState)
	l.inflight = 0
	return out
}

// sendRequests delivers pending friend requests to reachable targets.
func (n *Node) sendRequests() {
	h := n.hub
	if !h.connected(n) {
		return
	}
	for _, num := range n.friendNumbers() {
		l := n.friends[num]
		if !l.requesting {
			continue
		}
		target := h.peer(l)
		if !h.connected(target) {
			continue
		}
		l.requesting = false
		if _, ok := target.friendNumber(n.keys.Public); ok {
			continue
		}
		if target.nospam != l.nospam {
			logrus.WithFields(logrus.Fields{
				"function": "Node.sendRequests",
				"friend":   num,
			}).Debug("Friend request dropped: stale nospam")
			continue
		}
		target.inbox = append(target.inbox, envelope{ev: session.FriendRequest{
			PublicKey: n.keys.Public,
			Message:   l.request,
		}})
	}
}

// settle performs delivery side effects for env. h.mu must be held.
func (n *Node) settle(env envelope) {
	from := env.from
	if from == nil || from.closed {
		return
	}
	num, ok := from.friendNumber(n.keys.Public)
	if !ok {
		return
	}
	if env.credit {
		if l := from.friends[num]; l.inflight > 0 {
			l.inflight--
		}
	}
	if env.receipt != 0 {
		from.inbox = append(from.inbox, envelope{ev: session.FriendReadReceipt{Friend: num, Receipt: env.receipt}})
	}
	if env.ring != nil {
		n.hub.avMu.Lock()
		if !env.ring.ended && env.ring.state == callOutgoing {
			from.inbox = append(from.inbox, envelope{ev: session.CallRinging{Call: env.ring.id, Friend: env.ring.friend}})
		}
		n.hub.avMu.Unlock()
	}
}

// IterationInterval implements session.Session.
func (n *Node) IterationInterval() time.Duration {
	return n.hub.Interval
}

// IsConnected implements session.Session.
func (n *Node) IsConnected() bool {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	return n.hub.connected(n)
}

// Bootstrap implements session.Session. Any node with a well-formed key is
// accepted.
func (n *Node) Bootstrap(node session.BootstrapNode) error {
	if _, err := crypto.ParsePublicKey(node.PublicKey); err != nil {
		return fmt.Errorf("bootstrap %s:%d: %w", node.Address, node.Port, err)
	}
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	if n.closed {
		return session.ErrClosed
	}
	n.bootstrapped = true
	return nil
}

// Close implements session.Session.
func (n *Node) Close() error {
	h := n.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if n.closed {
		return nil
	}
	if n.av != nil {
		n.av.close()
	}
	for _, num := range n.groupNumbers() {
		n.leaveGroup(num)
	}
	n.closed = true
	n.keys.Wipe()
	n.inbox = nil
	return nil
}

// SelfAddress implements session.Session.
func (n *Node) SelfAddress() string {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	return crypto.NewToxID(n.keys.Public, n.nospam).String()
}

// SelfName implements session.Session.
func (n *Node) SelfName() string {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	return n.name
}

// SetName implements session.Session.
func (n *Node) SetName(name string) error {
	if err := limits.ValidateName(name); err != nil {
		return err
	}
	h := n.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if n.closed {
		return session.ErrClosed
	}
	n.name = name
	n.broadcast(func(back uint32) session.Event {
		return session.FriendName{Friend: back, Name: name}
	})
	for _, num := range n.groupNumbers() {
		g := n.groups[num]
		self := g.members[n]
		for _, o := range g.sorted() {
			o.inbox = append(o.inbox, envelope{ev: session.GroupPeerName{
				Group: g.members[o].group, Peer: self.peer, Name: name,
			}})
		}
	}
	return nil
}

// SelfStatusMessage implements session.Session.
func (n *Node) SelfStatusMessage() string {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	return n.statusMessage
}

// SetStatusMessage implements session.Session.
func (n *Node) SetStatusMessage(message string) error {
	if err := limits.ValidateStatusMessage(message); err != nil {
		return err
	}
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	if n.closed {
		return session.ErrClosed
	}
	n.statusMessage = message
	n.broadcast(func(back uint32) session.Event {
		return session.FriendStatusMessage{Friend: back, Message: message}
	})
	return nil
}

// SelfStatus implements session.Session.
func (n *Node) SelfStatus() session.UserStatus {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	return n.status
}

// SetStatus implements session.Session.
func (n *Node) SetStatus(status session.UserStatus) error {
	if status > session.UserStatusBusy {
		return fmt.Errorf("invalid user status %d", status)
	}
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	if n.closed {
		return session.ErrClosed
	}
	n.status = status
	n.broadcast(func(back uint32) session.Event {
		return session.FriendUserStatus{Friend: back, Status: status}
	})
	return nil
}

// SetTyping implements session.Session.
func (n *Node) SetTyping(friend uint32, typing bool) error {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	l, err := n.link(friend)
	if err != nil {
		return err
	}
	p, back, ok := n.hub.reachable(n, l)
	if !ok {
		return session.ErrFriendOffline
	}
	p.inbox = append(p.inbox, envelope{ev: session.FriendTyping{Friend: back, Typing: typing}})
	return nil
}

// broadcast queues an event for every reachable friend. h.mu must be held.
func (n *Node) broadcast(build func(back uint32) session.Event) {
	for _, num := range n.friendNumbers() {
		if p, back, ok := n.hub.reachable(n, n.friends[num]); ok {
			p.inbox = append(p.inbox, envelope{ev: build(back)})
		}
	}
}

func (n *Node) link(friend uint32) (*link, error) {
	if n.closed {
		return nil, session.ErrClosed
	}
	l, ok := n.friends[friend]
	if !ok {
		return nil, fmt.Errorf("%w: %d", session.ErrFriendNotFound, friend)
	}
	return l, nil
}

func (n *Node) friendNumber(key [32]byte) (uint32, bool) {
	for num, l := range n.friends {
		if l.key == key {
			return num, true
		}
	}
	return 0, false
}

func (n *Node) friendNumbers() []uint32 {
	nums := make([]uint32, 0, len(n.friends))
	for num := range n.friends {
		nums = append(nums, num)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums
}

// allocFriend stores l under the lowest free friend number.
func (n *Node) allocFriend(l *link) uint32 {
	var num uint32
	for {
		if _, used := n.friends[num]; !used {
			break
		}
		num++
	}
	n.friends[num] = l
	return num
}

func sortedFiles(m map[uint32]*fileState) []uint32 {
	files := make([]uint32, 0, len(m))
	for f := range m {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i] < files[j] })
	return files
}
