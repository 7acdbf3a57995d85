package simnet

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/opd-ai/toxclient/limits"
	"github.com/opd-ai/toxclient/session"
)

// CookieSize is the length of a group invite cookie.
const CookieSize = 8

type member struct {
	// group is the member's local number for the group.
	group uint32
	peer  uint32
}

type simGroup struct {
	id       uint64
	members  map[*Node]*member
	nextPeer uint32
}

// sorted returns the members in peer number order.
func (g *simGroup) sorted() []*Node {
	nodes := make([]*Node, 0, len(g.members))
	for n := range g.members {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		return g.members[nodes[i]].peer < g.members[nodes[j]].peer
	})
	return nodes
}

func (g *simGroup) cookie() []byte {
	c := make([]byte, CookieSize)
	binary.BigEndian.PutUint64(c, g.id)
	return c
}

// NewGroup implements session.Session. The creator sees itself join.
func (n *Node) NewGroup() (uint32, error) {
	h := n.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if n.closed {
		return 0, session.ErrClosed
	}
	g := &simGroup{id: h.nextGID, members: make(map[*Node]*member)}
	h.nextGID++
	h.groups[g.id] = g
	return n.join(g), nil
}

// join adds n to g and announces every membership change. h.mu must be held.
func (n *Node) join(g *simGroup) uint32 {
	var local uint32
	for {
		if _, used := n.groups[local]; !used {
			break
		}
		local++
	}
	m := &member{group: local, peer: g.nextPeer}
	g.nextPeer++

	for _, o := range g.sorted() {
		om := g.members[o]
		o.inbox = append(o.inbox,
			envelope{ev: session.GroupPeerJoin{Group: om.group, Peer: m.peer}},
			envelope{ev: session.GroupPeerName{Group: om.group, Peer: m.peer, Name: n.name}},
		)
		n.inbox = append(n.inbox,
			envelope{ev: session.GroupPeerJoin{Group: local, Peer: om.peer}},
			envelope{ev: session.GroupPeerName{Group: local, Peer: om.peer, Name: o.name}},
		)
	}
	g.members[n] = m
	n.groups[local] = g
	n.inbox = append(n.inbox,
		envelope{ev: session.GroupPeerJoin{Group: local, Peer: m.peer}},
		envelope{ev: session.GroupPeerName{Group: local, Peer: m.peer, Name: n.name}},
	)
	return local
}

// DeleteGroup implements session.Session.
func (n *Node) DeleteGroup(group uint32) error {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	if n.closed {
		return session.ErrClosed
	}
	if _, ok := n.groups[group]; !ok {
		return fmt.Errorf("%w: %d", session.ErrGroupNotFound, group)
	}
	n.leaveGroup(group)
	return nil
}

// leaveGroup removes n from its group number group. h.mu must be held.
func (n *Node) leaveGroup(group uint32) {
	g := n.groups[group]
	m := g.members[n]
	delete(n.groups, group)
	delete(g.members, n)
	for _, o := range g.sorted() {
		o.inbox = append(o.inbox, envelope{ev: session.GroupPeerLeave{Group: g.members[o].group, Peer: m.peer}})
	}
	if len(g.members) == 0 {
		delete(n.hub.groups, g.id)
	}
}

// InviteToGroup implements session.Session.
func (n *Node) InviteToGroup(friend, group uint32) error {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	l, err := n.link(friend)
	if err != nil {
		return err
	}
	g, ok := n.groups[group]
	if !ok {
		return fmt.Errorf("%w: %d", session.ErrGroupNotFound, group)
	}
	p, back, ok := n.hub.reachable(n, l)
	if !ok {
		return session.ErrFriendOffline
	}
	p.inbox = append(p.inbox, envelope{ev: session.GroupInvite{Friend: back, Cookie: g.cookie()}})
	return nil
}

// JoinGroup implements session.Session. Joining a group twice returns the
// existing group number.
func (n *Node) JoinGroup(friend uint32, cookie []byte) (uint32, error) {
	h := n.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := n.link(friend); err != nil {
		return 0, err
	}
	if len(cookie) != CookieSize {
		return 0, session.ErrInvalidCookie
	}
	g, ok := h.groups[binary.BigEndian.Uint64(cookie)]
	if !ok {
		return 0, session.ErrInvalidCookie
	}
	if m, ok := g.members[n]; ok {
		return m.group, nil
	}
	return n.join(g), nil
}

// SendGroupMessage implements session.Session. The sender receives its own
// message.
func (n *Node) SendGroupMessage(group uint32, kind session.MessageKind, message string) error {
	if err := limits.ValidateMessage(message); err != nil {
		return err
	}
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	if n.closed {
		return session.ErrClosed
	}
	g, ok := n.groups[group]
	if !ok {
		return fmt.Errorf("%w: %d", session.ErrGroupNotFound, group)
	}
	self := g.members[n]
	for _, o := range g.sorted() {
		o.inbox = append(o.inbox, envelope{ev: session.GroupMessage{
			Group: g.members[o].group, Peer: self.peer, Kind: kind, Message: message,
		}})
	}
	return nil
}

func (n *Node) groupNumbers() []uint32 {
	nums := make([]uint32, 0, len(n.groups))
	for num := range n.groups {
		nums = append(nums, num)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums
}
