package simnet

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient/crypto"
	"github.com/opd-ai/toxclient/limits"
	"github.com/opd-ai/toxclient/session"
)

// MaxFriends bounds a node's friend list.
const MaxFriends = 1 << 16

// AddFriend implements session.Session.
func (n *Node) AddFriend(address, message string) (uint32, error) {
	id, err := crypto.ParseToxID(address)
	if err != nil {
		return 0, &session.FriendAddError{Code: session.FriendAddBadChecksum, Err: err}
	}
	if message == "" {
		return 0, &session.FriendAddError{Code: session.FriendAddNoMessage}
	}
	if len(message) > limits.MaxFriendRequestLength {
		return 0, &session.FriendAddError{Code: session.FriendAddTooLong}
	}

	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	if n.closed {
		return 0, session.ErrClosed
	}
	if id.PublicKey == n.keys.Public {
		return 0, &session.FriendAddError{Code: session.FriendAddOwnKey}
	}
	if num, ok := n.friendNumber(id.PublicKey); ok {
		l := n.friends[num]
		if l.nospam != id.Nospam {
			l.nospam = id.Nospam
			return num, &session.FriendAddError{Code: session.FriendAddSetNewNospam}
		}
		return num, &session.FriendAddError{Code: session.FriendAddAlreadySent}
	}
	if len(n.friends) >= MaxFriends {
		return 0, &session.FriendAddError{Code: session.FriendAddNoMem}
	}

	l := newLink(id.PublicKey)
	l.nospam = id.Nospam
	l.request = message
	l.requesting = true
	num := n.allocFriend(l)

	logrus.WithFields(logrus.Fields{
		"function": "Node.AddFriend",
		"friend":   num,
	}).Debug("Friend request queued")
	return num, nil
}

// AddFriendNoRequest implements session.Session.
func (n *Node) AddFriendNoRequest(publicKey [32]byte) (uint32, error) {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	if n.closed {
		return 0, session.ErrClosed
	}
	if publicKey == n.keys.Public {
		return 0, &session.FriendAddError{Code: session.FriendAddOwnKey}
	}
	if num, ok := n.friendNumber(publicKey); ok {
		return num, &session.FriendAddError{Code: session.FriendAddAlreadySent}
	}
	if len(n.friends) >= MaxFriends {
		return 0, &session.FriendAddError{Code: session.FriendAddNoMem}
	}
	return n.allocFriend(newLink(publicKey)), nil
}

// DeleteFriend implements session.Session. Calls with the friend end
// without an event.
func (n *Node) DeleteFriend(friend uint32) error {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	if _, err := n.link(friend); err != nil {
		return err
	}
	if n.av != nil {
		n.av.dropFriend(friend, session.CallEndHangup)
	}
	delete(n.friends, friend)
	return nil
}

// FriendList implements session.Session.
func (n *Node) FriendList() []uint32 {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	return n.friendNumbers()
}

// FriendPublicKey implements session.Session.
func (n *Node) FriendPublicKey(friend uint32) ([32]byte, error) {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	l, err := n.link(friend)
	if err != nil {
		return [32]byte{}, err
	}
	return l.key, nil
}

// FriendName implements session.Session. It is the last name seen while the
// friend was online.
func (n *Node) FriendName(friend uint32) (string, error) {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	l, err := n.link(friend)
	if err != nil {
		return "", err
	}
	return l.name, nil
}

// FriendStatusMessage implements session.Session.
func (n *Node) FriendStatusMessage(friend uint32) (string, error) {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	l, err := n.link(friend)
	if err != nil {
		return "", err
	}
	return l.statusMessage, nil
}

// SendMessage implements session.Session. The receipt is acknowledged with a
// FriendReadReceipt once the friend has iterated.
func (n *Node) SendMessage(friend uint32, kind session.MessageKind, message string) (uint32, error) {
	if err := limits.ValidateMessage(message); err != nil {
		return 0, err
	}
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	l, err := n.link(friend)
	if err != nil {
		return 0, err
	}
	p, back, ok := n.hub.reachable(n, l)
	if !ok {
		return 0, fmt.Errorf("send message to %d: %w", friend, session.ErrFriendOffline)
	}
	l.lastReceipt++
	p.inbox = append(p.inbox, envelope{
		ev:      session.FriendMessage{Friend: back, Kind: kind, Message: message},
		from:    n,
		receipt: l.lastReceipt,
	})
	return l.lastReceipt, nil
}
