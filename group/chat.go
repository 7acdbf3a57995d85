package group

import (
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// UnknownPeerName is the placeholder shown until a peer announces a name.
const UnknownPeerName = "<unknown>"

// Message is one line in a group conversation.
type Message struct {
	Peer   uint32
	Author string
	Action bool
	Text   string
	Time   time.Time
}

// Chat is a group the client belongs to.
type Chat struct {
	ID       uint32
	Name     string
	Topic    string
	Messages []Message

	peers map[uint32]string
}

// NewChat creates the record for session group number id.
func NewChat(id uint32) *Chat {
	c := &Chat{
		ID:    id,
		Name:  fmt.Sprintf("Groupchat #%d", id),
		peers: make(map[uint32]string),
	}
	c.updateTopic()
	return c
}

// PeerCount returns the number of known peers.
func (c *Chat) PeerCount() int {
	return len(c.peers)
}

// PeerName returns the display name of peer, if present.
func (c *Chat) PeerName(peer uint32) (string, bool) {
	name, ok := c.peers[peer]
	return name, ok
}

// PeerJoined inserts peer with the placeholder name. A peer that is already
// present keeps its slot but loses its name.
func (c *Chat) PeerJoined(peer uint32) {
	c.setPeer(peer, UnknownPeerName)
}

// PeerRenamed sets the name of peer, inserting it if it was not known.
func (c *Chat) PeerRenamed(peer uint32, name string) {
	c.setPeer(peer, name)
}

func (c *Chat) setPeer(peer uint32, name string) {
	_, existed := c.peers[peer]
	c.peers[peer] = name
	c.updateTopic()

	logrus.WithFields(logrus.Fields{
		"function": "Chat.setPeer",
		"group":    c.ID,
		"peer":     peer,
		"existed":  existed,
		"peers":    len(c.peers),
	}).Debug("Group peer updated")
}

// PeerLeft removes peer. It reports whether the peer was present.
func (c *Chat) PeerLeft(peer uint32) bool {
	if _, ok := c.peers[peer]; !ok {
		return false
	}
	delete(c.peers, peer)
	c.updateTopic()
	return true
}

// AppendMessage records a message from peer. The author is resolved at
// receive time so later renames do not rewrite history.
func (c *Chat) AppendMessage(peer uint32, text string, action bool, at time.Time) Message {
	author, ok := c.peers[peer]
	if !ok {
		author = UnknownPeerName
	}
	m := Message{Peer: peer, Author: author, Action: action, Text: text, Time: at}
	c.Messages = append(c.Messages, m)
	return m
}

func (c *Chat) updateTopic() {
	c.Topic = fmt.Sprintf("%d users in chat", len(c.peers))
}

// PeerView is one entry of View.Peers.
type PeerView struct {
	Number uint32
	Name   string
}

// View is an immutable copy of a Chat.
type View struct {
	ID       uint32
	Name     string
	Topic    string
	Peers    []PeerView
	Messages []Message
}

// Snapshot copies c with peers ordered by peer number.
func (c *Chat) Snapshot() View {
	peers := make([]PeerView, 0, len(c.peers))
	for n, name := range c.peers {
		peers = append(peers, PeerView{Number: n, Name: name})
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].Number < peers[j].Number })

	msgs := make([]Message, len(c.Messages))
	copy(msgs, c.Messages)

	return View{
		ID:       c.ID,
		Name:     c.Name,
		Topic:    c.Topic,
		Peers:    peers,
		Messages: msgs,
	}
}
