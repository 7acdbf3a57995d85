package simnet

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient/av/audio"
	"github.com/opd-ai/toxclient/crypto"
	"github.com/opd-ai/toxclient/session"
)

// Defaults for a new Hub.
const (
	DefaultInterval   = 20 * time.Millisecond
	DefaultChunkSize  = 1024
	DefaultFileWindow = 32
	DefaultAudioQueue = 50
)

// Hub is the shared medium between nodes.
type Hub struct {
	mu    sync.Mutex
	avMu  sync.Mutex
	nodes map[[32]byte]*Node
	// offline holds nodes the hub refuses to connect.
	offline map[*Node]bool
	groups  map[uint64]*simGroup
	nextGID uint64
	codec   *audio.Codec

	// Interval is reported by Node.IterationInterval.
	Interval time.Duration
	// ChunkSize is reported by Node.FileDataSize.
	ChunkSize int
	// FileWindow is the number of chunks that may be in flight per link.
	FileWindow int
	// AudioQueue is the number of frames buffered per call before the oldest
	// is dropped.
	AudioQueue int
}

// NewHub creates an empty network.
func NewHub() *Hub {
	return &Hub{
		nodes:      make(map[[32]byte]*Node),
		offline:    make(map[*Node]bool),
		groups:     make(map[uint64]*simGroup),
		nextGID:    1,
		codec:      audio.NewCodec(session.DefaultSampleRate),
		Interval:   DefaultInterval,
		ChunkSize:  DefaultChunkSize,
		FileWindow: DefaultFileWindow,
		AudioQueue: DefaultAudioQueue,
	}
}

// NewNode creates a node with a fresh identity.
func (h *Hub) NewNode() (*Node, error) {
	keys, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	n := &Node{
		hub:     h,
		keys:    keys,
		nospam:  crypto.GenerateNospam(),
		friends: make(map[uint32]*link),
		groups:  make(map[uint32]*simGroup),
	}

	h.mu.Lock()
	h.nodes[keys.Public] = n
	h.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "Hub.NewNode",
		"public_key": keys.Public[:8],
	}).Debug("Simulated node created")

	return n, nil
}

// SetOnline connects or disconnects n from the network. Nodes start online.
func (h *Hub) SetOnline(n *Node, online bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if online {
		delete(h.offline, n)
	} else {
		h.offline[n] = true
	}
}

// Node returns the node with the given public key.
func (h *Hub) Node(key [32]byte) (*Node, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, ok := h.nodes[key]
	return n, ok
}

// connected reports whether n can talk to the network. h.mu must be held.
func (h *Hub) connected(n *Node) bool {
	return n != nil && !n.closed && n.bootstrapped && !h.offline[n]
}

// peer returns the live node behind l. h.mu must be held.
func (h *Hub) peer(l *link) *Node {
	n := h.nodes[l.key]
	if n == nil || n.closed {
		return nil
	}
	return n
}

// reachable returns the peer of n's link l when the two are connected
// friends. h.mu must be held.
func (h *Hub) reachable(n *Node, l *link) (*Node, uint32, bool) {
	if !h.connected(n) {
		return nil, 0, false
	}
	p := h.peer(l)
	if !h.connected(p) {
		return nil, 0, false
	}
	back, ok := p.friendNumber(n.keys.Public)
	if !ok {
		return nil, 0, false
	}
	return p, back, true
}

var _ session.Session = (*Node)(nil)
