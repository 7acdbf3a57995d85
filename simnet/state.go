package simnet

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opd-ai/toxclient/crypto"
	"github.com/opd-ai/toxclient/session"
)

// stateVersion is written into every save.
const stateVersion = 1

// ErrBadState is returned by Load for data it cannot parse.
var ErrBadState = errors.New("malformed session state")

type savedFriend struct {
	Number        uint32             `json:"number"`
	PublicKey     string             `json:"public_key"`
	Nospam        string             `json:"nospam"`
	Name          string             `json:"name"`
	StatusMessage string             `json:"status_message"`
	Status        session.UserStatus `json:"status"`
	Request       string             `json:"request,omitempty"`
}

type savedState struct {
	Version       int                `json:"version"`
	SecretKey     string             `json:"secret_key"`
	Nospam        string             `json:"nospam"`
	Name          string             `json:"name"`
	StatusMessage string             `json:"status_message"`
	Status        session.UserStatus `json:"status"`
	Friends       []savedFriend      `json:"friends"`
}

// Save implements session.Session. Friends are written in number order and
// pending friend requests are kept.
func (n *Node) Save() ([]byte, error) {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	if n.closed {
		return nil, session.ErrClosed
	}
	st := savedState{
		Version:       stateVersion,
		SecretKey:     hex.EncodeToString(n.keys.Private[:]),
		Nospam:        hex.EncodeToString(n.nospam[:]),
		Name:          n.name,
		StatusMessage: n.statusMessage,
		Status:        n.status,
		Friends:       []savedFriend{},
	}
	for _, num := range n.friendNumbers() {
		l := n.friends[num]
		sf := savedFriend{
			Number:        num,
			PublicKey:     crypto.PublicKeyString(l.key),
			Nospam:        hex.EncodeToString(l.nospam[:]),
			Name:          l.name,
			StatusMessage: l.statusMessage,
			Status:        l.status,
		}
		if l.requesting {
			sf.Request = l.request
		}
		st.Friends = append(st.Friends, sf)
	}
	return json.Marshal(st)
}

// Load implements session.Session. It replaces the identity and friend list;
// groups are left and calls end.
func (n *Node) Load(data []byte) error {
	var st savedState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("%w: %v", ErrBadState, err)
	}
	if st.Version != stateVersion {
		return fmt.Errorf("%w: version %d", ErrBadState, st.Version)
	}
	var secret [32]byte
	if err := decodeHex(st.SecretKey, secret[:]); err != nil {
		return fmt.Errorf("%w: secret key: %v", ErrBadState, err)
	}
	keys, err := crypto.FromSecretKey(secret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadState, err)
	}
	var nospam [4]byte
	if err := decodeHex(st.Nospam, nospam[:]); err != nil {
		return fmt.Errorf("%w: nospam: %v", ErrBadState, err)
	}

	friends := make(map[uint32]*link, len(st.Friends))
	for _, sf := range st.Friends {
		key, err := crypto.ParsePublicKey(sf.PublicKey)
		if err != nil {
			return fmt.Errorf("%w: friend %d: %v", ErrBadState, sf.Number, err)
		}
		l := newLink(key)
		if err := decodeHex(sf.Nospam, l.nospam[:]); err != nil {
			return fmt.Errorf("%w: friend %d nospam: %v", ErrBadState, sf.Number, err)
		}
		l.name, l.statusMessage, l.status = sf.Name, sf.StatusMessage, sf.Status
		if sf.Request != "" {
			l.request, l.requesting = sf.Request, true
		}
		if _, dup := friends[sf.Number]; dup {
			return fmt.Errorf("%w: duplicate friend %d", ErrBadState, sf.Number)
		}
		friends[sf.Number] = l
	}

	h := n.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if n.closed {
		return session.ErrClosed
	}
	if n.av != nil {
		for num := range n.friends {
			n.av.dropFriend(num, session.CallEndHangup)
		}
	}
	for _, num := range n.groupNumbers() {
		n.leaveGroup(num)
	}
	if h.nodes[n.keys.Public] == n {
		delete(h.nodes, n.keys.Public)
	}
	n.keys = keys
	n.nospam = nospam
	h.nodes[keys.Public] = n
	n.name, n.statusMessage, n.status = st.Name, st.StatusMessage, st.Status
	n.friends = friends
	n.inbox = nil
	return nil
}

func decodeHex(s string, dst []byte) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != len(dst) {
		return fmt.Errorf("want %d bytes, got %d", len(dst), len(b))
	}
	copy(dst, b)
	return nil
}
