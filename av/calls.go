package av

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient/session"
)

// ErrSlotRange is returned for a call id outside the table.
var ErrSlotRange = errors.New("call id out of range")

type slot struct {
	active atomic.Bool
	peer   atomic.Uint32
}

// Calls is a fixed table of call slots indexed by call id. Activate and
// Deactivate belong to the network goroutine; the query methods may be used
// from any goroutine.
type Calls struct {
	slots []slot
}

// NewCalls creates a table with max slots.
func NewCalls(max int) *Calls {
	if max < 1 {
		max = 1
	}
	return &Calls{slots: make([]slot, max)}
}

// Len returns the number of slots.
func (c *Calls) Len() int { return len(c.slots) }

// Activate marks call id as carrying audio with peer.
func (c *Calls) Activate(id session.CallID, peer uint32) error {
	s, err := c.slot(id)
	if err != nil {
		return err
	}
	s.peer.Store(peer)
	s.active.Store(true)

	logrus.WithFields(logrus.Fields{
		"function": "Calls.Activate",
		"call_id":  id,
		"peer":     peer,
	}).Info("Call slot active")
	return nil
}

// Deactivate clears call id. It reports whether the slot was active.
func (c *Calls) Deactivate(id session.CallID) bool {
	s, err := c.slot(id)
	if err != nil {
		return false
	}
	was := s.active.Swap(false)
	if was {
		logrus.WithFields(logrus.Fields{
			"function": "Calls.Deactivate",
			"call_id":  id,
		}).Info("Call slot inactive")
	}
	return was
}

// DeactivateAll clears every slot.
func (c *Calls) DeactivateAll() {
	for i := range c.slots {
		c.slots[i].active.Store(false)
	}
}

// Active reports whether call id carries audio.
func (c *Calls) Active(id session.CallID) bool {
	s, err := c.slot(id)
	return err == nil && s.active.Load()
}

// Peer returns the peer of an active call.
func (c *Calls) Peer(id session.CallID) (uint32, bool) {
	s, err := c.slot(id)
	if err != nil || !s.active.Load() {
		return 0, false
	}
	return s.peer.Load(), true
}

// ActiveCount returns the number of active slots.
func (c *Calls) ActiveCount() int {
	n := 0
	for i := range c.slots {
		if c.slots[i].active.Load() {
			n++
		}
	}
	return n
}

func (c *Calls) slot(id session.CallID) (*slot, error) {
	if id < 0 || int(id) >= len(c.slots) {
		return nil, fmt.Errorf("%w: %d", ErrSlotRange, id)
	}
	return &c.slots[id], nil
}
