// Package control implements the command channel from the UI goroutine to the
// network goroutine.
//
// The channel is a bounded single-producer/single-consumer queue. Post blocks
// while the queue is full, which gives the UI natural backpressure; the network
// goroutine drains at most one command per loop iteration so that protocol
// work is never starved by a burst of input.
package control

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultDepth is the queue depth used when New is given a non-positive depth.
// A depth of one reproduces the single-slot mailbox: a new command can only be
// posted once the previous one has been taken.
const DefaultDepth = 1

// ErrClosed is returned by Post after Close.
var ErrClosed = errors.New("control channel closed")

// Channel carries Commands in post order, each delivered exactly once.
type Channel struct {
	slots     chan Command
	closed    chan struct{}
	closeOnce sync.Once
}

// New creates a channel holding at most depth pending commands.
func New(depth int) *Channel {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Channel{
		slots:  make(chan Command, depth),
		closed: make(chan struct{}),
	}
}

// Post publishes cmd, blocking until there is room. It returns ctx.Err() if ctx
// ends first and ErrClosed once the consumer has shut down.
func (c *Channel) Post(ctx context.Context, cmd Command) error {
	if cmd == nil {
		return errors.New("nil command")
	}

	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	select {
	case c.slots <- cmd:
		logrus.WithFields(logrus.Fields{
			"function": "Channel.Post",
			"op":       cmd.Op(),
		}).Debug("Command posted")
		return nil
	case <-c.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain takes at most one pending command and passes it to handle. It never
// blocks and reports whether a command was handled. Only the network goroutine
// may call it.
func (c *Channel) Drain(handle func(Command)) bool {
	select {
	case cmd := <-c.slots:
		handle(cmd)
		return true
	default:
		return false
	}
}

// Pending returns the number of queued commands.
func (c *Channel) Pending() int {
	return len(c.slots)
}

// Close stops accepting commands. Commands already queued are discarded by the
// consumer's shutdown.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}
