package transfer

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// Status is the state of a transfer.
type Status uint8

const (
	// SendPending means an outgoing file waits for the peer to accept.
	SendPending Status = iota
	// Sending means chunks are being pushed.
	Sending
	// SendPaused means the outgoing file is paused.
	SendPaused
	// Receiving means data is being written as it arrives.
	Receiving
	// ReceivePaused means the incoming file is paused.
	ReceivePaused
	// Finished is terminal: all data moved.
	Finished
	// Killed is terminal: cancelled by either side.
	Killed
)

var statusNames = map[Status]string{
	SendPending:   "pending",
	Sending:       "sending",
	SendPaused:    "send paused",
	Receiving:     "receiving",
	ReceivePaused: "receive paused",
	Finished:      "finished",
	Killed:        "killed",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// Terminal reports whether s is Finished or Killed.
func (s Status) Terminal() bool {
	return s == Finished || s == Killed
}

// Key identifies a transfer. File numbers are only unique per friend and
// direction.
type Key struct {
	Friend   uint32
	File     uint32
	Outgoing bool
}

func (k Key) String() string {
	dir := "in"
	if k.Outgoing {
		dir = "out"
	}
	return fmt.Sprintf("%d/%d/%s", k.Friend, k.File, dir)
}

// TimeProvider abstracts time for deterministic tests.
type TimeProvider interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// DefaultTimeProvider uses the wall clock.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// Since returns the duration since t.
func (DefaultTimeProvider) Since(t time.Time) time.Duration { return time.Since(t) }

var defaultTimeProvider TimeProvider = DefaultTimeProvider{}

// Transfer is one file moving between the client and a friend. Only the
// Manager mutates it.
type Transfer struct {
	key         Key
	name        string
	size        uint64
	status      Status
	transferred uint64
	started     time.Time

	reader io.ReadCloser
	writer io.WriteCloser

	// outgoing only
	buf []byte
	n   int
	eof bool
}

// Key returns the transfer's identity.
func (t *Transfer) Key() Key { return t.key }

// Status returns the current state.
func (t *Transfer) Status() Status { return t.status }

// Transferred returns the number of bytes sent or written so far.
func (t *Transfer) Transferred() uint64 { return t.transferred }

// Open reports whether the storage handle is held.
func (t *Transfer) Open() bool { return t.reader != nil || t.writer != nil }

// fill reads the next chunk into buf. A short read marks EOF.
func (t *Transfer) fill() error {
	n, err := io.ReadFull(t.reader, t.buf)
	t.n = n
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		t.eof = true
		return nil
	default:
		return fmt.Errorf("read chunk: %w", err)
	}
}

// release closes the storage handle and drops the buffer. Safe to call more
// than once.
func (t *Transfer) release() {
	var err error
	if t.reader != nil {
		err = t.reader.Close()
		t.reader = nil
	}
	if t.writer != nil {
		err = t.writer.Close()
		t.writer = nil
	}
	t.buf = nil
	t.n = 0

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Transfer.release",
			"transfer": t.key.String(),
			"error":    err.Error(),
		}).Warn("Closing transfer storage failed")
	}
}

// View is an immutable copy of a transfer for display.
type View struct {
	Key         Key
	Name        string
	Size        uint64
	Transferred uint64
	Status      Status
	Elapsed     time.Duration
}

// Progress returns the completed fraction in [0,1].
func (v View) Progress() float64 {
	if v.Size == 0 {
		if v.Status == Finished {
			return 1
		}
		return 0
	}
	p := float64(v.Transferred) / float64(v.Size)
	if p > 1 {
		p = 1
	}
	return p
}

func (t *Transfer) view(tp TimeProvider) View {
	return View{
		Key:         t.key,
		Name:        t.name,
		Size:        t.size,
		Transferred: t.transferred,
		Status:      t.status,
		Elapsed:     tp.Since(t.started),
	}
}
