package av

import (
	"errors"
	"sync"

	"github.com/opd-ai/toxclient/session"
)

// fakeTransport records frames per call and serves queued inbound frames.
type fakeTransport struct {
	mu       sync.Mutex
	sent     map[session.CallID]int
	inbound  map[session.CallID][][]int16
	failSend bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		sent:    make(map[session.CallID]int),
		inbound: make(map[session.CallID][][]int16),
	}
}

func (f *fakeTransport) PrepareAudioFrame(call session.CallID, pcm []int16) ([]byte, error) {
	return make([]byte, len(pcm)*2), nil
}

func (f *fakeTransport) SendAudio(call session.CallID, frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return errors.New("send failed")
	}
	f.sent[call]++
	return nil
}

func (f *fakeTransport) ReceiveAudio(call session.CallID, pcm []int16) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.inbound[call]
	if len(q) == 0 {
		return 0, nil
	}
	f.inbound[call] = q[1:]
	return copy(pcm, q[0]), nil
}

func (f *fakeTransport) sentTo(call session.CallID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[call]
}

func (f *fakeTransport) push(call session.CallID, pcm []int16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbound[call] = append(f.inbound[call], pcm)
}

// steadyCapture always has a frame ready.
type steadyCapture struct {
	mu     sync.Mutex
	closed bool
}

func (c *steadyCapture) Available() int { return 1 << 20 }

func (c *steadyCapture) Read(p []int16) (int, error) {
	for i := range p {
		p[i] = int16(i)
	}
	return len(p), nil
}

func (c *steadyCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *steadyCapture) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
