package dispatch

import (
	"context"
	"errors"
	"io"

	"github.com/opd-ai/toxclient/history"
	"github.com/opd-ai/toxclient/notify"
	"github.com/opd-ai/toxclient/session"
)

type controlCall struct {
	friend, file uint32
	outgoing     bool
	control      session.FileControl
}

type fakeFiles struct {
	calls []controlCall
	fail  bool
}

func (f *fakeFiles) FileControl(friend, file uint32, outgoing bool, control session.FileControl) error {
	f.calls = append(f.calls, controlCall{friend, file, outgoing, control})
	if f.fail {
		return errors.New("control failed")
	}
	return nil
}

type fakeCalls struct {
	hungUp []session.CallID
}

func (c *fakeCalls) Hangup(call session.CallID) error {
	c.hungUp = append(c.hungUp, call)
	return nil
}

type fakeRecorder struct {
	entries []history.Entry
}

func (r *fakeRecorder) Append(_ context.Context, e history.Entry) (history.Entry, error) {
	r.entries = append(r.entries, e)
	return e, nil
}

type recordingSink struct {
	got []notify.Notification
}

func (s *recordingSink) Notify(n notify.Notification) { s.got = append(s.got, n) }

func (s *recordingSink) kinds() []notify.Kind {
	out := make([]notify.Kind, len(s.got))
	for i, n := range s.got {
		out[i] = n.Kind
	}
	return out
}

func (s *recordingSink) last() notify.Notification {
	return s.got[len(s.got)-1]
}

var errDiskFull = errors.New("disk full")

// brokenStorage creates files that refuse every write.
type brokenStorage struct{}

func (brokenStorage) Open(string) (io.ReadCloser, error) { return nil, errDiskFull }

func (brokenStorage) Create(string) (io.WriteCloser, error) { return brokenWriter{}, nil }

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errDiskFull }
func (brokenWriter) Close() error              { return nil }
