package audio

import "errors"

// ErrNoDevice is returned when the requested hardware is not available.
var ErrNoDevice = errors.New("audio device not available")

// Capture is a source of recorded samples.
type Capture interface {
	// Available returns the number of samples that can be read without
	// blocking.
	Available() int
	// Read copies up to len(p) samples into p.
	Read(p []int16) (int, error)
	Close() error
}

// Voice is one playback queue.
type Voice interface {
	// Processed returns the number of queued buffers that finished playing.
	Processed() int
	// Unqueue removes and returns one processed buffer, or nil.
	Unqueue() []int16
	// Queue appends buf to the play queue. The voice owns buf until it is
	// returned by Unqueue.
	Queue(buf []int16)
	Playing() bool
	Play()
}

// Playback is a set of voices mixed onto one output.
type Playback interface {
	NumVoices() int
	Voice(i int) Voice
	Close() error
}

// Config selects the device format.
type Config struct {
	SampleRate int
	Voices     int
	// CaptureDevice and PlaybackDevice pick devices by name. Empty selects
	// the system default.
	CaptureDevice  string
	PlaybackDevice string
}

// Device bundles the capture and playback ends. Capture is nil when no
// microphone could be opened.
type Device struct {
	Capture  Capture
	Playback Playback
}

// Close closes both ends. It returns the first error.
func (d *Device) Close() error {
	var err error
	if d.Capture != nil {
		err = d.Capture.Close()
	}
	if d.Playback != nil {
		if perr := d.Playback.Close(); err == nil {
			err = perr
		}
	}
	return err
}
