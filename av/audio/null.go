package audio

import (
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient/session"
)

// OpenNull returns a device that needs no hardware. Capture produces a
// 440 Hz tone paced by the wall clock; playback drains its mixer every
// period and discards the result.
func OpenNull(cfg Config) *Device {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.Voices <= 0 {
		cfg.Voices = 1
	}

	logrus.WithFields(logrus.Fields{
		"function":    "OpenNull",
		"sample_rate": cfg.SampleRate,
		"voices":      cfg.Voices,
	}).Info("Opening null audio device")

	return &Device{
		Capture:  NewToneCapture(cfg.SampleRate, 440, time.Now),
		Playback: newNullPlayback(cfg.SampleRate, cfg.Voices, 20*time.Millisecond),
	}
}

// ToneCapture is a Capture producing a sine wave at a fixed rate.
type ToneCapture struct {
	mu       sync.Mutex
	rate     int
	freq     float64
	now      func() time.Time
	start    time.Time
	consumed int64
	closed   bool
}

// NewToneCapture creates a tone source. now is the clock that paces it.
func NewToneCapture(rate int, freq float64, now func() time.Time) *ToneCapture {
	return &ToneCapture{rate: rate, freq: freq, now: now, start: now()}
}

// Available implements Capture. At most one second of audio is pending.
func (c *ToneCapture) Available() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}
	produced := int64(c.now().Sub(c.start)) * int64(c.rate) / int64(time.Second)
	if produced-c.consumed > int64(c.rate) {
		c.consumed = produced - int64(c.rate)
	}
	return int(produced - c.consumed)
}

// Read implements Capture.
func (c *ToneCapture) Read(p []int16) (int, error) {
	n := c.Available()
	if n > len(p) {
		n = len(p)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < n; i++ {
		t := float64(c.consumed+int64(i)) / float64(c.rate)
		p[i] = int16(8000 * math.Sin(2*math.Pi*c.freq*t))
	}
	c.consumed += int64(n)
	return n, nil
}

// Close implements Capture.
func (c *ToneCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type nullPlayback struct {
	*Mixer
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func newNullPlayback(rate, voices int, period time.Duration) *nullPlayback {
	p := &nullPlayback{
		Mixer: NewMixer(voices),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go p.drain(session.FrameSamples(rate, period), period)
	return p
}

func (p *nullPlayback) drain(samples int, period time.Duration) {
	defer close(p.done)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	scratch := make([]int16, samples)
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.Mix(scratch)
		}
	}
}

func (p *nullPlayback) Close() error {
	p.once.Do(func() { close(p.stop) })
	<-p.done
	return nil
}
