package av

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient/av/audio"
	"github.com/opd-ai/toxclient/session"
)

// Transport is the audio half of session.AV.
type Transport interface {
	PrepareAudioFrame(call session.CallID, pcm []int16) ([]byte, error)
	SendAudio(call session.CallID, frame []byte) error
	ReceiveAudio(call session.CallID, pcm []int16) (int, error)
}

// LoopConfig wires a Loop.
type LoopConfig struct {
	Transport Transport
	Calls     *Calls
	// Capture may be nil; the loop then only receives.
	Capture  audio.Capture
	Playback audio.Playback
	// Running is shared with the owner. The loop exits once it reads false.
	// A nil Running gets a private flag that only Stop clears.
	Running *atomic.Bool

	SampleRate    int
	FrameDuration time.Duration
	// Yield is the pause between iterations.
	Yield time.Duration
}

// Loop is the audio goroutine.
type Loop struct {
	cfg     LoopConfig
	running *atomic.Bool
	frame   int
	in      []int16
	out     []int16
	done    chan struct{}

	// frame counters, reported at teardown
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewLoop prepares a loop. Call Run on its own goroutine.
func NewLoop(cfg LoopConfig) *Loop {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = session.DefaultSampleRate
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = session.DefaultFrameDuration
	}
	if cfg.Yield <= 0 {
		cfg.Yield = time.Millisecond
	}
	running := cfg.Running
	if running == nil {
		running = &atomic.Bool{}
		running.Store(true)
	}
	frame := session.FrameSamples(cfg.SampleRate, cfg.FrameDuration)
	return &Loop{
		cfg:     cfg,
		running: running,
		frame:   frame,
		in:      make([]int16, frame),
		out:     make([]int16, frame),
		done:    make(chan struct{}),
	}
}

// FrameSamples returns the number of samples per frame.
func (l *Loop) FrameSamples() int { return l.frame }

// Done is closed after Run has released the devices.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Stop clears the running flag. Run returns within one iteration.
func (l *Loop) Stop() { l.running.Store(false) }

// Run loops until the running flag is cleared, then closes the devices and
// Done.
func (l *Loop) Run() {
	logrus.WithFields(logrus.Fields{
		"function":      "Loop.Run",
		"frame_samples": l.frame,
		"sample_rate":   l.cfg.SampleRate,
		"capture":       l.cfg.Capture != nil,
	}).Info("Audio loop started")

	defer close(l.done)
	defer l.teardown()

	for l.running.Load() {
		l.step()
		time.Sleep(l.cfg.Yield)
	}
}

func (l *Loop) step() {
	if l.cfg.Capture != nil && l.cfg.Capture.Available() >= l.frame {
		if n, err := l.cfg.Capture.Read(l.in); err != nil || n < l.frame {
			logrus.WithFields(logrus.Fields{
				"function": "Loop.step",
				"samples":  n,
				"error":    errString(err),
			}).Debug("Short capture read")
		} else {
			l.transmit()
		}
	}
	l.receive()
}

func (l *Loop) transmit() {
	for i := 0; i < l.cfg.Calls.Len(); i++ {
		id := session.CallID(i)
		if !l.cfg.Calls.Active(id) {
			continue
		}
		frame, err := l.cfg.Transport.PrepareAudioFrame(id, l.in)
		if err != nil {
			l.drop("prepare", id, err)
			continue
		}
		if err := l.cfg.Transport.SendAudio(id, frame); err != nil {
			l.drop("send", id, err)
			continue
		}
		l.sent.Add(1)
	}
}

func (l *Loop) receive() {
	for i := 0; i < l.cfg.Calls.Len(); i++ {
		id := session.CallID(i)
		if !l.cfg.Calls.Active(id) {
			continue
		}
		n, err := l.cfg.Transport.ReceiveAudio(id, l.out)
		if err != nil {
			l.drop("receive", id, err)
			continue
		}
		if n <= 0 || l.cfg.Playback == nil {
			continue
		}
		l.play(id, l.out[:n])
	}
}

// play queues pcm on the call's voice, reusing a processed buffer when one
// is available.
func (l *Loop) play(id session.CallID, pcm []int16) {
	voice := l.cfg.Playback.Voice(int(id) % l.cfg.Playback.NumVoices())
	var buf []int16
	if voice.Processed() > 0 {
		buf = voice.Unqueue()
	}
	if cap(buf) < len(pcm) {
		buf = make([]int16, len(pcm))
	}
	buf = buf[:len(pcm)]
	copy(buf, pcm)
	voice.Queue(buf)
	if !voice.Playing() {
		voice.Play()
	}
}

func (l *Loop) drop(stage string, id session.CallID, err error) {
	l.dropped.Add(1)
	logrus.WithFields(logrus.Fields{
		"function": "Loop." + stage,
		"call_id":  id,
		"error":    err.Error(),
	}).Debug("Audio frame dropped")
}

func (l *Loop) teardown() {
	if l.cfg.Capture != nil {
		if err := l.cfg.Capture.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Loop.teardown",
				"error":    err.Error(),
			}).Warn("Closing capture device failed")
		}
	}
	if l.cfg.Playback != nil {
		if err := l.cfg.Playback.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Loop.teardown",
				"error":    err.Error(),
			}).Warn("Closing playback device failed")
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "Loop.teardown",
		"sent":     l.sent.Load(),
		"dropped":  l.dropped.Load(),
	}).Info("Audio loop stopped")
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
