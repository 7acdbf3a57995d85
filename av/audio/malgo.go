//go:build cgo

package audio

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"
)

// OpenMalgo opens capture and playback on the system audio backend. A
// missing or failing microphone is logged and leaves Device.Capture nil;
// a failing speaker is an error.
func OpenMalgo(cfg Config) (*Device, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.Voices <= 0 {
		cfg.Voices = 1
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logrus.WithFields(logrus.Fields{
			"function": "OpenMalgo",
			"backend":  strings.TrimSpace(message),
		}).Debug("miniaudio")
	})
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	logDevices(ctx, malgo.Capture, "capture")
	logDevices(ctx, malgo.Playback, "playback")

	out, err := openPlayback(ctx, cfg)
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, err
	}
	out.ctx = ctx

	dev := &Device{Playback: out}
	in, err := openCapture(ctx, cfg)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "OpenMalgo",
			"error":    err.Error(),
		}).Warn("No audio input device, calls will be receive-only")
	} else {
		dev.Capture = in
	}

	logrus.WithFields(logrus.Fields{
		"function":    "OpenMalgo",
		"sample_rate": cfg.SampleRate,
		"voices":      cfg.Voices,
		"capture":     dev.Capture != nil,
	}).Info("Audio device opened")

	return dev, nil
}

func logDevices(ctx *malgo.AllocatedContext, kind malgo.DeviceType, label string) {
	infos, err := ctx.Devices(kind)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "logDevices",
			"kind":     label,
			"error":    err.Error(),
		}).Warn("Enumerating audio devices failed")
		return
	}
	for i, info := range infos {
		logrus.WithFields(logrus.Fields{
			"function": "logDevices",
			"kind":     label,
			"index":    i,
			"name":     info.Name(),
		}).Info("Audio device")
	}
}

func findDevice(ctx *malgo.AllocatedContext, kind malgo.DeviceType, name string) (*malgo.DeviceID, error) {
	if name == "" {
		return nil, nil
	}
	infos, err := ctx.Devices(kind)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.Name() == name {
			id := info.ID
			return &id, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNoDevice, name)
}

type malgoCapture struct {
	dev  *malgo.Device
	ring *ring
}

func openCapture(ctx *malgo.AllocatedContext, cfg Config) (*malgoCapture, error) {
	id, err := findDevice(ctx, malgo.Capture, cfg.CaptureDevice)
	if err != nil {
		return nil, err
	}
	dc := malgo.DefaultDeviceConfig(malgo.Capture)
	dc.Capture.Format = malgo.FormatS16
	dc.Capture.Channels = 1
	dc.SampleRate = uint32(cfg.SampleRate)
	if id != nil {
		dc.Capture.DeviceID = id.Pointer()
	}

	c := &malgoCapture{ring: newRing(cfg.SampleRate)}
	samples := make([]int16, 0, cfg.SampleRate/10)
	cb := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frames uint32) {
			samples = samples[:0]
			for i := 0; i+1 < len(input); i += 2 {
				samples = append(samples, int16(binary.LittleEndian.Uint16(input[i:])))
			}
			c.ring.write(samples)
		},
	}
	dev, err := malgo.InitDevice(ctx.Context, dc, cb)
	if err != nil {
		return nil, fmt.Errorf("init capture: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("start capture: %w", err)
	}
	c.dev = dev
	return c, nil
}

func (c *malgoCapture) Available() int { return c.ring.available() }

func (c *malgoCapture) Read(p []int16) (int, error) { return c.ring.read(p), nil }

func (c *malgoCapture) Close() error {
	c.dev.Uninit()
	return nil
}

type malgoPlayback struct {
	*Mixer
	dev *malgo.Device
	ctx *malgo.AllocatedContext
}

func openPlayback(ctx *malgo.AllocatedContext, cfg Config) (*malgoPlayback, error) {
	id, err := findDevice(ctx, malgo.Playback, cfg.PlaybackDevice)
	if err != nil {
		return nil, err
	}
	dc := malgo.DefaultDeviceConfig(malgo.Playback)
	dc.Playback.Format = malgo.FormatS16
	dc.Playback.Channels = 1
	dc.SampleRate = uint32(cfg.SampleRate)
	if id != nil {
		dc.Playback.DeviceID = id.Pointer()
	}

	p := &malgoPlayback{Mixer: NewMixer(cfg.Voices)}
	var scratch []int16
	cb := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frames uint32) {
			if cap(scratch) < int(frames) {
				scratch = make([]int16, frames)
			}
			scratch = scratch[:frames]
			p.Mix(scratch)
			for i, s := range scratch {
				binary.LittleEndian.PutUint16(output[2*i:], uint16(s))
			}
		},
	}
	dev, err := malgo.InitDevice(ctx.Context, dc, cb)
	if err != nil {
		return nil, fmt.Errorf("init playback: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("start playback: %w", err)
	}
	p.dev = dev
	return p, nil
}

func (p *malgoPlayback) Close() error {
	p.dev.Uninit()
	if p.ctx != nil {
		err := p.ctx.Uninit()
		p.ctx.Free()
		return err
	}
	return nil
}
