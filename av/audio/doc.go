// Package audio provides the audio devices used by live calls.
//
// A Device bundles a Capture (microphone) and a Playback (speaker). Playback
// is a Mixer of Voices: every active call owns one voice and the call loop
// queues decoded frames on it, reusing buffers the device has finished with.
// All audio is mono signed 16-bit PCM at the configured sample rate.
//
// Two devices are provided. OpenMalgo opens the system's default devices
// through miniaudio; it needs cgo. OpenNull never touches hardware: its
// capture produces a test tone and its playback discards audio in real time.
//
// Frames on the wire are produced by Codec.
package audio
