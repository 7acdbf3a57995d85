// Package config loads the client's TOML configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient/crypto"
	"github.com/opd-ai/toxclient/limits"
	"github.com/opd-ai/toxclient/session"
)

const (
	// DefaultName is the profile name of a fresh identity.
	DefaultName = "Tox User"
	// DefaultStatusMessage is the status message of a fresh identity.
	DefaultStatusMessage = "Toxing on toxclient"
	// DefaultMaxCalls is the size of the call table.
	DefaultMaxCalls = 64
	// DefaultSaveInterval is how often the session is persisted.
	DefaultSaveInterval = 10 * time.Second
	// DefaultHistoryLimit is the number of messages restored per friend.
	DefaultHistoryLimit = 100
	// DefaultSaveWorkFactor is the scrypt log2 cost of an encrypted save.
	// Saves run on the network goroutine, so it is below age's default.
	DefaultSaveWorkFactor = 15
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Duration is a time.Duration that reads and writes as "10s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the client configuration.
type Config struct {
	SaveFile       string   `toml:"save_file"`
	DownloadDir    string   `toml:"download_dir"`
	HistoryDB      string   `toml:"history_db"` // empty disables history
	HistoryLimit   int      `toml:"history_limit"`
	SaveInterval   Duration `toml:"save_interval"`
	MaxCalls       int      `toml:"max_calls"`
	LogLevel       string   `toml:"log_level"`
	LogFile        string   `toml:"log_file"`
	EncryptSave    bool     `toml:"encrypt_save"`
	SaveWorkFactor int      `toml:"save_work_factor"`
	ResumeOnAccept bool     `toml:"resume_on_accept"`

	Profile   ProfileConfig     `toml:"profile"`
	Audio     AudioConfig       `toml:"audio"`
	Bootstrap []BootstrapConfig `toml:"bootstrap"`
}

// ProfileConfig seeds a fresh identity.
type ProfileConfig struct {
	Name          string `toml:"name"`
	StatusMessage string `toml:"status_message"`
}

// AudioConfig selects the audio backend.
type AudioConfig struct {
	Enabled         bool   `toml:"enabled"`
	Backend         string `toml:"backend"` // "malgo" or "null"
	SampleRate      int    `toml:"sample_rate"`
	FrameDurationMS int    `toml:"frame_duration_ms"`
	CaptureDevice   string `toml:"capture_device,omitempty"`
	PlaybackDevice  string `toml:"playback_device,omitempty"`
}

// FrameDuration returns the configured frame length.
func (a AudioConfig) FrameDuration() time.Duration {
	return time.Duration(a.FrameDurationMS) * time.Millisecond
}

// BootstrapConfig is one bootstrap node.
type BootstrapConfig struct {
	Address   string `toml:"address"`
	Port      uint16 `toml:"port"`
	PublicKey string `toml:"public_key"`
}

// Default returns the configuration used when no file exists. Paths are
// rooted at baseDir.
func Default(baseDir string) *Config {
	return &Config{
		SaveFile:       filepath.Join(baseDir, "tox_save"),
		DownloadDir:    filepath.Join(baseDir, "downloads"),
		HistoryDB:      filepath.Join(baseDir, "history.db"),
		HistoryLimit:   DefaultHistoryLimit,
		SaveInterval:   Duration{DefaultSaveInterval},
		MaxCalls:       DefaultMaxCalls,
		SaveWorkFactor: DefaultSaveWorkFactor,
		LogLevel:       "info",
		Profile: ProfileConfig{
			Name:          DefaultName,
			StatusMessage: DefaultStatusMessage,
		},
		Audio: AudioConfig{
			Enabled:         true,
			Backend:         "malgo",
			SampleRate:      session.DefaultSampleRate,
			FrameDurationMS: int(session.DefaultFrameDuration / time.Millisecond),
		},
	}
}

// Read decodes r over the defaults for baseDir, so keys absent from r keep
// their default values.
func Read(r io.Reader, baseDir string) (*Config, error) {
	cfg := Default(baseDir)
	meta, err := toml.NewDecoder(r).Decode(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	for _, key := range meta.Undecoded() {
		logrus.WithFields(logrus.Fields{
			"function": "config.Read",
			"key":      key.String(),
		}).Warn("Ignoring unknown configuration key")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads the file at path. A missing file yields the defaults for the
// file's directory.
func Load(path string) (*Config, error) {
	baseDir := filepath.Dir(path)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logrus.WithFields(logrus.Fields{
				"function": "config.Load",
				"path":     path,
			}).Info("No config file, using defaults")
			return Default(baseDir), nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	cfg, err := Read(f, baseDir)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Write encodes cfg to w.
func Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// WriteFile writes cfg to path, creating its directory.
func WriteFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if err := Write(f, cfg); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Validate checks ranges and formats.
func (c *Config) Validate() error {
	var problems []string
	if c.SaveFile == "" {
		problems = append(problems, "save_file is empty")
	}
	if c.SaveInterval.Duration <= 0 {
		problems = append(problems, "save_interval must be positive")
	}
	if c.SaveWorkFactor < 10 || c.SaveWorkFactor > 22 {
		problems = append(problems, "save_work_factor must be between 10 and 22")
	}
	if c.MaxCalls < 1 {
		problems = append(problems, "max_calls must be at least 1")
	}
	if c.HistoryLimit < 0 {
		problems = append(problems, "history_limit must not be negative")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, fmt.Sprintf("log_level: %v", err))
	}
	if err := limits.ValidateName(c.Profile.Name); err != nil {
		problems = append(problems, fmt.Sprintf("profile.name: %v", err))
	}
	if err := limits.ValidateStatusMessage(c.Profile.StatusMessage); err != nil {
		problems = append(problems, fmt.Sprintf("profile.status_message: %v", err))
	}
	if c.Audio.Enabled {
		switch c.Audio.Backend {
		case "malgo", "null":
		default:
			problems = append(problems, fmt.Sprintf("audio.backend %q is not malgo or null", c.Audio.Backend))
		}
		if c.Audio.SampleRate <= 0 {
			problems = append(problems, "audio.sample_rate must be positive")
		}
		if c.Audio.FrameDurationMS <= 0 {
			problems = append(problems, "audio.frame_duration_ms must be positive")
		}
	}
	for i, b := range c.Bootstrap {
		if b.Address == "" || b.Port == 0 {
			problems = append(problems, fmt.Sprintf("bootstrap[%d]: address and port are required", i))
		}
		if _, err := crypto.ParsePublicKey(b.PublicKey); err != nil {
			problems = append(problems, fmt.Sprintf("bootstrap[%d].public_key: %v", i, err))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// BootstrapNodes returns the configured nodes, or the built-in list when
// none are configured.
func (c *Config) BootstrapNodes() []session.BootstrapNode {
	if len(c.Bootstrap) == 0 {
		return session.DefaultBootstrapNodes
	}
	nodes := make([]session.BootstrapNode, 0, len(c.Bootstrap))
	for _, b := range c.Bootstrap {
		nodes = append(nodes, session.BootstrapNode{
			Address:   b.Address,
			Port:      b.Port,
			PublicKey: strings.ToUpper(b.PublicKey),
		})
	}
	return nodes
}
