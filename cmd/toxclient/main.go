// Command toxclient is a line-oriented Tox client.
//
// The client runs on an in-process simulated network. With --echo (the
// default) the network also hosts an echo peer that accepts friend requests,
// repeats messages and plays call audio back.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/opd-ai/toxclient"
	"github.com/opd-ai/toxclient/av/audio"
	"github.com/opd-ai/toxclient/config"
	"github.com/opd-ai/toxclient/history"
	"github.com/opd-ai/toxclient/savedata"
	"github.com/opd-ai/toxclient/simnet"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// options holds the flag values that override the config file.
type options struct {
	dir      string
	config   string
	logLevel string
	logFile  string
	name     string
	noAudio  bool
	echo     bool
}

var opts options

var rootCmd = &cobra.Command{
	Use:          "toxclient",
	Short:        "Terminal Tox client",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, opts)
		if err != nil {
			return err
		}
		closeLog, err := setupLogging(cfg)
		if err != nil {
			return err
		}
		defer closeLog()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg, opts)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath(opts)
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
		if err := config.WriteFile(path, config.Default(opts.dir)); err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, opts)
		if err != nil {
			return err
		}
		return config.Write(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&opts.dir, "dir", "d", defaultDir(), "Profile directory")
	rootCmd.PersistentFlags().StringVarP(&opts.config, "config", "c", "", "Config file (default <dir>/config.toml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "Log file (default <dir>/toxclient.log)")
	rootCmd.PersistentFlags().StringVar(&opts.name, "name", "", "Profile name for a new identity")
	rootCmd.Flags().BoolVar(&opts.noAudio, "no-audio", false, "Disable call audio")
	rootCmd.Flags().BoolVar(&opts.echo, "echo", true, "Run an echo peer on the simulated network")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func defaultDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ".toxclient"
	}
	return filepath.Join(base, "toxclient")
}

func configPath(o options) string {
	if o.config != "" {
		return o.config
	}
	return filepath.Join(o.dir, "config.toml")
}

// loadConfig reads the config file and applies the flags that were set.
func loadConfig(cmd *cobra.Command, o options) (*config.Config, error) {
	cfg, err := config.Load(configPath(o))
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("log-file") {
		cfg.LogFile = o.logFile
	}
	if flags.Changed("name") {
		cfg.Profile.Name = o.name
	}
	if o.noAudio {
		cfg.Audio.Enabled = false
	}
	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(o.dir, "toxclient.log")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging points logrus at the configured file. The terminal belongs to
// the UI, so logs never go to stderr while it runs.
func setupLogging(cfg *config.Config) (func(), error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(level)

	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logrus.SetOutput(f)
	return func() { f.Close() }, nil
}

// readPassphrase prompts on the controlling terminal.
func readPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("encrypt_save needs a terminal to read the passphrase")
	}
	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	if len(pass) == 0 {
		return "", errors.New("empty passphrase")
	}
	return string(pass), nil
}

// openAudio opens the configured backend. A malgo failure falls back to the
// null device so calls still work without hardware.
func openAudio(cfg *config.Config) *audio.Device {
	if !cfg.Audio.Enabled {
		return nil
	}
	acfg := audio.Config{
		SampleRate:     cfg.Audio.SampleRate,
		Voices:         cfg.MaxCalls,
		CaptureDevice:  cfg.Audio.CaptureDevice,
		PlaybackDevice: cfg.Audio.PlaybackDevice,
	}
	if cfg.Audio.Backend == "null" {
		return audio.OpenNull(acfg)
	}
	dev, err := audio.OpenMalgo(acfg)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "openAudio",
			"error":    err.Error(),
		}).Warn("Opening audio hardware failed, using null device")
		return audio.OpenNull(acfg)
	}
	return dev
}

func run(ctx context.Context, cfg *config.Config, o options) error {
	if err := os.MkdirAll(o.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	store := &savedata.Store{Path: cfg.SaveFile, WorkFactor: cfg.SaveWorkFactor}
	if cfg.EncryptSave {
		pass, err := readPassphrase("Profile passphrase: ")
		if err != nil {
			return err
		}
		store.Passphrase = pass
	}

	hub := simnet.NewHub()
	node, err := hub.NewNode()
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}

	var peer *echoPeer
	if o.echo {
		peer, err = newEchoPeer(hub, &savedata.Store{Path: filepath.Join(o.dir, "echo_save")})
		if err != nil {
			return err
		}
	}

	var hist *history.Store
	if cfg.HistoryDB != "" {
		hist, err = history.Open(cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer hist.Close()
	}

	// The audio loop owns dev once the client exists.
	dev := openAudio(cfg)

	client, err := toxclient.New(toxclient.Options{
		Config:  cfg,
		Session: node,
		Store:   store,
		History: hist,
		Audio:   dev,
	})
	if err != nil {
		if dev != nil {
			dev.Close()
		}
		if peer != nil {
			peer.node.Close()
		}
		node.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if peer != nil {
		go peer.Run(ctx)
	}
	go client.Run(ctx)

	tui, err := newTerminalUI(client, peer)
	if err != nil {
		cancel()
		<-client.Done()
		return err
	}
	uerr := tui.Run(ctx)
	tui.Close()

	client.Stop()
	<-client.Done()
	if peer != nil {
		cancel()
		<-peer.Done()
	}
	return uerr
}
