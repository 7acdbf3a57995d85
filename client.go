package toxclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"

	"github.com/opd-ai/toxclient/av"
	"github.com/opd-ai/toxclient/av/audio"
	"github.com/opd-ai/toxclient/config"
	"github.com/opd-ai/toxclient/control"
	"github.com/opd-ai/toxclient/dispatch"
	"github.com/opd-ai/toxclient/friend"
	"github.com/opd-ai/toxclient/history"
	"github.com/opd-ai/toxclient/notify"
	"github.com/opd-ai/toxclient/savedata"
	"github.com/opd-ai/toxclient/session"
	"github.com/opd-ai/toxclient/transfer"
)

var (
	// ErrNoSession is returned by New when Options.Session is nil.
	ErrNoSession = errors.New("no session")
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("client already running")
	// ErrUnknownRequest is reported for an AcceptFriend naming no pending
	// request and carrying no public key.
	ErrUnknownRequest = errors.New("unknown friend request")
)

// Options wires a Client. Only Session is required.
type Options struct {
	Config  *config.Config
	Session session.Session
	// Store persists the session blob. Nil disables persistence.
	Store *savedata.Store
	// History logs friend messages. Nil disables the chat log.
	History *history.Store
	// Storage opens transferred files. It defaults to the download directory.
	Storage transfer.Storage
	// Audio is the device pair for calls. Nil runs without an audio loop.
	Audio *audio.Device
	// Sink receives notifications in addition to Notifications(). It sees
	// events only; redraws are signalled on Notifications().Wake().
	Sink notify.Sink
	// CommandDepth is the control channel depth.
	CommandDepth int
	// Now replaces the clock, for tests.
	Now func() time.Time
}

// Client is the session core: it owns the network goroutine (Run), the
// application model and the audio goroutine.
type Client struct {
	cfg     *config.Config
	sess    session.Session
	av      session.AV
	store   *savedata.Store
	history *history.Store
	now     func() time.Time

	model      *dispatch.Model
	dispatcher *dispatch.Dispatcher
	transfers  *transfer.Manager
	calls      *av.Calls
	loop       *av.Loop

	commands *control.Channel
	queue    *notify.Queue
	sink     notify.Sink

	running  atomic.Bool
	started  atomic.Bool
	snapshot atomic.Pointer[dispatch.Snapshot]
	lastSave time.Time
	// digest of the last blob written, to skip unchanged saves
	saved    bool
	savedSum [blake2b.Size256]byte
	done     chan struct{}
	stopOnce sync.Once
}

// New loads or creates the profile, rebuilds the model from the session,
// bootstraps and creates the call subsystem. The session is owned by the
// client from here on; it is closed when Run returns.
func New(opts Options) (*Client, error) {
	if opts.Session == nil {
		return nil, ErrNoSession
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default(".")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Client{
		cfg:      cfg,
		sess:     opts.Session,
		store:    opts.Store,
		history:  opts.History,
		now:      opts.Now,
		model:    dispatch.NewModel(),
		commands: control.New(opts.CommandDepth),
		queue:    notify.NewQueue(),
		done:     make(chan struct{}),
	}
	c.sink = c.queue
	if opts.Sink != nil {
		c.sink = teeSink{c.queue, opts.Sink}
	}

	if err := c.loadProfile(); err != nil {
		return nil, err
	}
	c.restoreModel()
	c.bootstrap()

	avs, err := c.sess.NewAV(cfg.MaxCalls)
	if err != nil {
		return nil, fmt.Errorf("create call subsystem: %w", err)
	}
	c.av = avs
	c.calls = av.NewCalls(cfg.MaxCalls)

	storage := opts.Storage
	if storage == nil {
		storage = transfer.DiskStorage{Dir: cfg.DownloadDir}
	}
	c.transfers = transfer.NewManager(storage, transfer.Options{ResumeOnAccept: cfg.ResumeOnAccept})

	var recorder dispatch.Recorder
	if c.history != nil {
		recorder = c.history
	}
	c.dispatcher = dispatch.New(dispatch.Config{
		Model:     c.model,
		Files:     c.sess,
		Calls:     c.av,
		CallTable: c.calls,
		Transfers: c.transfers,
		Sink:      c.sink,
		Recorder:  recorder,
		Now:       c.now,
	})

	c.running.Store(true)
	if opts.Audio != nil {
		c.loop = av.NewLoop(av.LoopConfig{
			Transport:     c.av,
			Calls:         c.calls,
			Capture:       opts.Audio.Capture,
			Playback:      opts.Audio.Playback,
			Running:       &c.running,
			SampleRate:    cfg.Audio.SampleRate,
			FrameDuration: cfg.Audio.FrameDuration(),
		})
	}

	c.lastSave = c.now()
	c.publish()

	logrus.WithFields(logrus.Fields{
		"function": "New",
		"address":  c.model.Self.Address,
		"friends":  c.model.Friends.Len(),
		"audio":    c.loop != nil,
	}).Info("Client ready")

	return c, nil
}

// loadProfile restores the session from the save file, or applies the
// configured profile when there is none.
func (c *Client) loadProfile() error {
	if c.store != nil {
		data, err := c.store.Load()
		switch {
		case err == nil:
			if err := c.sess.Load(data); err != nil {
				return fmt.Errorf("load session: %w", err)
			}
			logrus.WithFields(logrus.Fields{
				"function": "Client.loadProfile",
				"path":     c.store.Path,
			}).Info("Profile loaded")
			return nil
		case errors.Is(err, savedata.ErrNoSave):
			logrus.WithFields(logrus.Fields{
				"function": "Client.loadProfile",
				"path":     c.store.Path,
			}).Info("No save file, using default profile")
		default:
			return err
		}
	}

	if err := c.sess.SetName(c.cfg.Profile.Name); err != nil {
		return fmt.Errorf("set default name: %w", err)
	}
	if err := c.sess.SetStatusMessage(c.cfg.Profile.StatusMessage); err != nil {
		return fmt.Errorf("set default status message: %w", err)
	}
	return nil
}

// restoreModel copies the profile and friend list out of the session and
// replays recent history into each friend.
func (c *Client) restoreModel() {
	c.model.Self = dispatch.Self{
		Name:          c.sess.SelfName(),
		StatusMessage: c.sess.SelfStatusMessage(),
		Status:        c.sess.SelfStatus(),
		Address:       c.sess.SelfAddress(),
	}

	for _, id := range c.sess.FriendList() {
		key, err := c.sess.FriendPublicKey(id)
		if err != nil {
			continue
		}
		f := c.model.Friends.Add(id, key)
		if name, err := c.sess.FriendName(id); err == nil {
			f.SetName(name)
		}
		if msg, err := c.sess.FriendStatusMessage(id); err == nil {
			f.StatusMessage = msg
		}
		c.restoreHistory(f)
	}
}

func (c *Client) restoreHistory(f *friend.Friend) {
	if c.history == nil {
		return
	}
	entries, err := c.history.Recent(context.Background(), f.PublicKey, c.cfg.HistoryLimit)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "Client.restoreHistory",
			"friend_id": f.ID,
			"error":     err.Error(),
		}).Warn("Loading history failed")
		return
	}
	for _, e := range entries {
		f.Messages = append(f.Messages, friend.Message{
			Outgoing: e.Outgoing,
			Action:   e.Action,
			Text:     e.Text,
			Time:     e.Time,
		})
	}
}

func (c *Client) bootstrap() {
	for _, node := range c.cfg.BootstrapNodes() {
		if err := c.sess.Bootstrap(node); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Client.bootstrap",
				"address":  node.Address,
				"port":     node.Port,
				"error":    err.Error(),
			}).Warn("Bootstrap failed")
		}
	}
}

// Run drives the session until Stop is called or ctx ends, then saves and
// tears everything down. It starts the audio goroutine if there is one.
func (c *Client) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	if c.loop != nil {
		go c.loop.Run()
	}
	defer c.shutdown()

	timer := time.NewTimer(0)
	defer timer.Stop()
	for c.running.Load() {
		c.iterate()

		timer.Reset(c.sess.IterationInterval())
		select {
		case <-ctx.Done():
			c.running.Store(false)
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// iterate is one pass of the network loop.
func (c *Client) iterate() {
	c.sess.Iterate(c.dispatcher)

	connected := c.sess.IsConnected()
	if connected != c.model.Connected {
		c.model.Connected = connected
		c.model.MarkDirty()

		logrus.WithFields(logrus.Fields{
			"function":  "Client.iterate",
			"connected": connected,
		}).Info("Network connectivity changed")
		c.sink.Notify(notify.Notification{Kind: notify.DHTConnected, Connected: connected})
	}

	if now := c.now(); now.Sub(c.lastSave) >= c.cfg.SaveInterval.Duration {
		if !connected {
			c.bootstrap()
		}
		c.save()
		c.lastSave = now
	}

	c.commands.Drain(c.handle)

	done, moved := c.transfers.Service(c.sess)
	for _, v := range done {
		c.sink.Notify(notify.Notification{
			Kind:   notify.FileDone,
			Friend: v.Key.Friend,
			File:   v.Key.File,
			Text:   v.Status.String(),
		})
	}
	if moved {
		c.model.MarkDirty()
	}

	c.publish()
}

// publish stores a fresh snapshot when the model changed and wakes the UI.
// Redraws are coalesced on the queue's wake channel, never queued.
func (c *Client) publish() {
	if !c.model.TakeDirty() {
		return
	}
	c.snapshot.Store(c.model.Snapshot(c.transfers.Views()))
	c.queue.Signal()
}

func (c *Client) save() {
	if c.store == nil {
		return
	}
	data, err := c.sess.Save()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Client.save",
			"error":    err.Error(),
		}).Error("Saving profile failed")
		return
	}
	sum := blake2b.Sum256(data)
	if c.saved && sum == c.savedSum {
		return
	}
	if err := c.store.Save(data); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Client.save",
			"error":    err.Error(),
		}).Error("Saving profile failed")
		return
	}
	c.saved, c.savedSum = true, sum
	logrus.WithFields(logrus.Fields{
		"function": "Client.save",
		"bytes":    len(data),
	}).Debug("Profile saved")
}

// shutdown saves, closes the call subsystem and the session, and waits for
// the audio goroutine.
func (c *Client) shutdown() {
	c.stopOnce.Do(func() {
		c.running.Store(false)
		if c.loop != nil {
			c.loop.Stop()
		}
		c.save()
		c.transfers.Close()
		if n := c.calls.ActiveCount(); n > 0 {
			logrus.WithFields(logrus.Fields{
				"function":   "Client.shutdown",
				"live_calls": n,
			}).Info("Ending live calls")
		}
		c.calls.DeactivateAll()
		c.commands.Close()
		if n := c.commands.Pending(); n > 0 {
			logrus.WithFields(logrus.Fields{
				"function": "Client.shutdown",
				"commands": n,
			}).Warn("Discarding queued commands")
		}

		if err := c.av.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Client.shutdown",
				"error":    err.Error(),
			}).Warn("Closing call subsystem failed")
		}
		if err := c.sess.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Client.shutdown",
				"error":    err.Error(),
			}).Warn("Closing session failed")
		}
		if c.loop != nil {
			<-c.loop.Done()
		}

		logrus.WithFields(logrus.Fields{
			"function": "Client.shutdown",
		}).Info("Client stopped")
		close(c.done)
	})
}

// Stop asks Run to return. It does not wait; use Done.
func (c *Client) Stop() {
	c.running.Store(false)
}

// Done is closed once Run has torn everything down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Post queues a command for the network goroutine, blocking while the
// channel is full.
func (c *Client) Post(ctx context.Context, cmd control.Command) error {
	return c.commands.Post(ctx, cmd)
}

// Snapshot returns the latest published state. It is never nil and must not
// be modified.
func (c *Client) Snapshot() *dispatch.Snapshot {
	return c.snapshot.Load()
}

// Notifications returns the queue the UI drains.
func (c *Client) Notifications() *notify.Queue {
	return c.queue
}

// Calls exposes the active call table.
func (c *Client) Calls() *av.Calls {
	return c.calls
}

type teeSink [2]notify.Sink

func (t teeSink) Notify(n notify.Notification) {
	t[0].Notify(n)
	t[1].Notify(n)
}
