// Package toxclient is the session core of a Tox chat and call client.
//
// A [Client] owns a [session.Session] and runs three goroutines' worth of
// work around it: the network loop ([Client.Run]), the audio loop for live
// calls, and whatever UI goroutine posts commands and reads state.
//
// # Getting Started
//
//	hub := simnet.NewHub()
//	node, _ := hub.NewNode()
//
//	client, err := toxclient.New(toxclient.Options{
//	    Config:  config.Default(dir),
//	    Session: node,
//	    Store:   &savedata.Store{Path: filepath.Join(dir, "tox_save")},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go client.Run(ctx)
//
//	client.Post(ctx, control.SendMessage{Friend: 0, Text: "hello"})
//
//	for range client.Notifications().Wake() {
//	    for _, n := range client.Notifications().Drain() {
//	        fmt.Println(n.Kind, n.Text)
//	    }
//	    redraw(client.Snapshot())
//	}
//
// # Threading
//
// Only the network goroutine touches the session, the model and the file
// transfers. The UI talks to it through a bounded [control.Channel] (Post
// blocks while the channel is full) and reads state from immutable
// snapshots published after every change, plus a [notify.Queue] of events.
//
// The audio goroutine reads the call table ([av.Calls]) and uses the
// session's thread-safe audio primitives. A call slot is activated by the
// network goroutine only after its peer is recorded, and deactivated before
// a hangup returns.
//
// # Persistence
//
// The session blob is saved every SaveInterval and on shutdown through
// [savedata.Store], optionally encrypted with a passphrase. Friend messages
// are logged to a [history.Store] and replayed into the roster at startup.
//
// # Shutdown
//
// Run returns after [Client.Stop] or when its context ends. It saves once
// more, closes the call subsystem and the session, and waits for the audio
// loop to release its devices.
package toxclient
