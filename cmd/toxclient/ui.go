package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/opd-ai/toxclient/control"
	"github.com/opd-ai/toxclient/dispatch"
	"github.com/opd-ai/toxclient/friend"
	"github.com/opd-ai/toxclient/notify"
	"github.com/opd-ai/toxclient/session"
)

const defaultRequestMessage = "Hi, let's chat on Tox"

const helpText = `Commands:
  /name <name>                  set your name
  /note <text>                  set your status message
  /status online|away|busy      set your presence
  /whoami                       show your profile and address
  /add <address> [message]      send a friend request
  /accept <request>             accept a friend request
  /del <friend>                 remove a friend
  /friends /requests            list friends or pending requests
  /chat <friend>                talk to a friend; plain lines are sent there
  /gchat <group>                talk in a group
  /msg <friend> <text>          message a friend
  /me <text>                    action in the current chat
  /typing on|off                typing indicator for the current friend
  /call <friend>                start a call
  /answer <call> /hangup <call> answer or end a call
  /group                        create a group
  /invite <group> <friend>      invite a friend to a group
  /join <invite>                accept a group invite
  /leave <group>                leave a group
  /groups /invites              list groups or pending invites
  /gmsg <group> <text>          message a group
  /send <friend> <path>         offer a file
  /pause|/resume|/kill <friend> <file> in|out
  /transfers                    list transfers
  /echo                         show the echo peer's address
  /quit                         exit
`

// errUsage marks malformed input.
var errUsage = errors.New("usage")

// backend is the part of the client the UI uses.
type backend interface {
	Post(ctx context.Context, cmd control.Command) error
	Snapshot() *dispatch.Snapshot
	Notifications() *notify.Queue
}

// chatTarget is the conversation plain lines go to.
type chatTarget struct {
	set   bool
	group bool
	id    uint32
}

func (t chatTarget) String() string {
	switch {
	case !t.set:
		return ""
	case t.group:
		return fmt.Sprintf("group %d", t.id)
	default:
		return fmt.Sprintf("friend %d", t.id)
	}
}

// ui turns input lines into commands and notifications into output lines.
type ui struct {
	client backend
	out    io.Writer
	echo   string
	chat   chatTarget
}

func (u *ui) printf(format string, args ...any) {
	fmt.Fprintf(u.out, format, args...)
}

func (u *ui) prompt() string {
	if u.chat.set {
		return "[" + u.chat.String() + "]> "
	}
	return "> "
}

// handleLine runs one input line. It returns true when the user quits.
func (u *ui) handleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch verb {
	case "/quit", "/exit":
		return true
	case "/help":
		u.printf("%s", helpText)
		return false
	case "/whoami", "/friends", "/requests", "/groups", "/invites", "/transfers":
		u.list(verb)
		return false
	case "/echo":
		if u.echo == "" {
			u.printf("No echo peer is running\n")
		} else {
			u.printf("Echo peer: %s\n", u.echo)
		}
		return false
	case "/chat", "/gchat":
		id, err := parseID(rest)
		if err != nil {
			u.printf("%s <id>\n", verb)
			return false
		}
		u.chat = chatTarget{set: true, group: verb == "/gchat", id: id}
		u.printf("Now talking to %s\n", u.chat)
		return false
	}

	cmd, err := parseCommand(line, u.chat)
	if err != nil {
		u.printf("%v\n", err)
		return false
	}
	if err := u.client.Post(ctx, cmd); err != nil {
		u.printf("Could not queue %s: %v\n", cmd.Op(), err)
	}
	return false
}

// parseCommand converts a line into a control command. Lines without a
// leading slash are messages to chat.
func parseCommand(line string, chat chatTarget) (control.Command, error) {
	if !strings.HasPrefix(line, "/") {
		return chatMessage(chat, session.MessageNormal, line)
	}
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	args := strings.Fields(rest)

	switch verb {
	case "/name":
		if rest == "" {
			return nil, fmt.Errorf("%w: /name <name>", errUsage)
		}
		return control.SetName{Name: rest}, nil
	case "/note":
		return control.SetStatusMessage{Message: rest}, nil
	case "/status":
		st, err := parseStatus(rest)
		if err != nil {
			return nil, err
		}
		return control.SetStatus{Status: st}, nil
	case "/add":
		if len(args) == 0 {
			return nil, fmt.Errorf("%w: /add <address> [message]", errUsage)
		}
		msg := strings.TrimSpace(strings.TrimPrefix(rest, args[0]))
		if msg == "" {
			msg = defaultRequestMessage
		}
		return control.AddFriend{Address: args[0], Message: msg}, nil
	case "/accept":
		n, err := parseIndex(args, "/accept <request>")
		if err != nil {
			return nil, err
		}
		return control.AcceptFriend{Request: n}, nil
	case "/del":
		id, err := parseArgID(args, 0, "/del <friend>")
		if err != nil {
			return nil, err
		}
		return control.DeleteFriend{Friend: id}, nil
	case "/msg", "/gmsg":
		if len(args) < 2 {
			return nil, fmt.Errorf("%w: %s <id> <text>", errUsage, verb)
		}
		id, err := parseID(args[0])
		if err != nil {
			return nil, err
		}
		text := strings.TrimSpace(strings.TrimPrefix(rest, args[0]))
		return chatMessage(chatTarget{set: true, group: verb == "/gmsg", id: id}, session.MessageNormal, text)
	case "/me":
		if rest == "" {
			return nil, fmt.Errorf("%w: /me <text>", errUsage)
		}
		return chatMessage(chat, session.MessageAction, rest)
	case "/typing":
		if !chat.set || chat.group {
			return nil, errors.New("select a friend with /chat first")
		}
		switch rest {
		case "on":
			return control.SetTyping{Friend: chat.id, Typing: true}, nil
		case "off":
			return control.SetTyping{Friend: chat.id}, nil
		}
		return nil, fmt.Errorf("%w: /typing on|off", errUsage)
	case "/call":
		id, err := parseArgID(args, 0, "/call <friend>")
		if err != nil {
			return nil, err
		}
		return control.Call{Friend: id}, nil
	case "/answer", "/hangup":
		n, err := parseIndex(args, verb+" <call>")
		if err != nil {
			return nil, err
		}
		if verb == "/answer" {
			return control.AcceptCall{Call: session.CallID(n)}, nil
		}
		return control.Hangup{Call: session.CallID(n)}, nil
	case "/group":
		return control.NewGroup{}, nil
	case "/leave":
		id, err := parseArgID(args, 0, "/leave <group>")
		if err != nil {
			return nil, err
		}
		return control.LeaveGroup{Group: id}, nil
	case "/invite":
		g, err := parseArgID(args, 0, "/invite <group> <friend>")
		if err != nil {
			return nil, err
		}
		f, err := parseArgID(args, 1, "/invite <group> <friend>")
		if err != nil {
			return nil, err
		}
		return control.InviteToGroup{Group: g, Friend: f}, nil
	case "/join":
		n, err := parseIndex(args, "/join <invite>")
		if err != nil {
			return nil, err
		}
		return control.JoinGroup{Invite: n}, nil
	case "/send":
		if len(args) < 2 {
			return nil, fmt.Errorf("%w: /send <friend> <path>", errUsage)
		}
		id, err := parseID(args[0])
		if err != nil {
			return nil, err
		}
		return control.SendFile{Friend: id, Path: strings.TrimSpace(strings.TrimPrefix(rest, args[0]))}, nil
	case "/pause", "/resume", "/kill":
		return parseFileControl(verb, args)
	}
	return nil, fmt.Errorf("unknown command %s, try /help", verb)
}

func chatMessage(chat chatTarget, kind session.MessageKind, text string) (control.Command, error) {
	if !chat.set {
		return nil, errors.New("no chat selected, use /chat or /gchat")
	}
	if text == "" {
		return nil, errors.New("empty message")
	}
	if chat.group {
		return control.SendGroupMessage{Group: chat.id, Kind: kind, Text: text}, nil
	}
	return control.SendMessage{Friend: chat.id, Kind: kind, Text: text}, nil
}

func parseFileControl(verb string, args []string) (control.Command, error) {
	usage := verb + " <friend> <file> in|out"
	if len(args) != 3 || (args[2] != "in" && args[2] != "out") {
		return nil, fmt.Errorf("%w: %s", errUsage, usage)
	}
	f, err := parseID(args[0])
	if err != nil {
		return nil, err
	}
	file, err := parseID(args[1])
	if err != nil {
		return nil, err
	}
	ctrl := map[string]session.FileControl{
		"/pause":  session.FileControlPause,
		"/resume": session.FileControlResume,
		"/kill":   session.FileControlKill,
	}[verb]
	return control.ControlFile{Friend: f, File: file, Outgoing: args[2] == "out", Control: ctrl}, nil
}

func parseStatus(s string) (session.UserStatus, error) {
	for _, st := range []session.UserStatus{session.UserStatusNone, session.UserStatusAway, session.UserStatusBusy} {
		if s == st.String() {
			return st, nil
		}
	}
	return 0, fmt.Errorf("%w: /status online|away|busy", errUsage)
}

func parseID(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%q is not a valid number", s)
	}
	return uint32(v), nil
}

func parseArgID(args []string, i int, usage string) (uint32, error) {
	if len(args) <= i {
		return 0, fmt.Errorf("%w: %s", errUsage, usage)
	}
	return parseID(args[i])
}

func parseIndex(args []string, usage string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: %s", errUsage, usage)
	}
	v, err := strconv.Atoi(args[0])
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%q is not a valid number", args[0])
	}
	return v, nil
}

// list prints one section of the latest snapshot.
func (u *ui) list(what string) {
	snap := u.client.Snapshot()
	switch what {
	case "/whoami":
		u.printf("%s (%s) %q\n%s\n", snap.Self.Name, snap.Self.Status, snap.Self.StatusMessage, snap.Self.Address)
		if snap.Connected {
			u.printf("Connected\n")
		} else {
			u.printf("Not connected\n")
		}
	case "/friends":
		if len(snap.Friends) == 0 {
			u.printf("No friends yet\n")
		}
		for _, f := range snap.Friends {
			presence := "offline"
			if f.Online {
				presence = f.Status.String()
			}
			u.printf("%3d  %-20s %-8s %s", f.ID, f.Name, presence, f.StatusMessage)
			if f.Call != friend.CallIdle {
				u.printf("  [call %d %s]", f.CallID, f.Call)
			}
			u.printf("\n")
		}
	case "/requests":
		if len(snap.Requests) == 0 {
			u.printf("No pending requests\n")
		}
		for _, r := range snap.Requests {
			u.printf("%3d  %X  %s\n", r.ID, r.PublicKey[:8], r.Message)
		}
	case "/groups":
		if len(snap.Groups) == 0 {
			u.printf("No groups\n")
		}
		for _, g := range snap.Groups {
			u.printf("%3d  %-20s %d peers  %s\n", g.ID, g.Name, len(g.Peers), g.Topic)
		}
	case "/invites":
		if len(snap.Invites) == 0 {
			u.printf("No pending invites\n")
		}
		for _, inv := range snap.Invites {
			u.printf("%3d  from %s\n", inv.ID, friendName(snap, inv.Friend))
		}
	case "/transfers":
		if len(snap.Transfers) == 0 {
			u.printf("No transfers\n")
		}
		for _, t := range snap.Transfers {
			u.printf("%s  %-24s %5.1f%%  %s\n", t.Key, t.Name, t.Progress()*100, t.Status)
		}
	}
}

func friendName(snap *dispatch.Snapshot, id uint32) string {
	if f, ok := snap.Friend(id); ok {
		return f.Name
	}
	return fmt.Sprintf("friend %d", id)
}

func peerName(snap *dispatch.Snapshot, group, peer uint32) string {
	if g, ok := snap.Group(group); ok {
		for _, p := range g.Peers {
			if p.Number == peer && p.Name != "" {
				return p.Name
			}
		}
	}
	return fmt.Sprintf("peer %d", peer)
}

// formatNotification renders n as one output line. It returns "" for
// notifications that only change what the listings show.
func formatNotification(n notify.Notification, snap *dispatch.Snapshot) string {
	if n.Failed {
		return fmt.Sprintf("! %s failed: %v", n.Kind, n.Err)
	}
	who := friendName(snap, n.Friend)
	switch n.Kind {
	case notify.DHTConnected:
		if n.Connected {
			return "* Connected to the network"
		}
		return "* Disconnected from the network"
	case notify.FriendRequest:
		return fmt.Sprintf("* Friend request %d: %q (use /accept %d)", n.Request, n.Text, n.Request)
	case notify.FriendAdd:
		return fmt.Sprintf("* Friend request sent, friend number %d", n.Friend)
	case notify.FriendAccept:
		return fmt.Sprintf("* %s added as friend %d", who, n.Friend)
	case notify.FriendDeleted:
		return fmt.Sprintf("* Friend %d removed", n.Friend)
	case notify.FriendMessage:
		if n.Action {
			return fmt.Sprintf("* %s %s", who, n.Text)
		}
		return fmt.Sprintf("<%s> %s", who, n.Text)
	case notify.CallInvite:
		return fmt.Sprintf("* %s is calling (use /answer %d or /hangup %d)", who, n.Call, n.Call)
	case notify.CallRing:
		return fmt.Sprintf("* Calling %s, call %d", who, n.Call)
	case notify.CallStart:
		return fmt.Sprintf("* Call %d with %s started", n.Call, who)
	case notify.CallEnd:
		return fmt.Sprintf("* Call %d with %s ended: %s", n.Call, who, n.Text)
	case notify.GroupAdd:
		return fmt.Sprintf("* Joined group %d", n.Group)
	case notify.GroupInvite:
		return fmt.Sprintf("* %s invited you to a group (use /join %d)", who, n.Invite)
	case notify.GroupMessage:
		name := peerName(snap, n.Group, n.Peer)
		if n.Action {
			return fmt.Sprintf("[%d] * %s %s", n.Group, name, n.Text)
		}
		return fmt.Sprintf("[%d] <%s> %s", n.Group, name, n.Text)
	case notify.GroupLeft:
		return fmt.Sprintf("* Left group %d", n.Group)
	case notify.FileBeginSend:
		return fmt.Sprintf("* Offering %s to %s (file %d)", n.Text, who, n.File)
	case notify.FileBeginRecv:
		return fmt.Sprintf("* Receiving %s from %s (file %d)", n.Text, who, n.File)
	case notify.FileUpdated:
		return fmt.Sprintf("* File %d with %s: %s", n.File, who, n.Text)
	case notify.FileDone:
		return fmt.Sprintf("* File %d with %s %s", n.File, who, n.Text)
	case notify.CommandFailed:
		return fmt.Sprintf("! %v", n.Err)
	}
	return ""
}

// drain prints everything pending in the notification queue.
func (u *ui) drain() {
	snap := u.client.Snapshot()
	for _, n := range u.client.Notifications().Drain() {
		if line := formatNotification(n, snap); line != "" {
			u.printf("%s\n", line)
		}
	}
}

// terminalUI runs ui on the controlling terminal in raw mode.
type terminalUI struct {
	*ui
	term  *term.Terminal
	fd    int
	state *term.State
}

func newTerminalUI(client backend, peer *echoPeer) (*terminalUI, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal")
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("failed to enter raw mode: %w", err)
	}
	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}, "> ")
	if w, h, err := term.GetSize(fd); err == nil {
		t.SetSize(w, h)
	}

	u := &ui{client: client, out: t}
	if peer != nil {
		u.echo = peer.Address()
	}
	return &terminalUI{ui: u, term: t, fd: fd, state: state}, nil
}

// Run reads lines until /quit, end of input or ctx ends.
func (t *terminalUI) Run(ctx context.Context) error {
	t.printf("toxclient: type /help for commands\n")
	if t.echo != "" {
		t.printf("Echo peer: /add %s\n", t.echo)
	}

	lines := make(chan string)
	errs := make(chan error, 1)
	go func() {
		for {
			line, err := t.term.ReadLine()
			if err != nil {
				errs <- err
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	wake := t.client.Notifications().Wake()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case line := <-lines:
			if t.handleLine(ctx, line) {
				return nil
			}
			t.term.SetPrompt(t.prompt())
		case <-wake:
			t.drain()
		}
	}
}

// Close restores the terminal mode.
func (t *terminalUI) Close() {
	term.Restore(t.fd, t.state)
}
