package host

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	domain "github.com/muse-store/miniapp/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Remote is a session's websocket-backed host: control surface, haptic sink and click channel.
type Remote struct {
	*RemoteHost
	*Surface
}

// NewRemote builds a remote host whose surface drives the remote buttons.
func NewRemote() *Remote {
	remote := NewRemoteHost()
	return &Remote{RemoteHost: remote, Surface: NewSurface(remote.MainButton(), remote.BackButton())}
}

// Command is an imperative call the client mirrors onto the host SDK.
type Command struct {
	Target string `json:"target"`
	Op     string `json:"op"`
	Text   string `json:"text,omitempty"`
	Style  string `json:"style,omitempty"`
}

type inboundMessage struct {
	Type   string `json:"type"`
	Button string `json:"button"`
}

// RemoteHost mirrors the host's native controls over a websocket. Button state and click
// handlers live server-side and survive reconnects: a new connection receives a replay of the
// current state and supersedes the previous one.
type RemoteHost struct {
	primary *remoteButton
	back    *remoteButton

	mu  sync.Mutex
	out chan Command
}

// NewRemoteHost builds a host with both buttons hidden.
func NewRemoteHost() *RemoteHost {
	h := &RemoteHost{}
	h.primary = &remoteButton{host: h, kind: domain.ButtonPrimary}
	h.back = &remoteButton{host: h, kind: domain.ButtonBack}
	return h
}

// MainButton returns the primary control.
func (h *RemoteHost) MainButton() Button { return h.primary }

// BackButton returns the back control.
func (h *RemoteHost) BackButton() Button { return h.back }

// Notify forwards a haptic event. Events are dropped while no client is connected.
func (h *RemoteHost) Notify(event domain.HapticEvent) {
	h.emit(Command{Target: "haptic", Op: string(event.Kind), Style: event.Style})
}

// Click runs the handler bound to kind. It reports false when the button is hidden or unbound.
func (h *RemoteHost) Click(kind domain.ButtonKind) bool {
	switch kind {
	case domain.ButtonPrimary:
		return h.primary.click()
	case domain.ButtonBack:
		return h.back.click()
	default:
		return false
	}
}

// Connected reports whether a client is attached.
func (h *RemoteHost) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.out != nil
}

// Serve attaches conn and blocks until the client disconnects, ctx ends, or a newer connection
// supersedes it. Click messages are dispatched in arrival order.
func (h *RemoteHost) Serve(ctx context.Context, conn *websocket.Conn) error {
	out := make(chan Command, sendBuffer)

	h.mu.Lock()
	if h.out != nil {
		close(h.out)
	}
	h.out = out
	for _, cmd := range h.replay() {
		out <- cmd
	}
	h.mu.Unlock()

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- writeLoop(ctx, conn, out)
		_ = conn.Close()
	}()

	readErr := h.readLoop(conn)
	superseded := !h.detach(out)
	<-writeErr
	_ = conn.Close()

	if superseded || ctx.Err() != nil {
		return nil
	}
	if websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return readErr
}

func (h *RemoteHost) readLoop(conn *websocket.Conn) error {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		if msg.Type == "click" {
			h.Click(domain.ButtonKind(msg.Button))
		}
	}
}

// detach closes out when it is still the current connection. It reports false when a newer
// connection already replaced it.
func (h *RemoteHost) detach(out chan Command) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.out != out {
		return false
	}
	close(out)
	h.out = nil
	return true
}

var errSuperseded = errors.New("host: connection superseded")

func writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan Command) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case cmd, ok := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "superseded"))
				return errSuperseded
			}
			if err := conn.WriteJSON(cmd); err != nil {
				return err
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return ctx.Err()
		}
	}
}

// emit queues cmd for the attached client. A full buffer drops the command; the next replay
// on reconnect restores button state.
func (h *RemoteHost) emit(cmd Command) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.out == nil {
		return
	}
	select {
	case h.out <- cmd:
	default:
	}
}

// replay runs with h.mu held.
func (h *RemoteHost) replay() []Command {
	var cmds []Command
	for _, b := range []*remoteButton{h.primary, h.back} {
		cmds = append(cmds, b.stateCommands()...)
	}
	return cmds
}

type remoteButton struct {
	host *RemoteHost
	kind domain.ButtonKind

	mu       sync.Mutex
	visible  bool
	text     string
	progress bool
	handler  func()
}

func (b *remoteButton) Show()         { b.set(func() { b.visible = true }, "show", "") }
func (b *remoteButton) Hide()         { b.set(func() { b.visible = false }, "hide", "") }
func (b *remoteButton) ShowProgress() { b.set(func() { b.progress = true }, "showProgress", "") }
func (b *remoteButton) HideProgress() { b.set(func() { b.progress = false }, "hideProgress", "") }

func (b *remoteButton) SetText(text string) {
	b.set(func() { b.text = text }, "setText", text)
}

func (b *remoteButton) OnClick(handler func()) {
	b.mu.Lock()
	b.handler = handler
	b.mu.Unlock()
}

func (b *remoteButton) OffClick() {
	b.mu.Lock()
	b.handler = nil
	b.mu.Unlock()
}

func (b *remoteButton) set(apply func(), op, text string) {
	b.mu.Lock()
	apply()
	b.mu.Unlock()
	b.host.emit(Command{Target: string(b.kind), Op: op, Text: text})
}

func (b *remoteButton) click() bool {
	b.mu.Lock()
	handler, visible := b.handler, b.visible
	b.mu.Unlock()
	if handler == nil || !visible {
		return false
	}
	handler()
	return true
}

func (b *remoteButton) stateCommands() []Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	target := string(b.kind)
	var cmds []Command
	if b.kind == domain.ButtonPrimary && b.text != "" {
		cmds = append(cmds, Command{Target: target, Op: "setText", Text: b.text})
	}
	if b.visible {
		cmds = append(cmds, Command{Target: target, Op: "show"})
	} else {
		cmds = append(cmds, Command{Target: target, Op: "hide"})
	}
	if b.progress {
		cmds = append(cmds, Command{Target: target, Op: "showProgress"})
	}
	return cmds
}
