// Package hub implements the background relay that coordinates a browser
// extension's UI surfaces: it registers per-tab and per-window channels,
// routes application messages between them, keeps idle channels alive, and
// reconciles routing state when tabs or windows go away.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// WindowManager creates and removes detached surface windows. Removal must
// tolerate already-closed windows.
type WindowManager interface {
	CreateWindow(ctx context.Context, url string, width, height int) (int, error)
	RemoveWindow(ctx context.Context, windowID int) error
	ReloadWindow(ctx context.Context, windowID int) error
}

// TabManager exposes the tab operations the relay needs.
type TabManager interface {
	CreateTab(ctx context.Context, url string) (int, error)
}

// StateRemover clears persisted per-tab state keys.
type StateRemover interface {
	Remove(keys ...string) error
}

// Mode selects the relay variant. The multi-tab variant drops forwards
// whose recipient is not registered; the paired variant queues them and
// flushes on reconnect. The two are never merged.
type Mode int

const (
	ModeMultiTab Mode = iota
	ModePaired
)

func ParseMode(s string) (Mode, error) {
	switch s {
	case "multitab", "":
		return ModeMultiTab, nil
	case "paired":
		return ModePaired, nil
	}
	return 0, fmt.Errorf("unknown relay mode %q", s)
}

func (m Mode) String() string {
	if m == ModePaired {
		return "paired"
	}
	return "multitab"
}

// Options configures a Hub.
type Options struct {
	Mode            Mode
	ProbeInterval   time.Duration // default 25s
	ExternalTimeout time.Duration // default 10s
	PopoutURL       string
	TrackingURL     string
	PopoutWidth     int
	PopoutHeight    int
	TrackingWidth   int
	TrackingHeight  int
}

func (o *Options) applyDefaults() {
	if o.ProbeInterval <= 0 {
		o.ProbeInterval = 25 * time.Second
	}
	if o.ExternalTimeout <= 0 {
		o.ExternalTimeout = 10 * time.Second
	}
	if o.PopoutWidth <= 0 {
		o.PopoutWidth = 420
	}
	if o.PopoutHeight <= 0 {
		o.PopoutHeight = 640
	}
	if o.TrackingWidth <= 0 {
		o.TrackingWidth = 960
	}
	if o.TrackingHeight <= 0 {
		o.TrackingHeight = 720
	}
}

// ConnMeta carries the connection metadata a surface supplies when opening
// a channel (the stand-in for the extension runtime's sender info).
type ConnMeta struct {
	TabID    int
	WindowID int
}

var (
	ErrUnknownChannel = errors.New("unknown channel name")
	ErrMissingTab     = errors.New("content-script channel requires a tab id")
)

// Hub owns the registry and wires the router, liveness monitor, and
// lifecycle reconciler around it. All collaborator access goes through the
// interfaces injected at construction; there is no ambient global state.
type Hub struct {
	reg     *Registry
	router  *Router
	monitor *Monitor
	rec     *Reconciler
	classes map[string]Class
	opts    Options
}

// New builds a Hub. classes may be nil to use the built-in channel names.
func New(windows WindowManager, tabs TabManager, store StateRemover, classes map[string]Class, opts Options) *Hub {
	opts.applyDefaults()
	if classes == nil {
		classes = DefaultClasses()
	}

	h := &Hub{
		reg:     NewRegistry(),
		classes: classes,
		opts:    opts,
	}
	var pending *pendingQueue
	if opts.Mode == ModePaired {
		pending = newPendingQueue()
	}
	h.monitor = newMonitor(opts.ProbeInterval, h.dropChannel)
	h.router = &Router{
		reg:     h.reg,
		windows: windows,
		tabs:    tabs,
		pending: pending,
		opts:    opts,
		drop:    h.dropChannel,
	}
	h.rec = &Reconciler{
		reg:     h.reg,
		windows: windows,
		store:   store,
		drop:    h.dropChannel,
	}
	return h
}

// Attach classifies a freshly opened connection by channel name, registers
// it, and performs per-kind setup (init handshake, liveness probe, queued
// message flush). Unrecognized names are rejected so the transport can
// close the connection.
func (h *Hub) Attach(name string, port Port, meta ConnMeta) (*Channel, error) {
	class, ok := h.classes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, name)
	}
	kind, err := parseKind(class.Kind)
	if err != nil {
		return nil, err
	}

	ch := newChannel(uuid.NewString(), kind, port)
	switch kind {
	case KindContentScript:
		if meta.TabID == 0 {
			return nil, ErrMissingTab
		}
		ch.bind(meta.TabID, 0)
	case KindMenu:
		ch.markBound()
	case KindTracking:
		if meta.WindowID != 0 {
			ch.bind(0, meta.WindowID)
		} else {
			ch.markBound()
		}
	case KindPopout:
		// Stays in Connecting until popout-init binds it, unless the
		// connection metadata already carries both ids.
		if meta.TabID != 0 && meta.WindowID != 0 {
			ch.bind(meta.TabID, meta.WindowID)
		}
	}

	if evicted := h.reg.Register(ch); evicted != nil {
		slog.Info("content-script channel superseded",
			"tab", evicted.TabID(), "old", evicted.id, "new", ch.id)
	}

	if class.Probed {
		h.monitor.Watch(ch)
	}

	if kind == KindContentScript {
		if err := port.Send(controlMsg{Action: ActionInit, TabID: meta.TabID}); err != nil {
			h.dropChannel(ch, "init send failed")
			return nil, fmt.Errorf("init handshake: %w", err)
		}
		h.router.flushContent(ch)
	}
	if kind == KindPopout && ch.TabID() != 0 {
		h.router.flushPopout(ch)
	}

	slog.Info("channel registered",
		"name", name, "kind", kind.String(), "id", ch.id,
		"tab", ch.TabID(), "window", ch.WindowID(), "state", ch.State().String())
	return ch, nil
}

// HandleMessage processes one inbound frame from a channel. Malformed
// frames are ignored; a bad message never tears down a healthy channel.
func (h *Hub) HandleMessage(ch *Channel, data []byte) {
	ch.touch()
	env, err := decodeEnvelope(data)
	if err != nil {
		slog.Debug("malformed message ignored", "channel", ch.id, "error", err)
		return
	}
	h.router.Route(ch, env)
}

// HandleDisconnect reacts to the transport reporting a closed connection.
// Channel ids are unique per process lifetime, so a superseded channel's
// disconnect cannot touch its successor.
func (h *Hub) HandleDisconnect(ch *Channel) {
	h.dropChannel(ch, "transport disconnected")
}

// dropChannel is the single teardown path: unregister, cancel the probe,
// close the transport. Safe to call from any trigger, any number of times.
func (h *Hub) dropChannel(ch *Channel, reason string) {
	if ch == nil {
		return
	}
	removed := h.reg.Unregister(ch.id)
	first := ch.terminate()
	if !removed && !first {
		return
	}
	_ = ch.port.Close()
	slog.Debug("channel dropped",
		"id", ch.id, "kind", ch.kind.String(), "tab", ch.TabID(),
		"window", ch.WindowID(), "reason", reason)
}

// TabRemoved implements the tab-removed lifecycle notification.
func (h *Hub) TabRemoved(tabID int) {
	ctx, cancel := h.extContext()
	defer cancel()
	h.rec.TabRemoved(ctx, tabID)
}

// WindowRemoved implements the window-removed lifecycle notification.
func (h *Hub) WindowRemoved(windowID int) {
	h.rec.WindowRemoved(windowID)
}

// TabLoading implements the tab-navigation lifecycle notification.
func (h *Hub) TabLoading(tabID int) {
	ctx, cancel := h.extContext()
	defer cancel()
	h.rec.TabLoading(ctx, tabID)
}

// OpenPopout creates a popout window for a tab (admin API entry point,
// same path as the menu's openPopout action).
func (h *Hub) OpenPopout(ctx context.Context, tabID int) (int, error) {
	return h.router.OpenPopout(ctx, tabID)
}

// OpenTracking creates the tracking window.
func (h *Hub) OpenTracking(ctx context.Context) (int, error) {
	return h.router.OpenTracking(ctx)
}

// Snapshot returns the current registry contents.
func (h *Hub) Snapshot() []ChannelInfo { return h.reg.Snapshot() }

// Counts returns channel counts by kind.
func (h *Hub) Counts() map[string]int { return h.reg.CountByKind() }

// Mode returns the active relay variant.
func (h *Hub) Mode() Mode { return h.opts.Mode }

func (h *Hub) extContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), h.opts.ExternalTimeout)
}
