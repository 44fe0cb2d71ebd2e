package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Router classifies every inbound message and forwards it to its recipient
// set. Forwarding is attempted synchronously; only the external window and
// tab operations run on their own goroutines.
type Router struct {
	reg     *Registry
	windows WindowManager
	tabs    TabManager
	pending *pendingQueue // nil in the multi-tab variant
	opts    Options
	drop    func(ch *Channel, reason string)
}

func (rt *Router) Route(ch *Channel, env Envelope) {
	switch ch.kind {
	case KindContentScript:
		rt.fromContent(ch, env)
	case KindPopout:
		rt.fromPopout(ch, env)
	case KindMenu:
		rt.fromMenu(ch, env)
	case KindTracking:
		rt.fromTracking(ch, env)
	}
}

// fromContent broadcasts application messages to every popout bound to the
// sender's tab.
func (rt *Router) fromContent(ch *Channel, env Envelope) {
	if env.Action == ActionPong {
		return
	}
	tab := ch.TabID()
	if tab == 0 {
		return
	}
	popouts := rt.reg.PopoutsFor(tab)
	if len(popouts) == 0 {
		if rt.pending != nil {
			rt.pending.push(toPopout, tab, env.Raw)
		}
		return
	}
	for _, p := range popouts {
		rt.forward(p, env.Raw)
	}
}

func (rt *Router) fromPopout(ch *Channel, env Envelope) {
	switch env.Action {
	case ActionPong:
		// Liveness reply, not application data.
		return
	case ActionPopoutInit:
		tab, okTab := env.tab()
		win, okWin := env.window()
		if !okTab || !okWin {
			slog.Debug("popout-init missing ids, ignored", "channel", ch.id)
			return
		}
		rt.reg.Bind(ch, tab, win)
		rt.flushPopout(ch)
		if cs := rt.reg.ContentFor(tab); cs != nil {
			rt.forwardMsg(cs, controlMsg{Action: ActionPopoutReady})
		}
	default:
		tab := ch.TabID()
		if tab == 0 {
			return
		}
		cs := rt.reg.ContentFor(tab)
		if cs == nil {
			if rt.pending != nil {
				rt.pending.push(toContent, tab, env.Raw)
			}
			return
		}
		rt.forward(cs, env.Raw)
	}
}

func (rt *Router) fromMenu(ch *Channel, env Envelope) {
	switch env.Action {
	case ActionToggleUI:
		tab, ok := env.tab()
		if !ok {
			slog.Debug("toggleUI missing tabId, ignored")
			return
		}
		rt.forward(rt.reg.ContentFor(tab), env.Raw)
	case ActionChangeViewMode:
		tab, ok := env.tab()
		if !ok {
			slog.Debug("changeViewMode missing tabId, ignored")
			return
		}
		rt.forward(rt.reg.ContentFor(tab), env.Raw)
		for _, p := range rt.reg.PopoutsFor(tab) {
			rt.forward(p, env.Raw)
		}
	case ActionOpenPopout:
		tab, ok := env.tab()
		if !ok {
			slog.Debug("openPopout missing tabId, ignored")
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), rt.opts.ExternalTimeout)
			defer cancel()
			if _, err := rt.OpenPopout(ctx, tab); err != nil {
				slog.Warn("popout window creation failed", "tab", tab, "error", err)
			}
		}()
	case ActionOpenTracking:
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), rt.opts.ExternalTimeout)
			defer cancel()
			if _, err := rt.OpenTracking(ctx); err != nil {
				slog.Warn("tracking window creation failed", "error", err)
			}
		}()
	default:
		tab, ok := env.tab()
		if !ok {
			slog.Debug("menu message without tabId, ignored", "action", env.Action)
			return
		}
		rt.forward(rt.reg.ContentFor(tab), env.Raw)
	}
}

func (rt *Router) fromTracking(ch *Channel, env Envelope) {
	switch env.Action {
	case ActionPong:
		return
	case ActionOpenForm:
		if env.URL == "" {
			slog.Debug("open-form missing url, ignored")
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), rt.opts.ExternalTimeout)
			defer cancel()
			if _, err := rt.tabs.CreateTab(ctx, env.URL); err != nil {
				slog.Warn("tab creation failed", "url", env.URL, "error", err)
			}
		}()
	case ActionStartReview:
		// With an explicit tabId the review targets one tab; otherwise
		// every content surface gets it.
		if tab, ok := env.tab(); ok {
			rt.forward(rt.reg.ContentFor(tab), env.Raw)
			return
		}
		for _, cs := range rt.reg.Contents() {
			rt.forward(cs, env.Raw)
		}
	default:
		slog.Debug("unhandled tracking message, ignored", "action", env.Action)
	}
}

// OpenPopout creates a popout window bound to a tab. The completion
// re-checks registry state: the tab may have gone away while the creation
// request was in flight, in which case the fresh window is orphaned and
// closed again.
func (rt *Router) OpenPopout(ctx context.Context, tabID int) (int, error) {
	url := fmt.Sprintf("%s?tab=%d", rt.opts.PopoutURL, tabID)
	windowID, err := rt.windows.CreateWindow(ctx, url, rt.opts.PopoutWidth, rt.opts.PopoutHeight)
	if err != nil {
		return 0, err
	}
	if rt.reg.ContentFor(tabID) == nil {
		slog.Info("tab gone during popout creation, closing window", "tab", tabID, "window", windowID)
		if err := rt.windows.RemoveWindow(ctx, windowID); err != nil {
			slog.Debug("orphaned popout close failed", "window", windowID, "error", err)
		}
		return 0, fmt.Errorf("tab %d closed during popout creation", tabID)
	}
	slog.Info("popout window created", "tab", tabID, "window", windowID)
	return windowID, nil
}

// OpenTracking creates the tracking surface window.
func (rt *Router) OpenTracking(ctx context.Context) (int, error) {
	windowID, err := rt.windows.CreateWindow(ctx, rt.opts.TrackingURL, rt.opts.TrackingWidth, rt.opts.TrackingHeight)
	if err != nil {
		return 0, err
	}
	slog.Info("tracking window created", "window", windowID)
	return windowID, nil
}

// flushPopout delivers messages queued for a tab's popout slot (paired
// variant) to a freshly bound popout, FIFO.
func (rt *Router) flushPopout(ch *Channel) {
	if rt.pending == nil {
		return
	}
	for _, msg := range rt.pending.drain(toPopout, ch.TabID()) {
		rt.forward(ch, msg)
	}
}

// flushContent delivers messages queued for a tab's content slot (paired
// variant) to a freshly registered content channel, FIFO.
func (rt *Router) flushContent(ch *Channel) {
	if rt.pending == nil {
		return
	}
	for _, msg := range rt.pending.drain(toContent, ch.TabID()) {
		rt.forward(ch, msg)
	}
}

// forward posts raw bytes to a channel. A nil destination is a no-op; a
// failed send is proof of a dead channel and unregisters it immediately.
func (rt *Router) forward(dst *Channel, data json.RawMessage) {
	if dst == nil {
		return
	}
	if err := dst.port.Send(data); err != nil {
		rt.drop(dst, "forward failed")
	}
}

func (rt *Router) forwardMsg(dst *Channel, msg controlMsg) {
	if dst == nil {
		return
	}
	if err := dst.port.Send(msg); err != nil {
		rt.drop(dst, "forward failed")
	}
}
