// Package browser implements the relay's window and tab management
// collaborator over the Chrome DevTools Protocol. Targets are addressed by
// synthetic integer ids; the manager owns the id <-> CDP target mapping.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// LifecycleListener receives tab/window lifecycle notifications derived
// from browser target events. Implementations must be safe for concurrent
// calls; the manager invokes them on their own goroutines.
type LifecycleListener interface {
	TabRemoved(tabID int)
	WindowRemoved(windowID int)
	TabLoading(tabID int)
}

// TabInfo describes a tracked browser tab.
type TabInfo struct {
	ID       int    `json:"id"`
	TargetID string `json:"target_id"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
}

type tabEntry struct {
	info   TabInfo
	ctx    context.Context
	cancel context.CancelFunc
}

// Manager manages CDP connections to browser targets.
type Manager struct {
	cdpURL   string
	listener LifecycleListener

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu           sync.Mutex
	nextTabID    int
	nextWindowID int
	tabs         map[target.ID]*tabEntry
	windows      map[int]target.ID
	winByTarget  map[target.ID]int
}

func NewManager(cdpURL string) *Manager {
	return &Manager{
		cdpURL:      cdpURL,
		tabs:        make(map[target.ID]*tabEntry),
		windows:     make(map[int]target.ID),
		winByTarget: make(map[target.ID]int),
	}
}

// SetListener installs the lifecycle listener. Must be called before
// Connect.
func (m *Manager) SetListener(l LifecycleListener) {
	m.listener = l
}

// Connect attaches to the browser, enables target discovery, and starts
// tracking existing page targets.
func (m *Manager) Connect(ctx context.Context) error {
	_ = ctx
	slog.Info("connecting to browser", "cdp_url", m.cdpURL)

	m.allocCtx, m.allocCancel = chromedp.NewRemoteAllocator(context.Background(), m.cdpURL)
	m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocCtx)

	if err := chromedp.Run(m.browserCtx); err != nil {
		return newError(CodeCDPUnavailable, "failed to connect to browser", err)
	}

	chromedp.ListenBrowser(m.browserCtx, m.onBrowserEvent)
	if err := chromedp.Run(m.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.SetDiscoverTargets(true).Do(ctx)
	})); err != nil {
		return newError(CodeCDPUnavailable, "failed to enable target discovery", err)
	}

	targets, err := chromedp.Targets(m.browserCtx)
	if err != nil {
		return newError(CodeCDPUnavailable, "failed to enumerate targets", err)
	}
	tracked := 0
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if m.trackTarget(t.TargetID, t.URL, t.Title) != nil {
			tracked++
		}
	}

	slog.Info("browser connected", "tabs", tracked)
	return nil
}

// Close detaches from the browser. The browser itself keeps running.
func (m *Manager) Close() error {
	m.mu.Lock()
	for _, entry := range m.tabs {
		entry.cancel()
	}
	m.tabs = make(map[target.ID]*tabEntry)
	m.mu.Unlock()

	if m.browserCancel != nil {
		m.browserCancel()
	}
	if m.allocCancel != nil {
		m.allocCancel()
	}
	slog.Info("browser manager closed")
	return nil
}

// CreateWindow opens a detached window hosting url and returns its
// synthetic window id.
func (m *Manager) CreateWindow(ctx context.Context, url string, width, height int) (int, error) {
	runCtx, cancel := m.runCtx(ctx)
	defer cancel()

	var targetID target.ID
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		targetID, err = target.CreateTarget(url).
			WithNewWindow(true).
			WithWidth(int64(width)).
			WithHeight(int64(height)).
			Do(ctx)
		return err
	}))
	if err != nil {
		return 0, newError(CodeCDPUnavailable, "window creation failed", err)
	}

	m.mu.Lock()
	// Target discovery may have won the race and registered the fresh
	// window as an ordinary tab; undo that.
	if entry, ok := m.tabs[targetID]; ok {
		entry.cancel()
		delete(m.tabs, targetID)
	}
	m.nextWindowID++
	windowID := m.nextWindowID
	m.windows[windowID] = targetID
	m.winByTarget[targetID] = windowID
	m.mu.Unlock()

	slog.Info("window created", "window", windowID, "target_id", targetID, "url", truncateURL(url))
	return windowID, nil
}

// RemoveWindow closes a window. Unknown or already-closed windows are not
// an error.
func (m *Manager) RemoveWindow(ctx context.Context, windowID int) error {
	m.mu.Lock()
	targetID, ok := m.windows[windowID]
	if ok {
		delete(m.windows, windowID)
		delete(m.winByTarget, targetID)
	}
	m.mu.Unlock()
	if !ok {
		slog.Debug("window already gone", "window", windowID)
		return nil
	}

	runCtx, cancel := m.runCtx(ctx)
	defer cancel()
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.CloseTarget(targetID).Do(ctx)
	}))
	if err != nil {
		slog.Debug("window close failed", "window", windowID, "error", err)
	}
	return nil
}

// ReloadWindow reloads the page hosted by a window.
func (m *Manager) ReloadWindow(ctx context.Context, windowID int) error {
	m.mu.Lock()
	targetID, ok := m.windows[windowID]
	m.mu.Unlock()
	if !ok {
		return newError(CodeWindowNotFound, fmt.Sprintf("window %d not tracked", windowID), nil)
	}

	runCtx, cancel := m.runCtx(ctx)
	defer cancel()
	winCtx, winCancel := chromedp.NewContext(runCtx, chromedp.WithTargetID(targetID))
	defer winCancel()
	if err := chromedp.Run(winCtx, chromedp.Reload()); err != nil {
		return newError(CodeWindowNotFound, fmt.Sprintf("reload window %d", windowID), err)
	}
	return nil
}

// CreateTab opens a regular tab and returns its synthetic tab id.
func (m *Manager) CreateTab(ctx context.Context, url string) (int, error) {
	runCtx, cancel := m.runCtx(ctx)
	defer cancel()

	var targetID target.ID
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		targetID, err = target.CreateTarget(url).Do(ctx)
		return err
	}))
	if err != nil {
		return 0, newError(CodeCDPUnavailable, "tab creation failed", err)
	}

	entry := m.trackTarget(targetID, url, "")
	if entry == nil {
		return 0, newError(CodeCDPUnavailable, "created tab vanished", nil)
	}
	return entry.info.ID, nil
}

// ReloadTab reloads a tab by id.
func (m *Manager) ReloadTab(ctx context.Context, tabID int) error {
	entry := m.tabByID(tabID)
	if entry == nil {
		return newError(CodeTabNotFound, fmt.Sprintf("tab %d not tracked", tabID), nil)
	}

	runCtx, cancel := m.runCtx(ctx)
	defer cancel()
	tabCtx, tabCancel := chromedp.NewContext(runCtx, chromedp.WithTargetID(target.ID(entry.info.TargetID)))
	defer tabCancel()
	if err := chromedp.Run(tabCtx, chromedp.Reload()); err != nil {
		return newError(CodeTabNotFound, fmt.Sprintf("reload tab %d", tabID), err)
	}
	return nil
}

// QueryTabs enumerates page targets, syncing the tracked set, and returns
// them sorted by tab id. Windows the manager owns are excluded.
func (m *Manager) QueryTabs(ctx context.Context) ([]TabInfo, error) {
	runCtx, cancel := m.runCtx(ctx)
	defer cancel()

	targets, err := chromedp.Targets(runCtx)
	if err != nil {
		return nil, newError(CodeCDPUnavailable, "failed to enumerate targets", err)
	}

	out := make([]TabInfo, 0, len(targets))
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		m.mu.Lock()
		_, isWindow := m.winByTarget[t.TargetID]
		m.mu.Unlock()
		if isWindow {
			continue
		}
		if entry := m.trackTarget(t.TargetID, t.URL, t.Title); entry != nil {
			out = append(out, entry.info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// TabCount returns the number of tracked tabs.
func (m *Manager) TabCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tabs)
}

func (m *Manager) tabByID(tabID int) *tabEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range m.tabs {
		if entry.info.ID == tabID {
			return entry
		}
	}
	return nil
}

// trackTarget registers a page target under a new tab id, attaches to it,
// and wires page events. Returns the existing entry when already tracked
// and nil for targets owned as windows.
func (m *Manager) trackTarget(id target.ID, url, title string) *tabEntry {
	m.mu.Lock()
	if entry, ok := m.tabs[id]; ok {
		m.mu.Unlock()
		return entry
	}
	if _, isWindow := m.winByTarget[id]; isWindow {
		m.mu.Unlock()
		return nil
	}
	m.nextTabID++
	tabID := m.nextTabID
	m.mu.Unlock()

	tabCtx, cancel := chromedp.NewContext(m.browserCtx, chromedp.WithTargetID(id))
	entry := &tabEntry{
		info:   TabInfo{ID: tabID, TargetID: string(id), URL: url, Title: title},
		ctx:    tabCtx,
		cancel: cancel,
	}

	m.mu.Lock()
	if existing, ok := m.tabs[id]; ok {
		m.mu.Unlock()
		cancel()
		return existing
	}
	m.tabs[id] = entry
	m.mu.Unlock()

	if err := chromedp.Run(tabCtx, page.Enable()); err != nil {
		slog.Warn("page domain enable failed", "tab", tabID, "error", err)
	}
	chromedp.ListenTarget(tabCtx, m.tabEvents(tabID, id))

	slog.Info("tracking tab", "tab", tabID, "target_id", id, "url", truncateURL(url))
	return entry
}

func (m *Manager) tabEvents(tabID int, targetID target.ID) func(ev any) {
	return func(ev any) {
		switch e := ev.(type) {
		case *page.EventFrameNavigated:
			if e.Frame.ParentID == "" {
				m.setTabURL(targetID, e.Frame.URL)
				m.notifyTabLoading(tabID)
			}
		case *page.EventNavigatedWithinDocument:
			m.setTabURL(targetID, e.URL)
		}
	}
}

func (m *Manager) onBrowserEvent(ev any) {
	switch e := ev.(type) {
	case *target.EventTargetCreated:
		info := e.TargetInfo
		if info.Type != "page" {
			return
		}
		m.trackTarget(info.TargetID, info.URL, info.Title)
	case *target.EventTargetDestroyed:
		m.handleDestroyed(e.TargetID)
	case *target.EventTargetInfoChanged:
		if e.TargetInfo.Type == "page" {
			m.setTabURL(e.TargetInfo.TargetID, e.TargetInfo.URL)
		}
	}
}

func (m *Manager) handleDestroyed(id target.ID) {
	m.mu.Lock()
	if windowID, ok := m.winByTarget[id]; ok {
		delete(m.winByTarget, id)
		delete(m.windows, windowID)
		m.mu.Unlock()
		slog.Info("window target destroyed", "window", windowID)
		m.notifyWindowRemoved(windowID)
		return
	}
	if entry, ok := m.tabs[id]; ok {
		delete(m.tabs, id)
		m.mu.Unlock()
		entry.cancel()
		slog.Info("tab target destroyed", "tab", entry.info.ID)
		m.notifyTabRemoved(entry.info.ID)
		return
	}
	m.mu.Unlock()
}

func (m *Manager) setTabURL(id target.ID, url string) {
	m.mu.Lock()
	if entry, ok := m.tabs[id]; ok {
		entry.info.URL = url
	}
	m.mu.Unlock()
}

// Listener calls run on their own goroutines so CDP event dispatch never
// blocks on reconciliation work.
func (m *Manager) notifyTabRemoved(tabID int) {
	if m.listener == nil {
		return
	}
	go m.listener.TabRemoved(tabID)
}

func (m *Manager) notifyWindowRemoved(windowID int) {
	if m.listener == nil {
		return
	}
	go m.listener.WindowRemoved(windowID)
}

func (m *Manager) notifyTabLoading(tabID int) {
	if m.listener == nil {
		return
	}
	go m.listener.TabLoading(tabID)
}

// runCtx derives an operation context from the browser session, carrying
// over the caller's deadline.
func (m *Manager) runCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(m.browserCtx, deadline)
	}
	return context.WithCancel(m.browserCtx)
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
