package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakePort records everything sent through it and can be flipped into a
// failing state to simulate a dead transport.
type fakePort struct {
	mu     sync.Mutex
	sent   []json.RawMessage
	fail   bool
	closed int
}

func (p *fakePort) Send(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("transport gone")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.sent = append(p.sent, data)
	return nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *fakePort) setFail(fail bool) {
	p.mu.Lock()
	p.fail = fail
	p.mu.Unlock()
}

func (p *fakePort) messages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.sent))
	for i, m := range p.sent {
		out[i] = string(m)
	}
	return out
}

func (p *fakePort) actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.sent))
	for _, m := range p.sent {
		var env struct {
			Action string `json:"action"`
		}
		_ = json.Unmarshal(m, &env)
		out = append(out, env.Action)
	}
	return out
}

func (p *fakePort) countAction(action string) int {
	n := 0
	for _, a := range p.actions() {
		if a == action {
			n++
		}
	}
	return n
}

type createdWindow struct {
	id     int
	url    string
	width  int
	height int
}

// fakeWindows implements WindowManager with recorded calls.
type fakeWindows struct {
	mu        sync.Mutex
	nextID    int
	created   []createdWindow
	removed   []int
	reloaded  []int
	createErr error
	removeErr error
	reloadErr error
	createdCh chan createdWindow
}

func newFakeWindows() *fakeWindows {
	return &fakeWindows{createdCh: make(chan createdWindow, 8)}
}

func (w *fakeWindows) CreateWindow(_ context.Context, url string, width, height int) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.createErr != nil {
		return 0, w.createErr
	}
	w.nextID++
	cw := createdWindow{id: w.nextID, url: url, width: width, height: height}
	w.created = append(w.created, cw)
	select {
	case w.createdCh <- cw:
	default:
	}
	return cw.id, nil
}

func (w *fakeWindows) RemoveWindow(_ context.Context, windowID int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.removed = append(w.removed, windowID)
	return w.removeErr
}

func (w *fakeWindows) ReloadWindow(_ context.Context, windowID int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reloaded = append(w.reloaded, windowID)
	return w.reloadErr
}

func (w *fakeWindows) removedWindows() []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]int(nil), w.removed...)
}

// fakeTabs implements TabManager.
type fakeTabs struct {
	mu      sync.Mutex
	nextID  int
	urls    []string
	urlsCh  chan string
	openErr error
}

func newFakeTabs() *fakeTabs {
	return &fakeTabs{urlsCh: make(chan string, 8)}
}

func (f *fakeTabs) CreateTab(_ context.Context, url string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return 0, f.openErr
	}
	f.nextID++
	f.urls = append(f.urls, url)
	select {
	case f.urlsCh <- url:
	default:
	}
	return f.nextID, nil
}

// fakeStore implements StateRemover.
type fakeStore struct {
	mu      sync.Mutex
	removed []string
}

func (s *fakeStore) Remove(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, keys...)
	return nil
}

func (s *fakeStore) removedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.removed...)
}

type testEnv struct {
	hub     *Hub
	windows *fakeWindows
	tabs    *fakeTabs
	store   *fakeStore
}

func newTestHub(t *testing.T, opts Options) *testEnv {
	t.Helper()
	windows := newFakeWindows()
	tabs := newFakeTabs()
	store := &fakeStore{}
	if opts.PopoutURL == "" {
		opts.PopoutURL = "http://127.0.0.1:9999/popout"
	}
	if opts.TrackingURL == "" {
		opts.TrackingURL = "http://127.0.0.1:9999/tracking"
	}
	if opts.ProbeInterval == 0 {
		// Keep probes out of the way unless a test opts in.
		opts.ProbeInterval = time.Hour
	}
	return &testEnv{
		hub:     New(windows, tabs, store, nil, opts),
		windows: windows,
		tabs:    tabs,
		store:   store,
	}
}

func (e *testEnv) attachContent(t *testing.T, tabID int) (*Channel, *fakePort) {
	t.Helper()
	port := &fakePort{}
	ch, err := e.hub.Attach("content-script", port, ConnMeta{TabID: tabID})
	if err != nil {
		t.Fatalf("Attach(content-script) error = %v", err)
	}
	return ch, port
}

func (e *testEnv) attachPopout(t *testing.T, tabID, windowID int) (*Channel, *fakePort) {
	t.Helper()
	port := &fakePort{}
	ch, err := e.hub.Attach("popout", port, ConnMeta{})
	if err != nil {
		t.Fatalf("Attach(popout) error = %v", err)
	}
	e.hub.HandleMessage(ch, []byte(
		`{"action":"popout-init","tabId":`+itoa(tabID)+`,"windowId":`+itoa(windowID)+`}`))
	return ch, port
}

func (e *testEnv) attachMenu(t *testing.T) (*Channel, *fakePort) {
	t.Helper()
	port := &fakePort{}
	ch, err := e.hub.Attach("menu-port", port, ConnMeta{})
	if err != nil {
		t.Fatalf("Attach(menu-port) error = %v", err)
	}
	return ch, port
}

func (e *testEnv) attachTracking(t *testing.T, windowID int) (*Channel, *fakePort) {
	t.Helper()
	port := &fakePort{}
	ch, err := e.hub.Attach("tracking", port, ConnMeta{WindowID: windowID})
	if err != nil {
		t.Fatalf("Attach(tracking) error = %v", err)
	}
	return ch, port
}

func itoa(n int) string {
	data, _ := json.Marshal(n)
	return string(data)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
