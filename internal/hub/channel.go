package hub

import (
	"sync"
	"time"
)

// Kind classifies a channel by the surface that opened it.
type Kind int

const (
	KindContentScript Kind = iota
	KindPopout
	KindTracking
	KindMenu
)

func (k Kind) String() string {
	switch k {
	case KindContentScript:
		return "content-script"
	case KindPopout:
		return "popout"
	case KindTracking:
		return "tracking"
	case KindMenu:
		return "menu"
	}
	return "unknown"
}

// State tracks a channel's position in its lifecycle.
type State int

const (
	// StateConnecting means the channel is registered but not yet eligible
	// for routing (a popout that has not sent popout-init).
	StateConnecting State = iota
	StateBound
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateBound:
		return "bound"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Port is the transport half of a channel: a message-oriented writer to one
// external context. Send must serialize concurrent calls; a returned error
// is terminal for the channel.
type Port interface {
	Send(v any) error
	Close() error
}

// Channel is one registered connection plus its routing metadata.
// Tab and window ids use 0 as "unbound"; real ids start at 1.
type Channel struct {
	id   string
	kind Kind
	port Port

	mu       sync.Mutex
	state    State
	tabID    int
	windowID int
	lastSeen time.Time

	done chan struct{}
	stop sync.Once
}

func newChannel(id string, kind Kind, port Port) *Channel {
	return &Channel{
		id:       id,
		kind:     kind,
		port:     port,
		lastSeen: time.Now().UTC(),
		done:     make(chan struct{}),
	}
}

func (c *Channel) ID() string { return c.id }

func (c *Channel) Kind() Kind { return c.kind }

func (c *Channel) TabID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tabID
}

func (c *Channel) WindowID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.windowID
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

func (c *Channel) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now().UTC()
	c.mu.Unlock()
}

func (c *Channel) bind(tabID, windowID int) {
	c.mu.Lock()
	if tabID != 0 {
		c.tabID = tabID
	}
	if windowID != 0 {
		c.windowID = windowID
	}
	if c.state == StateConnecting {
		c.state = StateBound
	}
	c.mu.Unlock()
}

func (c *Channel) markBound() {
	c.mu.Lock()
	if c.state == StateConnecting {
		c.state = StateBound
	}
	c.mu.Unlock()
}

// terminate moves the channel to its absorbing state. It returns true only
// for the first caller, so disconnect and probe failure cannot both tear
// the channel down.
func (c *Channel) terminate() bool {
	fired := false
	c.stop.Do(func() {
		close(c.done)
		fired = true
	})
	c.mu.Lock()
	c.state = StateTerminated
	c.mu.Unlock()
	return fired
}
