package hub

import (
	"sort"
	"sync"
	"time"
)

// Registry holds the live channel set plus the derived per-tab indices.
// It is the only mutable shared state in the relay; every mutation goes
// through its lock.
type Registry struct {
	mu       sync.Mutex
	channels map[string]*Channel
	content  map[int]*Channel   // tabID -> content-script channel
	popouts  map[int][]*Channel // tabID -> popouts, registration order
}

func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]*Channel),
		content:  make(map[int]*Channel),
		popouts:  make(map[int][]*Channel),
	}
}

// Register inserts the channel. A content-script channel supersedes any
// previous content-script channel for the same tab: the old entry is
// evicted from all indices (returned so the caller can log it) but its
// transport is left alone, so its own later disconnect is a no-op.
func (r *Registry) Register(ch *Channel) (evicted *Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch.kind == KindContentScript {
		tab := ch.TabID()
		if old, ok := r.content[tab]; ok && old != ch {
			delete(r.channels, old.id)
			evicted = old
		}
		r.content[tab] = ch
	}
	if ch.kind == KindPopout {
		if tab := ch.TabID(); tab != 0 {
			r.popouts[tab] = append(r.popouts[tab], ch)
		}
	}
	r.channels[ch.id] = ch
	return evicted
}

// Bind attaches a popout channel to its tab and window once popout-init
// arrives. Rebinding moves the channel between tab index entries.
func (r *Registry) Bind(ch *Channel, tabID, windowID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.channels[ch.id]; !ok {
		return
	}
	if ch.kind == KindPopout {
		if old := ch.TabID(); old != 0 && old != tabID {
			r.popouts[old] = without(r.popouts[old], ch)
		}
		if !contains(r.popouts[tabID], ch) {
			r.popouts[tabID] = append(r.popouts[tabID], ch)
		}
	}
	ch.bind(tabID, windowID)
}

// ContentFor returns the content-script channel for a tab, or nil.
func (r *Registry) ContentFor(tabID int) *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.content[tabID]
}

// PopoutsFor returns the popout channels bound to a tab in registration order.
func (r *Registry) PopoutsFor(tabID int) []*Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Channel(nil), r.popouts[tabID]...)
}

// ByWindow returns every channel whose owning window matches.
func (r *Registry) ByWindow(windowID int) []*Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Channel
	for _, ch := range r.channels {
		if ch.WindowID() == windowID {
			out = append(out, ch)
		}
	}
	return out
}

// Contents returns every registered content-script channel.
func (r *Registry) Contents() []*Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Channel, 0, len(r.content))
	for _, ch := range r.content {
		out = append(out, ch)
	}
	return out
}

// Unregister removes the channel from all indices. Idempotent; returns true
// only when the entry was actually present.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[id]
	if !ok {
		return false
	}
	delete(r.channels, id)
	if tab := ch.TabID(); tab != 0 {
		if r.content[tab] == ch {
			delete(r.content, tab)
		}
		if filtered := without(r.popouts[tab], ch); len(filtered) > 0 {
			r.popouts[tab] = filtered
		} else {
			delete(r.popouts, tab)
		}
	}
	return true
}

// Len returns the number of registered channels.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

// CountByKind returns channel counts keyed by kind name.
func (r *Registry) CountByKind() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int)
	for _, ch := range r.channels {
		counts[ch.kind.String()]++
	}
	return counts
}

// ChannelInfo is a read-only view of one registry entry.
type ChannelInfo struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	State    string    `json:"state"`
	TabID    int       `json:"tab_id,omitempty"`
	WindowID int       `json:"window_id,omitempty"`
	LastSeen time.Time `json:"last_seen"`
}

// Snapshot returns a stable view of the registry for the admin API.
func (r *Registry) Snapshot() []ChannelInfo {
	r.mu.Lock()
	chans := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		chans = append(chans, ch)
	}
	r.mu.Unlock()

	out := make([]ChannelInfo, 0, len(chans))
	for _, ch := range chans {
		out = append(out, ChannelInfo{
			ID:       ch.id,
			Kind:     ch.kind.String(),
			State:    ch.State().String(),
			TabID:    ch.TabID(),
			WindowID: ch.WindowID(),
			LastSeen: ch.LastSeen(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func without(chans []*Channel, ch *Channel) []*Channel {
	out := chans[:0]
	for _, c := range chans {
		if c != ch {
			out = append(out, c)
		}
	}
	return out
}

func contains(chans []*Channel, ch *Channel) bool {
	for _, c := range chans {
		if c == ch {
			return true
		}
	}
	return false
}
