package hub

import (
	"encoding/json"
	"sync"
)

// The paired relay variant buffers content<->popout messages whose recipient
// is not yet connected and flushes them FIFO the moment a matching channel
// registers. The multi-tab variant never queues; unreachable forwards are
// dropped. The two behaviors are mutually exclusive by construction.

type direction int

const (
	toPopout direction = iota
	toContent
)

type pendingKey struct {
	dir   direction
	tabID int
}

type pendingQueue struct {
	mu sync.Mutex
	q  map[pendingKey][]json.RawMessage
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{q: make(map[pendingKey][]json.RawMessage)}
}

func (p *pendingQueue) push(dir direction, tabID int, data json.RawMessage) {
	p.mu.Lock()
	key := pendingKey{dir: dir, tabID: tabID}
	p.q[key] = append(p.q[key], data)
	p.mu.Unlock()
}

// drain removes and returns all buffered messages for one recipient slot.
func (p *pendingQueue) drain(dir direction, tabID int) []json.RawMessage {
	p.mu.Lock()
	key := pendingKey{dir: dir, tabID: tabID}
	msgs := p.q[key]
	delete(p.q, key)
	p.mu.Unlock()
	return msgs
}
