// Package transport accepts WebSocket connections from the extension's UI
// surfaces and feeds them into the hub as channels. Each connection gets
// one reader goroutine; frames reach the hub in transport order.
package transport

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/strandhog/porthub/internal/hub"
)

// Handler upgrades HTTP requests on /ports/{name} into hub channels.
type Handler struct {
	hub *hub.Hub
}

func NewHandler(h *hub.Hub) *Handler {
	return &Handler{hub: h}
}

// Register mounts the port endpoint on the router.
func (t *Handler) Register(r chi.Router) {
	r.Get("/ports/{name}", t.serve)
}

func (t *Handler) serve(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	meta := metaFromQuery(r.URL.Query())

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		slog.Debug("websocket upgrade failed", "name", name, "error", err)
		return
	}

	ch, err := t.hub.Attach(name, newPort(conn), meta)
	if err != nil {
		slog.Debug("channel rejected", "name", name, "error", err)
		_ = conn.Close()
		return
	}

	go t.readLoop(ch, conn)
}

func (t *Handler) readLoop(ch *hub.Channel, conn net.Conn) {
	for {
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			t.hub.HandleDisconnect(ch)
			return
		}
		t.hub.HandleMessage(ch, data)
	}
}

// metaFromQuery extracts the connection metadata a surface supplies in its
// query string (the stand-in for the extension runtime's sender info).
func metaFromQuery(q url.Values) hub.ConnMeta {
	var meta hub.ConnMeta
	if v := q.Get("tab"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			meta.TabID = id
		}
	}
	if v := q.Get("window"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			meta.WindowID = id
		}
	}
	return meta
}

// port adapts a raw WebSocket connection to hub.Port. The write mutex
// serializes router forwards with monitor probes.
type port struct {
	mu   sync.Mutex
	conn net.Conn
}

func newPort(conn net.Conn) *port {
	return &port{conn: conn}
}

func (p *port) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return wsutil.WriteServerText(p.conn, data)
}

func (p *port) Close() error {
	return p.conn.Close()
}
