// Package bridge implements the C10 live feed bridge (spec §4.9): a
// secondary consumer of the same normalized events that pushes
// classified {tid, lat, lon, alt, icon, ts} snapshots to every connected
// viewer session over a websocket, dropping disconnected viewers without
// retry.
//
// Grounded on other_examples' maniack-miniflightradar backend-ws.go
// registry pattern (a mutex-guarded set of connections with
// register/unregister/broadcast), reimplemented here on top of
// github.com/gorilla/websocket rather than the hand-rolled frame writer,
// since that library is already the teacher-pack's real dependency for
// this concern (mmp-vice/pkg/server/client.go).
package bridge

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/securingskies/agcs/internal/asset"
)

// Event is one outbound live-feed push (spec §6).
type Event struct {
	TID  string  `json:"tid"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Alt  float64 `json:"alt"`
	Icon string  `json:"icon"`
	TS   int64   `json:"ts"`
}

// iconFor classifies an asset kind/topic family into one of the fixed
// icon names of spec §6 (icon ∈ {mobile, plane, helicopter, controller,
// question}), grounded on original_source/securingskies/web/server.py's
// icon-by-type lookup.
func iconFor(kind asset.Kind, mode string) string {
	switch kind {
	case asset.KindGroundOperator:
		return "mobile"
	case asset.KindGroundController:
		return "controller"
	case asset.KindAirVendorA, asset.KindAirRemoteID:
		if mode == "Hovering" || mode == "Hover" {
			return "helicopter"
		}
		return "plane"
	default:
		return "question"
	}
}

// sentinelLatDeg mirrors internal/fleet's Null Island threshold: an
// event with |lat| <= this is never pushed to viewers (spec §4.9).
const sentinelLatDeg = 1.0

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// conn is one registered viewer session.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(ev)
}

// Hub tracks connected viewer sessions and fans live-feed events out to
// all of them. No history is kept: "latest wins per tid" (spec §4.9).
type Hub struct {
	mu    sync.RWMutex
	conns map[*conn]struct{}
	log   *slog.Logger
	now   func() time.Time
}

// NewHub builds an empty Hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{conns: make(map[*conn]struct{}), log: log, now: time.Now}
}

// ServeHTTP upgrades the request to a websocket and registers the
// resulting connection as a viewer session until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("bridge: upgrade failed", "error", err)
		return
	}

	c := &conn{ws: ws}
	h.register(c)
	defer h.unregister(c)

	// Drain and discard any client frames (pings/close); a viewer session
	// is receive-only from the hub's perspective.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) register(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
	_ = c.ws.Close()
}

// Push sends one event to every connected viewer, skipping assets whose
// position is the Null Island sentinel. A viewer whose send fails is
// dropped without retry (spec §4.9 "Disconnected viewers are dropped
// without retry").
func (h *Hub) Push(rec asset.Record) {
	if rec.Lat == nil || rec.Lon == nil {
		return
	}
	if v := *rec.Lat; v >= -sentinelLatDeg && v <= sentinelLatDeg {
		return
	}

	alt := 0.0
	if rec.Alt != nil {
		alt = *rec.Alt
	}

	ev := Event{
		TID:  rec.TID,
		Lat:  *rec.Lat,
		Lon:  *rec.Lon,
		Alt:  alt,
		Icon: iconFor(rec.Kind, rec.Mode),
		TS:   h.now().Unix(),
	}

	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.send(ev); err != nil {
			h.unregister(c)
		}
	}
}

// ConnectionCount reports the number of currently registered viewers.
// The Prometheus bridge gauge (internal/metrics) is not updated from it.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
