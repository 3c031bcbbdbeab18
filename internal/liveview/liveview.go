// Package liveview exposes flvdemux events over a WebSocket for a
// browser-based debug viewer, mirroring the teacher's
// device_connect/api.Server + handleWebSocket structurally: one HTTP server,
// one upgrader, one read/write goroutine pair per connection. Here the
// payload forwarded is a demux event, not a WebRTC signaling message.
package liveview

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/dchest/uniuri"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/streamworks/flvdemux/internal/flvdemux"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wireEvent is the JSON shape forwarded to a browser subscriber: a thin
// projection of flvdemux.Event that stringifies caps instead of exposing
// the internal Description type.
type wireEvent struct {
	Kind       string `json:"kind"`
	StreamID   int    `json:"streamId,omitempty"`
	StreamKind string `json:"streamKind,omitempty"`
	Caps       string `json:"caps,omitempty"`
	Bytes      int    `json:"bytes,omitempty"`
	PTSNanos   int64  `json:"ptsNanos,omitempty"`
	KeyFrame   bool   `json:"keyFrame,omitempty"`
}

func toWireEvent(ev flvdemux.Event) wireEvent {
	w := wireEvent{Kind: eventKindName(ev.Kind)}
	switch ev.Kind {
	case flvdemux.EventStreamAdded, flvdemux.EventStreamChanged:
		w.StreamKind = string(ev.Stream.Kind)
		w.Caps = ev.Stream.Caps.String()
	case flvdemux.EventBufferForStream:
		w.StreamID = ev.StreamID
		w.Bytes = len(ev.Buffer.Data)
		w.PTSNanos = ev.Buffer.PTS
		w.KeyFrame = !ev.Buffer.DeltaUnit
	}
	return w
}

func eventKindName(k flvdemux.EventKind) string {
	switch k {
	case flvdemux.EventNeedMoreData:
		return "need_more_data"
	case flvdemux.EventAgain:
		return "again"
	case flvdemux.EventStreamAdded:
		return "stream_added"
	case flvdemux.EventStreamChanged:
		return "stream_changed"
	case flvdemux.EventStreamsChanged:
		return "streams_changed"
	case flvdemux.EventHaveAllStreams:
		return "have_all_streams"
	case flvdemux.EventBufferForStream:
		return "buffer"
	}
	return "unknown"
}

// subscriber is one connected viewer.
type subscriber struct {
	id   string
	conn *websocket.Conn
	send chan wireEvent
}

// Hub fans flvdemux events out to every connected WebSocket viewer.
type Hub struct {
	log *slog.Logger

	mu   sync.Mutex
	subs map[string]*subscriber
}

// NewHub returns an empty Hub. logger may be nil.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{log: logger, subs: map[string]*subscriber{}}
}

// Broadcast forwards ev to every connected subscriber. Slow subscribers are
// dropped rather than allowed to block the demuxer's single-threaded loop.
func (h *Hub) Broadcast(ev flvdemux.Event) {
	w := toWireEvent(ev)
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		select {
		case sub.send <- w:
		default:
			h.log.Warn("liveview: dropping slow subscriber", "id", id)
			delete(h.subs, id)
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket and registers a new
// subscriber for the lifetime of the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("liveview: upgrade failed", "error", err)
		return
	}

	sub := &subscriber{
		id:   uuid.NewString() + "-" + uniuri.NewLen(8),
		conn: conn,
		send: make(chan wireEvent, 64),
	}
	h.register(sub)
	defer h.unregister(sub)

	go h.writeLoop(sub)
	h.readLoop(sub)
}

func (h *Hub) register(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[sub.id] = sub
	h.log.Info("liveview: subscriber connected", "id", sub.id)
}

func (h *Hub) unregister(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub.id)
	h.mu.Unlock()
	close(sub.send)
	sub.conn.Close()
	h.log.Info("liveview: subscriber disconnected", "id", sub.id)
}

func (h *Hub) writeLoop(sub *subscriber) {
	for ev := range sub.send {
		if err := sub.conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

// readLoop drains (and discards) inbound frames so the connection's
// keepalive/close control frames are still processed; this viewer takes no
// commands from the browser.
func (h *Hub) readLoop(sub *subscriber) {
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("liveview: read error", "id", sub.id, "error", err)
			}
			return
		}
	}
}
