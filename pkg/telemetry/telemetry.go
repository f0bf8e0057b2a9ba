// Package telemetry broadcasts calibration status lines ([ES]/[DR]/[RT]/
// [DM]/[PG]/[BH]/[PT]/[TQ] prefixes, spec §6) to connected websocket clients,
// for live observation of a running calibration session.
package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event is a single status line pushed to subscribers.
type Event struct {
	Time   string `json:"t"`
	Prefix string `json:"prefix"`
	Line   string `json:"line"`
}

// Broadcaster distributes status events to multiple websocket clients,
// dropping messages for any client whose outbound buffer is full rather than
// blocking the calibration loop on a slow reader.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	log     *zap.SugaredLogger
}

type client struct {
	conn *websocket.Conn
	send chan Event
}

// New constructs a Broadcaster. log may be nil.
func New(log *zap.SugaredLogger) *Broadcaster {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Broadcaster{clients: make(map[*client]struct{}), log: log}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades the connection and streams events to it until the
// client disconnects.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warnw("telemetry: upgrade failed", "err", err)
		return
	}

	c := &client{conn: conn, send: make(chan Event, 64)}
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.clients, c)
		b.mu.Unlock()
		conn.Close()
	}()

	for evt := range c.send {
		if err := conn.WriteJSON(evt); err != nil {
			return
		}
	}
}

// Broadcast pushes a status line to all connected clients. prefix is the
// bracketed status tag ([ES], [DR], etc., spec §6) and line the text after
// it; both are sent unmodified in separate Event fields.
func (b *Broadcaster) Broadcast(prefix, line string) {
	evt := Event{Time: time.Now().Format(time.RFC3339), Prefix: prefix, Line: line}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for c := range b.clients {
		select {
		case c.send <- evt:
		default:
			b.log.Debugw("telemetry: dropping event for slow client", "prefix", prefix)
		}
	}
}

// ClientCount reports the number of connected clients, for diagnostics.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
