package triage

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// SnapshotHub fans out feed snapshots to in-process subscribers.
type SnapshotHub struct {
	mu     sync.RWMutex
	subs   map[int]chan Snapshot
	next   int
	latest *Snapshot
}

// NewSnapshotHub creates an empty hub.
func NewSnapshotHub() *SnapshotHub {
	return &SnapshotHub{subs: make(map[int]chan Snapshot)}
}

// Publish delivers snapshot to every subscriber. A subscriber that has not
// read the previous snapshot only sees the newest one.
func (h *SnapshotHub) Publish(_ context.Context, snapshot Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = &snapshot
	for _, ch := range h.subs {
		publishLatest(ch, snapshot)
	}
}

// Latest returns the most recently published snapshot.
func (h *SnapshotHub) Latest() (Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latest == nil {
		return Snapshot{}, false
	}
	return *h.latest, true
}

// Subscribe returns a channel of snapshots and a cancel func. The latest
// snapshot, if any, is delivered immediately.
func (h *SnapshotHub) Subscribe() (<-chan Snapshot, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan Snapshot, 1)
	if h.latest != nil {
		ch <- *h.latest
	}
	h.subs[id] = ch
	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Subscribers reports the number of attached subscribers.
func (h *SnapshotHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades the request and streams snapshots as JSON.
func (h *SnapshotHub) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	snapshots, cancel := h.Subscribe()
	defer cancel()

	// The read loop only exists to notice the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-gone:
			return
		case snapshot, ok := <-snapshots:
			if !ok {
				return
			}
			if err := conn.WriteJSON(snapshot); err != nil {
				return
			}
		}
	}
}

// ServeSSE streams snapshots as Server-Sent Events.
func (h *SnapshotHub) ServeSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	snapshots, cancel := h.Subscribe()
	defer cancel()

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case snapshot, ok := <-snapshots:
			if !ok {
				return
			}
			payload, err := json.Marshal(snapshot)
			if err != nil {
				return
			}
			if _, err := w.Write([]byte("event: snapshot\ndata: ")); err != nil {
				return
			}
			if _, err := w.Write(payload); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}
