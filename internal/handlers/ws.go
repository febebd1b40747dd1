package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"sticker-press/internal/convert"
	"sticker-press/internal/logging"
)

// JobEvents upgrades the connection to a WebSocket and streams job
// snapshots: the current state immediately, then every subsequent change
// until the client disconnects.
func (h *Handlers) JobEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	snap, ok := h.controller.Get(id)
	if !ok {
		writeJSONError(w, "job not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("websocket upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	if h.subs[id] == nil {
		h.subs[id] = make(map[*websocket.Conn]struct{})
	}
	h.subs[id][conn] = struct{}{}
	h.mu.Unlock()

	if err := conn.WriteJSON(snap); err != nil {
		logging.Debug("websocket initial write failed: %v", err)
	}

	// Block until the client goes away; reads are only used to detect
	// disconnection.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.subs[id], conn)
	if len(h.subs[id]) == 0 {
		delete(h.subs, id)
	}
	h.mu.Unlock()
	conn.Close()
}

// broadcast fans a snapshot out to the job's subscribers. Connections that
// fail to write are dropped; their read loop will clean them up.
func (h *Handlers) broadcast(snap convert.Snapshot) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.subs[snap.ID]))
	for conn := range h.subs[snap.ID] {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(snap); err != nil {
			logging.Debug("websocket write failed, closing: %v", err)
			conn.Close()
		}
	}
}
