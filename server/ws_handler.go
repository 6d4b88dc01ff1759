package server

import (
	"net/http"

	"github.com/lukewaehner/KijayKolder-LinksHub/core/realtime"
	"github.com/lukewaehner/KijayKolder-LinksHub/logger"

	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ChangeFeedHandler subscribes a websocket to one table's change events:
// /ws?table=tracks. The uploads feed needs an admin session.
func (h *APIHandler) ChangeFeedHandler(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("table")
	switch table {
	case realtime.TopicTracks, realtime.TopicVideos:
	case realtime.TopicUploads:
		ok, err := h.authenticated(r)
		if err != nil || !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Unauthorized"})
			return
		}
	default:
		writeError(w, r, "subscribe", invalid("unknown table %q", table))
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := realtime.NewClient(h.hub, conn, table)
	h.hub.Register(client)
	go client.WritePump()
	client.ReadPump()
}
