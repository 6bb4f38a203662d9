package handler

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"boardsync/internal/channel"
)

// createUpgrader creates a WebSocket upgrader with the given allowed origins
func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowedMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		allowedMap[origin] = true
	}

	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowedMap[origin]
		},
	}
}

// HandleWebSocket handles GET /ws
// 接続ごとに Hub.Serve が切断まで処理する
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := createUpgrader(h.Config.AllowedOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	log.Printf("[WebSocket] New connection from %s", r.RemoteAddr)
	h.Hub.Serve(r.Context(), channel.NewWebSocket(conn))
	log.Printf("[WebSocket] Client %s disconnected", r.RemoteAddr)
}
