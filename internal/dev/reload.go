// Package dev holds development-mode plumbing. Nothing here is mounted
// in production builds.
package dev

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// ReloadPath is the WebSocket endpoint browsers subscribe to for
// live-reload notifications.
const ReloadPath = "/_traverse/reload"

// ReloadKind is the kind of reload notification.
type ReloadKind string

const (
	// ReloadFull asks the browser to reload the whole document.
	ReloadFull ReloadKind = "reload"

	// ReloadError shows a build error overlay instead of reloading.
	ReloadError ReloadKind = "error"

	// ReloadClear dismisses the error overlay.
	ReloadClear ReloadKind = "clear"
)

// ReloadNotice is the wire shape pushed to subscribed browsers.
type ReloadNotice struct {
	Kind  ReloadKind `json:"kind"`
	Error string     `json:"error,omitempty"`
}

// ReloadHub fans reload notifications out to every connected browser.
type ReloadHub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewReloadHub creates an empty hub.
func NewReloadHub(logger *slog.Logger) *ReloadHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReloadHub{
		logger: logger,
		conns:  make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dev only; the hub is never mounted in production.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the WebSocket subscription endpoint.
func (h *ReloadHub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Debug("reload upgrade failed", "error", err)
			return
		}

		h.mu.Lock()
		h.conns[conn] = struct{}{}
		h.mu.Unlock()

		// Hold the connection open; browsers never send anything.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
		conn.Close()
	}
}

// NotifyReload tells every browser to reload.
func (h *ReloadHub) NotifyReload() {
	h.broadcast(ReloadNotice{Kind: ReloadFull})
}

// NotifyError shows a build error on every browser.
func (h *ReloadHub) NotifyError(msg string) {
	h.broadcast(ReloadNotice{Kind: ReloadError, Error: msg})
}

// ClearError dismisses the error overlay on every browser.
func (h *ReloadHub) ClearError() {
	h.broadcast(ReloadNotice{Kind: ReloadClear})
}

// Subscribers returns the number of connected browsers.
func (h *ReloadHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close drops every connection.
func (h *ReloadHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.Close()
		delete(h.conns, conn)
	}
}

func (h *ReloadHub) broadcast(n ReloadNotice) {
	data, err := json.Marshal(n)
	if err != nil {
		return
	}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.mu.Lock()
			delete(h.conns, conn)
			h.mu.Unlock()
			conn.Close()
		}
	}
}

// ClientScript is injected into rendered documents in development so
// browsers subscribe to the hub.
const ClientScript = `
<script>
(function() {
    'use strict';
    var delay = 1000;
    function connect() {
        var proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
        var ws = new WebSocket(proto + '//' + location.host + '` + ReloadPath + `');
        ws.onopen = function() { delay = 1000; };
        ws.onmessage = function(e) {
            var msg;
            try { msg = JSON.parse(e.data); } catch (err) { return; }
            if (msg.kind === 'reload') location.reload();
            if (msg.kind === 'error') console.error('[traverse] build error:', msg.error);
        };
        ws.onclose = function() {
            setTimeout(function() {
                delay = Math.min(delay * 2, 30000);
                connect();
            }, delay);
        };
        ws.onerror = function() { ws.close(); };
    }
    connect();
})();
</script>
`
