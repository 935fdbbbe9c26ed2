// Package server exposes the HTTP surface: WebSocket upgrades, the bridge
// page, the health check, and the read-only vehicle catalog endpoint.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/bridgesim/starbridge/internal/catalog"
	"github.com/bridgesim/starbridge/internal/registry"
)

// Bridge bundles the hub, session registry, vehicle catalog, and
// configuration behind the HTTP surface. One Bridge per server process.
type Bridge struct {
	cfg      Config
	hub      *Hub
	catalog  *catalog.Catalog
	upgrader websocket.Upgrader
}

// NewBridge wires a Bridge from its parts. The hub is created with a fresh
// session registry; call Hub().Run in a goroutine before serving traffic.
func NewBridge(cfg Config, cat *catalog.Catalog) *Bridge {
	policy := newOriginPolicy(cfg.AllowedOrigins)
	return &Bridge{
		cfg:     cfg,
		hub:     NewHub(registry.New()),
		catalog: cat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.check,
		},
	}
}

// Hub returns the bridge's hub for lifecycle coordination.
func (b *Bridge) Hub() *Hub {
	return b.hub
}

// handleWebSocket upgrades the HTTP connection and registers the client
// with the hub, which launches its read/write pumps.
func (b *Bridge) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "err", err)
		return
	}

	client := NewClient(conn, b.hub, r.RemoteAddr, b.cfg)
	b.hub.register <- client
}

// handleIndex serves the single-page bridge UI.
func (b *Bridge) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := fmt.Fprint(w, bridgePageHTML); err != nil {
		slog.Warn("error writing bridge page", "err", err)
	}
}

// handleHealth provides a simple health check endpoint.
func (b *Bridge) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "Starbridge server is running!")
}

// handleVehicles serves the vehicle catalog as read-only JSON.
func (b *Bridge) handleVehicles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed.", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(b.catalog.All()); err != nil {
		slog.Warn("error writing vehicle catalog", "err", err)
	}
}
