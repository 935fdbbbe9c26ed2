// Package server wires HTTP handlers into a ServeMux for the bridge
// application via routing helpers.
package server

import "net/http"

// Routes configures and returns an HTTP ServeMux with all application
// routes: the bridge page, the WebSocket endpoint, the health check, and
// the vehicle catalog.
func (b *Bridge) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", b.handleIndex)
	mux.HandleFunc("/ws", b.handleWebSocket)
	mux.HandleFunc("/healthz", b.handleHealth)
	mux.HandleFunc("/api/vehicles", b.handleVehicles)
	return mux
}
