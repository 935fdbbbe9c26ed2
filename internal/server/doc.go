// Package server implements the core HTTP and WebSocket functionality of
// the Starbridge bridge simulator: a hub that relays join and power
// distribution events between connected crew stations.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, the event protocol, routing, and HTTP handlers
// to keep the codebase maintainable and testable as the project grows.
package server
