// Package server coordinates client registration, event dispatch, and
// connection cleanup for the bridge WebSocket system via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bridgesim/starbridge/internal/registry"
)

// inboundEvent is one decoded client frame queued for the hub. raw holds the
// original envelope bytes so pass-through events can be relayed unchanged.
type inboundEvent struct {
	sender *Client
	env    Envelope
	raw    []byte
}

// Hub owns the session registry and all WebSocket client connections. It
// consumes registration, unregistration, and inbound events on a single
// goroutine, so a join's registry write and the roster broadcast that
// follows it are atomic relative to every other event.
type Hub struct {
	registry   *registry.Registry
	clients    map[*Client]bool
	inbound    chan inboundEvent
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub backed by the given session registry. The returned
// Hub is ready to manage WebSocket connections once Run is started.
func NewHub(reg *registry.Registry) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry:   reg,
		clients:    make(map[*Client]bool),
		inbound:    make(chan inboundEvent),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Registry returns the session registry the hub mutates.
func (h *Hub) Registry() *registry.Registry {
	return h.registry
}

// Run starts the hub's main event loop, handling client registration,
// unregistration, and event dispatch. This method should be called in a
// separate goroutine as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				slog.Warn("received nil client registration; skipping")
				continue
			}
			h.addClient(client)

		case client := <-h.unregister:
			h.dropClient(client)

		case ev := <-h.inbound:
			h.dispatch(ev)
		}
	}
}

// addClient admits a connection and launches its pump goroutines.
func (h *Hub) addClient(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client] = true
	clientCount := len(h.clients)
	h.mutex.Unlock()
	slog.Info("client connected", "addr", client.addr, "clients", clientCount)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// dropClient removes a connection and, if it had joined, removes its
// registry entry and broadcasts the updated roster to the remaining crew.
func (h *Hub) dropClient(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	// Close the channel after releasing the lock.
	close(client.send)
	slog.Info("client disconnected", "addr", client.addr, "clients", clientCount)

	if client.sessionID != "" && h.registry.Remove(client.sessionID) {
		slog.Info("session removed", "session_id", client.sessionID)
		h.broadcastRoster()
	}
}

// dispatch routes one inbound event to its handler. Unknown event names are
// rejected back to the sender; the connection stays open.
func (h *Hub) dispatch(ev inboundEvent) {
	switch ev.env.Event {
	case EventJoin:
		h.handleJoin(ev)
	case EventPowerUpdate:
		h.handlePowerUpdate(ev)
	default:
		slog.Warn("unknown event", "addr", ev.sender.addr, "event", ev.env.Event)
		h.sendError(ev.sender, "unknown event "+ev.env.Event)
	}
}

// handleJoin registers the sender's identity and broadcasts the full roster
// to every client, the sender included. A missing session id gets a
// server-assigned one, echoed back in a joined ack. Re-joining under a new
// session id releases the old entry so a connection holds at most one.
func (h *Hub) handleJoin(ev inboundEvent) {
	var join JoinPayload
	if err := decodePayload(ev.env.Data, &join); err != nil {
		slog.Warn("rejected join", "addr", ev.sender.addr, "err", err)
		h.sendError(ev.sender, "join requires session_id, station and name fields: "+err.Error())
		return
	}

	sessionID := join.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	if prev := ev.sender.sessionID; prev != "" && prev != sessionID {
		h.registry.Remove(prev)
	}
	ev.sender.sessionID = sessionID

	h.registry.Register(sessionID, registry.UserRecord{
		Station: join.Station,
		Name:    join.Name,
	})
	slog.Info("crew member joined",
		"session_id", sessionID, "station", join.Station, "name", join.Name)

	h.sendEvent(ev.sender, EventJoined, JoinedPayload{SessionID: sessionID})
	h.broadcastRoster()
}

// handlePowerUpdate validates the payload shape and relays the original
// envelope bytes unchanged to every client, the sender included. The hub
// keeps no power state; last-delivered wins at each client.
func (h *Hub) handlePowerUpdate(ev inboundEvent) {
	if err := validatePowerUpdate(ev.env.Data); err != nil {
		slog.Warn("rejected power update", "addr", ev.sender.addr, "err", err)
		h.sendError(ev.sender, err.Error())
		return
	}
	h.broadcast(ev.raw)
}

// broadcastRoster sends the full registry snapshot to all clients under the
// update_users event.
func (h *Hub) broadcastRoster() {
	payload, err := encodeEvent(EventUpdateUsers, h.registry.Snapshot())
	if err != nil {
		slog.Error("failed to encode roster", "err", err)
		return
	}
	h.broadcast(payload)
}

// sendEvent delivers a single event to one client.
func (h *Hub) sendEvent(client *Client, event string, data any) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		slog.Error("failed to encode event", "event", event, "err", err)
		return
	}
	if !h.safeSend(client, payload) {
		h.removeFailedClients([]*Client{client})
	}
}

// sendError reports a rejected frame to the offending client only.
func (h *Hub) sendError(client *Client, reason string) {
	h.sendEvent(client, EventError, ErrorPayload{Reason: reason})
}

// broadcast fans payload out to every connected client. Clients whose send
// buffers are full are dropped.
func (h *Hub) broadcast(payload []byte) {
	clients := h.clientSnapshot()
	slog.Debug("broadcasting", "clients", len(clients), "bytes", len(payload))

	var failed []*Client
	for _, client := range clients {
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}
	h.removeFailedClients(failed)
}

func (h *Hub) safeSend(client *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recovered from panic in safeSend", "panic", r)
		}
	}()

	// Hold the lock during the entire send so the channel cannot be closed
	// underneath the send attempt.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, exists := h.clients[client]; !exists || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

func (h *Hub) clientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// removeFailedClients evicts clients that could not accept a send and closes
// their channels. Their registry entries are released like any disconnect.
func (h *Hub) removeFailedClients(failed []*Client) {
	if len(failed) == 0 {
		return
	}

	var removedSessions bool
	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range failed {
		if _, exists := h.clients[client]; exists {
			delete(h.clients, client)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			slog.Warn("client removed due to full send buffer", "addr", client.addr)
		}
	}
	h.mutex.Unlock()

	for _, ch := range channelsToClose {
		close(ch)
	}
	for _, client := range failed {
		if client.sessionID != "" && h.registry.Remove(client.sessionID) {
			removedSessions = true
		}
	}
	if removedSessions {
		h.broadcastRoster()
	}
}

// shutdownClients closes all active client connections.
func (h *Hub) shutdownClients() {
	slog.Info("closing all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				slog.Warn("error closing client connection", "addr", client.addr, "err", err)
			}
		}
	}

	slog.Info("closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all client
// goroutines to finish, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	slog.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		slog.Warn("hub shutdown timeout reached; some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
