// Package server defines the bridge event protocol shared by client and hub
// logic: a JSON envelope carrying a named event and its payload.
package server

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Event names exchanged with bridge clients.
const (
	// EventJoin is sent by a client to register its station and name.
	EventJoin = "join"
	// EventJoined acknowledges a join with the session id the server stored.
	EventJoined = "joined"
	// EventUpdateUsers carries the full crew roster after any change.
	EventUpdateUsers = "update_users"
	// EventPowerUpdate relays a power distribution change to all clients.
	EventPowerUpdate = "power_update"
	// EventError reports a rejected frame to the offending client only.
	EventError = "error"
)

// maxPowerLevel bounds each subsystem's power allocation percentage.
const maxPowerLevel = 100

// Envelope is the wire format for every WebSocket frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinPayload is the inbound identity announcement for a connection. An
// empty SessionID asks the server to assign one.
type JoinPayload struct {
	SessionID string `json:"session_id"`
	Station   string `json:"station"`
	Name      string `json:"name"`
}

// JoinedPayload acknowledges a join with the effective session key, so a
// client that joined without an id learns the one it was assigned.
type JoinedPayload struct {
	SessionID string `json:"session_id"`
}

// ErrorPayload tells a client why its frame was rejected.
type ErrorPayload struct {
	Reason string `json:"reason"`
}

// encodeEvent marshals a named event and its payload into envelope bytes.
func encodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// decodeEnvelope parses one inbound frame. The event name must be present;
// the payload may be absent.
func decodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("invalid message: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("invalid message: missing event name")
	}
	return env, nil
}

// decodePayload unmarshals an event payload into v, rejecting frames that
// carry no payload at all.
func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing payload")
	}
	return json.Unmarshal(raw, v)
}

// validatePowerUpdate checks that raw decodes to an object mapping subsystem
// names to numeric power levels in [0, maxPowerLevel]. Subsystem names are
// not restricted; clients may introduce new subsystems freely. The raw bytes
// are relayed unchanged when validation passes.
func validatePowerUpdate(raw json.RawMessage) error {
	if len(raw) == 0 {
		return fmt.Errorf("power update has no payload")
	}

	var levels map[string]float64
	if err := json.Unmarshal(raw, &levels); err != nil {
		return fmt.Errorf("power update must be an object of numeric levels: %w", err)
	}
	// JSON null unmarshals into a nil map without error; only objects count.
	if levels == nil {
		return fmt.Errorf("power update must be an object of numeric levels, got null")
	}

	for name, level := range levels {
		if level < 0 || level > maxPowerLevel {
			return fmt.Errorf("power level for %q out of range [0, %d]: %v", name, maxPowerLevel, level)
		}
	}
	return nil
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
