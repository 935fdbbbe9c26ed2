// Package registry tracks the crew members currently connected to the
// bridge: a thread-safe in-memory map from session identifier to the
// station and display name each participant registered under.
//
// The registry is scoped to a server instance and injected into the hub
// rather than held as package state. Entries live for the duration of the
// owning connection; the hub removes them on disconnect.
package registry

import "sync"

// UserRecord describes one connected participant. Neither field is required
// to be unique or non-empty; two crew members may claim the same station.
type UserRecord struct {
	Station string `json:"station"`
	Name    string `json:"name"`
}

// Registry is a thread-safe mapping from session identifier to UserRecord.
// The hub serializes all writes through its event loop, but HTTP handlers
// and tests may read concurrently, so access is mutex-protected anyway.
type Registry struct {
	mu   sync.RWMutex
	data map[string]UserRecord
}

// New returns an empty Registry ready for use.
func New() *Registry {
	return &Registry{
		data: make(map[string]UserRecord),
	}
}

// Register inserts or overwrites the record for sessionID. Empty strings are
// permitted in the record; registration always succeeds.
func (r *Registry) Register(sessionID string, rec UserRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[sessionID] = rec
}

// Remove deletes the record for sessionID and reports whether an entry was
// present.
func (r *Registry) Remove(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.data[sessionID]
	if ok {
		delete(r.data, sessionID)
	}
	return ok
}

// Get returns the record for sessionID and whether it exists.
func (r *Registry) Get(sessionID string) (UserRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.data[sessionID]
	return rec, ok
}

// Snapshot returns a copy of all current entries. The result is independent
// of the registry; callers may retain or modify it freely. Iteration order
// is undefined.
func (r *Registry) Snapshot() map[string]UserRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]UserRecord, len(r.data))
	for id, rec := range r.data {
		out[id] = rec
	}
	return out
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}
