// Package catalog holds the static vehicle database exposed by the
// read-only /api/vehicles endpoint. The catalog ships with a built-in
// default and may be replaced by a YAML file, optionally hot-reloaded
// while the server runs. Handlers never mutate it.
package catalog

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Vehicle describes one ship in the catalog.
type Vehicle struct {
	Name    string   `json:"name" yaml:"name"`
	Type    string   `json:"type" yaml:"type"`
	Shields int      `json:"shields" yaml:"shields"`
	Weapons []string `json:"weapons" yaml:"weapons"`
}

// Catalog is a thread-safe set of vehicles keyed by id. Reads come from
// HTTP handlers; writes only happen at load time and on file reload.
type Catalog struct {
	mu       sync.RWMutex
	vehicles map[string]Vehicle
}

// New creates a Catalog holding the given vehicles. The map is copied.
func New(vehicles map[string]Vehicle) *Catalog {
	c := &Catalog{vehicles: make(map[string]Vehicle)}
	c.Replace(vehicles)
	return c
}

// Default returns the built-in vehicle set used when no catalog file is
// configured.
func Default() map[string]Vehicle {
	return map[string]Vehicle{
		"millennium_falcon": {
			Name:    "Millennium Falcon",
			Type:    "Freighter",
			Shields: 100,
			Weapons: []string{"Quad Laser Cannons", "Concussion Missiles"},
		},
	}
}

// LoadFile reads and validates a YAML catalog file. The file maps vehicle
// ids to vehicle definitions:
//
//	millennium_falcon:
//	  name: Millennium Falcon
//	  type: Freighter
//	  shields: 100
//	  weapons: [Quad Laser Cannons, Concussion Missiles]
func LoadFile(path string) (map[string]Vehicle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %q: %w", path, err)
	}

	var vehicles map[string]Vehicle
	if err := yaml.Unmarshal(data, &vehicles); err != nil {
		return nil, fmt.Errorf("catalog: parse %q: %w", path, err)
	}

	if err := validate(vehicles); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return vehicles, nil
}

func validate(vehicles map[string]Vehicle) error {
	for id, v := range vehicles {
		if v.Name == "" {
			return fmt.Errorf("vehicle %q has no name", id)
		}
		if v.Shields < 0 {
			return fmt.Errorf("vehicle %q has negative shields %d", id, v.Shields)
		}
	}
	return nil
}

// All returns a copy of the full catalog.
func (c *Catalog) All() map[string]Vehicle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Vehicle, len(c.vehicles))
	for id, v := range c.vehicles {
		out[id] = v
	}
	return out
}

// Get returns the vehicle with the given id and whether it exists.
func (c *Catalog) Get(id string) (Vehicle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vehicles[id]
	return v, ok
}

// Count returns the number of vehicles in the catalog.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vehicles)
}

// Replace swaps the entire vehicle set. The map is copied.
func (c *Catalog) Replace(vehicles map[string]Vehicle) {
	next := make(map[string]Vehicle, len(vehicles))
	for id, v := range vehicles {
		next[id] = v
	}

	c.mu.Lock()
	c.vehicles = next
	c.mu.Unlock()
}
