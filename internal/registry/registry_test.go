package registry_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgesim/starbridge/internal/registry"
)

func TestRegisterAndSnapshot(t *testing.T) {
	reg := registry.New()

	reg.Register("s1", registry.UserRecord{Station: "helm", Name: "Han"})
	reg.Register("s2", registry.UserRecord{Station: "engineering", Name: "Chewie"})

	snap := reg.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, registry.UserRecord{Station: "helm", Name: "Han"}, snap["s1"])
	assert.Equal(t, registry.UserRecord{Station: "engineering", Name: "Chewie"}, snap["s2"])
}

// Re-registering an existing session id overwrites the record without
// growing the registry.
func TestRegisterOverwritesWithoutGrowth(t *testing.T) {
	reg := registry.New()

	reg.Register("s1", registry.UserRecord{Station: "helm", Name: "Han"})
	reg.Register("s1", registry.UserRecord{Station: "weapons", Name: "Lando"})

	require.Equal(t, 1, reg.Count())
	rec, ok := reg.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "weapons", rec.Station)
	assert.Equal(t, "Lando", rec.Name)
}

// Two sessions may claim the same station and name; they remain separate
// entries keyed by their distinct session ids.
func TestDuplicateIdentitiesAreSeparateEntries(t *testing.T) {
	reg := registry.New()

	rec := registry.UserRecord{Station: "helm", Name: "Han"}
	reg.Register("s1", rec)
	reg.Register("s2", rec)

	assert.Equal(t, 2, reg.Count())
}

func TestEmptyFieldsPermitted(t *testing.T) {
	reg := registry.New()

	reg.Register("s1", registry.UserRecord{})

	rec, ok := reg.Get("s1")
	require.True(t, ok)
	assert.Empty(t, rec.Station)
	assert.Empty(t, rec.Name)
}

func TestRemove(t *testing.T) {
	reg := registry.New()
	reg.Register("s1", registry.UserRecord{Station: "helm", Name: "Han"})

	assert.True(t, reg.Remove("s1"))
	assert.False(t, reg.Remove("s1"))
	assert.Equal(t, 0, reg.Count())
}

// Snapshot returns an independent copy: mutating it must not affect the
// registry contents.
func TestSnapshotIsIndependentCopy(t *testing.T) {
	reg := registry.New()
	reg.Register("s1", registry.UserRecord{Station: "helm", Name: "Han"})

	snap := reg.Snapshot()
	snap["s1"] = registry.UserRecord{Station: "sabotage", Name: "intruder"}
	snap["s2"] = registry.UserRecord{}

	rec, ok := reg.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "helm", rec.Station)
	assert.Equal(t, 1, reg.Count())
}

func TestConcurrentAccess(t *testing.T) {
	reg := registry.New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				reg.Register(id, registry.UserRecord{Station: "helm", Name: id})
				reg.Snapshot()
				reg.Count()
			}
		}(string(rune('a' + i)))
	}
	wg.Wait()

	assert.Equal(t, 8, reg.Count())
}
