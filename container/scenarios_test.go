package container_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/containerkit/container"
	"github.com/GoCodeAlone/containerkit/container/database"
	"github.com/GoCodeAlone/containerkit/container/hooks"
	"github.com/GoCodeAlone/containerkit/container/resolver"
)

func newTestContainer() (*container.Container, *database.InMemory, *recordingAdaptor, *hooks.Registry) {
	db := database.New()
	adaptor := newRecordingAdaptor()
	registry := hooks.NewRegistry()
	c := container.New(db, resolver.New(), adaptor, registry)
	return c, db, adaptor, registry
}

func packageCapability(name string) container.Capability {
	return container.Capability{
		Namespace:  container.NamespacePackage,
		Attributes: map[string]any{"package": name},
	}
}

func packageRequirement(name string) container.Requirement {
	return container.Requirement{
		Namespace: container.NamespacePackage,
		Matches: func(cap container.Capability) bool {
			return cap.Attributes["package"] == name
		},
	}
}

// Scenario 1: installing a second module at a different location with the
// same symbolic name, from an origin that can't see the first, fails with
// DUPLICATE_BUNDLE_ERROR.
func TestInstall_CollidingSymbolicNameFromForeignOrigin_Fails(t *testing.T) {
	c, _, _, _ := newTestContainer()
	defer c.Close()

	a1, err := c.Install(nil, "file:a", &container.RevisionBuilder{SymbolicName: "A"}, nil)
	require.NoError(t, err)
	require.NotNil(t, a1)

	origin := container.NewModule(999, "file:origin")
	_, err = c.Install(origin, "file:b", &container.RevisionBuilder{SymbolicName: "A"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, container.ErrDuplicateBundle)
}

// Scenario 2: installing at the same location twice is idempotent: the same
// module comes back and no second INSTALLED event fires.
func TestInstall_SameLocationTwice_IsIdempotent(t *testing.T) {
	c, _, adaptor, _ := newTestContainer()
	defer c.Close()

	a1, err := c.Install(nil, "file:a", &container.RevisionBuilder{SymbolicName: "A"}, nil)
	require.NoError(t, err)

	a2, err := c.Install(nil, "file:a", &container.RevisionBuilder{SymbolicName: "A"}, nil)
	require.NoError(t, err)

	assert.Same(t, a1, a2)
	assert.Equal(t, 1, adaptor.moduleEventsFor(a1, container.EventInstalled))
}

// Scenario 3: A requires B's package, B provides it; resolving [A] resolves
// both and wires A's required-wire to B's revision.
func TestResolve_SatisfiedDependency_ResolvesBoth(t *testing.T) {
	c, db, adaptor, _ := newTestContainer()
	defer c.Close()

	b, err := c.Install(nil, "file:b", &container.RevisionBuilder{
		SymbolicName: "B",
		Capabilities: []container.Capability{packageCapability("b.pkg")},
	}, nil)
	require.NoError(t, err)

	a, err := c.Install(nil, "file:a", &container.RevisionBuilder{
		SymbolicName: "A",
		Requirements: []container.Requirement{packageRequirement("b.pkg")},
	}, nil)
	require.NoError(t, err)

	err = c.Resolve(context.Background(), []*container.Module{a}, true)
	require.NoError(t, err)

	assert.Equal(t, container.StateActive, a.State())
	assert.Equal(t, container.StateActive, b.State())
	assert.Equal(t, 1, adaptor.moduleEventsFor(a, container.EventResolved))
	assert.Equal(t, 1, adaptor.moduleEventsFor(b, container.EventResolved))

	db.ReadLock()
	wiring, ok := db.GetWiring(a.CurrentRevision())
	db.ReadUnlock()
	require.True(t, ok)
	required := wiring.RequiredWires()
	require.Len(t, required, 1)
	assert.Equal(t, b.CurrentRevision(), required[0].Provider)
}

// Scenario 4: updating an active module stops it, publishes UPDATED, marks
// its old revision removal-pending, and restarts it.
func TestUpdate_ActiveModule_StopsPublishesAndRestarts(t *testing.T) {
	c, db, adaptor, _ := newTestContainer()
	defer c.Close()

	b, err := c.Install(nil, "file:b", &container.RevisionBuilder{
		SymbolicName: "B",
		Capabilities: []container.Capability{packageCapability("b.pkg")},
	}, nil)
	require.NoError(t, err)

	a, err := c.Install(nil, "file:a", &container.RevisionBuilder{
		SymbolicName: "A",
		Requirements: []container.Requirement{packageRequirement("b.pkg")},
	}, nil)
	require.NoError(t, err)

	require.NoError(t, c.Resolve(context.Background(), []*container.Module{a}, true))
	require.Equal(t, container.StateActive, b.State())

	oldRev := b.CurrentRevision()

	err = c.Update(b, &container.RevisionBuilder{
		SymbolicName: "B",
		Capabilities: []container.Capability{packageCapability("b.pkg")},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, container.StateActive, b.State())
	assert.Equal(t, 1, adaptor.moduleEventsFor(b, container.EventStopped))
	assert.Equal(t, 1, adaptor.moduleEventsFor(b, container.EventUpdated))
	assert.GreaterOrEqual(t, adaptor.moduleEventsFor(b, container.EventStarted), 1)

	db.ReadLock()
	pending := db.GetRemovalPending()
	db.ReadUnlock()
	found := false
	for _, rev := range pending {
		if rev == oldRev {
			found = true
		}
	}
	assert.True(t, found, "old revision of B should be removal-pending until refresh")
}

// Scenario 5: refreshing the updated module clears removal-pending revisions
// and re-resolves its dependents.
func TestRefresh_AfterUpdate_ClearsRemovalPendingAndReResolves(t *testing.T) {
	c, db, _, _ := newTestContainer()
	defer c.Close()

	b, err := c.Install(nil, "file:b", &container.RevisionBuilder{
		SymbolicName: "B",
		Capabilities: []container.Capability{packageCapability("b.pkg")},
	}, nil)
	require.NoError(t, err)

	a, err := c.Install(nil, "file:a", &container.RevisionBuilder{
		SymbolicName: "A",
		Requirements: []container.Requirement{packageRequirement("b.pkg")},
	}, nil)
	require.NoError(t, err)

	require.NoError(t, c.Resolve(context.Background(), []*container.Module{a}, true))
	require.NoError(t, c.Update(b, &container.RevisionBuilder{
		SymbolicName: "B",
		Capabilities: []container.Capability{packageCapability("b.pkg")},
	}, nil))

	require.NoError(t, c.Refresh(context.Background(), []*container.Module{b}))

	db.ReadLock()
	pending := db.GetRemovalPending()
	db.ReadUnlock()
	assert.Empty(t, pending)

	assert.Equal(t, container.StateActive, b.State())
	assert.Equal(t, container.StateActive, a.State())
}

// Scenario 6: ramping the framework start level from 0 to 3 starts every
// module whose level is <= 3 and leaves higher-level modules alone, firing a
// single EventStartLevel.
func TestSetFrameworkStartLevel_RampsThroughLevels(t *testing.T) {
	c, _, adaptor, _ := newTestContainer()
	defer c.Close()

	// Auto-start-on-resolve is disabled here so that resolving these modules
	// doesn't immediately activate them; only the start-level ramp should.
	c.AutoStartOnResolve = false

	levels := []int{1, 1, 2, 3, 5}
	modules := make([]*container.Module, len(levels))
	for i, lvl := range levels {
		m, err := c.Install(nil, "file:m"+string(rune('a'+i)), &container.RevisionBuilder{
			SymbolicName: "M" + string(rune('A'+i)),
		}, nil)
		require.NoError(t, err)
		require.NoError(t, c.SetModuleStartLevel(m, lvl))
		modules[i] = m
	}

	require.NoError(t, c.Resolve(context.Background(), nil, false))
	for _, m := range modules {
		require.Equal(t, container.StateResolved, m.State())
	}

	err := c.SetFrameworkStartLevel(context.Background(), 3)
	require.NoError(t, err)

	for i, m := range modules {
		if levels[i] <= 3 {
			assert.Equal(t, container.StateActive, m.State(), "module %d at level %d should be active", i, levels[i])
		} else {
			assert.NotEqual(t, container.StateActive, m.State(), "module %d at level %d should not be active", i, levels[i])
		}
	}
	assert.Equal(t, 1, len(adaptor.containerEventsOfKind(container.EventStartLevel)))
	assert.Equal(t, 3, c.ActiveStartLevel())
}
