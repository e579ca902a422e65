package database_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/containerkit/container"
	"github.com/GoCodeAlone/containerkit/container/database"
)

func TestInMemory_InstallAndLookup(t *testing.T) {
	db := database.New()

	m := db.Install("file:a", &container.ModuleRevision{SymbolicName: "A"})
	require.NotNil(t, m)

	got, ok := db.GetModuleByLocation("file:a")
	require.True(t, ok)
	assert.Same(t, m, got)

	got, ok = db.GetModule(m.ID)
	require.True(t, ok)
	assert.Same(t, m, got)
}

func TestInMemory_InstallBumpsTimestamp(t *testing.T) {
	db := database.New()
	before := db.RevisionsTimestamp()

	db.Install("file:a", &container.ModuleRevision{SymbolicName: "A"})
	after := db.RevisionsTimestamp()

	assert.Greater(t, after, before)
}

func TestInMemory_UninstallRemovesLocationButKeepsModule(t *testing.T) {
	db := database.New()
	m := db.Install("file:a", &container.ModuleRevision{SymbolicName: "A"})

	db.Uninstall(m)

	_, ok := db.GetModuleByLocation("file:a")
	assert.False(t, ok)

	got, ok := db.GetModule(m.ID)
	assert.True(t, ok)
	assert.Same(t, m, got)
}

func TestInMemory_RemovalPending(t *testing.T) {
	db := database.New()
	m := db.Install("file:a", &container.ModuleRevision{SymbolicName: "A"})
	rev := m.CurrentRevision()

	assert.Empty(t, db.GetRemovalPending())

	db.AddRemovalPending(rev)
	pending := db.GetRemovalPending()
	require.Len(t, pending, 1)
	assert.Same(t, rev, pending[0])

	db.ClearRemovalPending(rev)
	assert.Empty(t, db.GetRemovalPending())
}

func TestInMemory_SortModulesByStartLevel(t *testing.T) {
	db := database.New()
	a := db.Install("file:a", &container.ModuleRevision{SymbolicName: "A"})
	b := db.Install("file:b", &container.ModuleRevision{SymbolicName: "B"})
	c := db.Install("file:c", &container.ModuleRevision{SymbolicName: "C"})

	db.SetStartLevel(a, 3)
	db.SetStartLevel(b, 1)
	db.SetStartLevel(c, 2)

	sorted := db.SortModules([]*container.Module{a, b, c}, container.BySortStartLevel)
	require.Len(t, sorted, 3)
	assert.Equal(t, []*container.Module{b, c, a}, sorted)
}

func TestInMemory_SortModulesByDependency(t *testing.T) {
	db := database.New()
	// b provides what a requires; a's wiring records that dependency.
	bRev := &container.ModuleRevision{SymbolicName: "B"}
	aRev := &container.ModuleRevision{SymbolicName: "A"}
	a := db.Install("file:a", aRev)
	b := db.Install("file:b", bRev)

	wiring := container.NewModuleWiring(aRev)
	wiring.AddRequiredWire(&container.ModuleWire{
		Namespace: container.NamespacePackage,
		Requirer:  aRev,
		Provider:  bRev,
	})
	db.SetWiring(aRev, wiring)

	sorted := db.SortModules([]*container.Module{a, b}, container.BySortDependency)
	require.Len(t, sorted, 2)
	assert.Same(t, b, sorted[0], "dependency (B) should sort before dependent (A)")
	assert.Same(t, a, sorted[1])
}

func TestInMemory_DetachRevisionRemovesFromByName(t *testing.T) {
	db := database.New()
	m := db.Install("file:a", &container.ModuleRevision{SymbolicName: "A"})
	oldRev := m.CurrentRevision()

	db.Update(m, &container.ModuleRevision{SymbolicName: "A"})
	require.Len(t, db.GetRevisions("A"), 2)

	db.DetachRevision(oldRev)
	assert.Len(t, db.GetRevisions("A"), 1)
	assert.Len(t, m.Revisions.All(), 1, "detach must also drop the revision from its ModuleRevisions container")
	assert.NotContains(t, m.Revisions.All(), oldRev)
}

var _ container.ModuleDatabase = (*database.InMemory)(nil)
