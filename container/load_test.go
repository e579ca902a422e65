package container_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/containerkit/container"
)

func TestLoad_SetsResolvedOnlyWhereWiringExists(t *testing.T) {
	c, _, _, _ := newTestContainer()
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
	// Force both back to a pre-active in-memory state as if the process had
	// just restarted with the wirings already persisted.
	a.SetState(container.StateInstalled)
	b.SetState(container.StateInstalled)

	require.NoError(t, c.Load())

	assert.Equal(t, container.StateResolved, a.State())
	assert.Equal(t, container.StateResolved, b.State())
}

func TestLoad_LeavesUnwiredModuleInstalled(t *testing.T) {
	c, _, _, _ := newTestContainer()
	defer c.Close()

	m, err := c.Install(nil, "file:a", &container.RevisionBuilder{SymbolicName: "A"}, nil)
	require.NoError(t, err)

	require.NoError(t, c.Load())
	assert.Equal(t, container.StateInstalled, m.State())
}

func TestSetInitialModuleStates_SystemModuleInstalledOthersUninstalled(t *testing.T) {
	c, db, _, _ := newTestContainer()
	defer c.Close()

	sys := db.InstallSystemModule("system:0", &container.ModuleRevision{SymbolicName: "system.bundle"})
	m, err := c.Install(nil, "file:a", &container.RevisionBuilder{SymbolicName: "A"}, nil)
	require.NoError(t, err)

	c.SetInitialModuleStates()

	assert.Equal(t, container.StateInstalled, sys.State())
	assert.Equal(t, container.StateUninstalled, m.State())
}

func TestUnload_UninstallsNonSystemModulesAndInvalidatesWirings(t *testing.T) {
	c, db, _, _ := newTestContainer()
	defer c.Close()

	sys := db.InstallSystemModule("system:0", &container.ModuleRevision{SymbolicName: "system.bundle"})

	m, err := c.Install(nil, "file:a", &container.RevisionBuilder{SymbolicName: "A"}, nil)
	require.NoError(t, err)
	// Resolve wires the system module too and sets it RESOLVED, so it is
	// marked active only afterwards.
	require.NoError(t, c.Resolve(context.Background(), []*container.Module{m}, true))
	sys.SetState(container.StateActive)

	require.NoError(t, c.Unload())

	assert.Equal(t, container.StateUninstalled, m.State())
	assert.Equal(t, container.StateActive, sys.State(), "system module is left alone by Unload")
}
