package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/containerkit/container"
)

func TestNewContainer_InstallsSystemModuleAndIsReady(t *testing.T) {
	c := newContainer()
	defer c.Close()

	// Installing at the system module's location returns the module already there.
	sys, err := c.Install(nil, "system:0", &container.RevisionBuilder{SymbolicName: "system.bundle"}, nil)
	require.NoError(t, err)
	assert.Equal(t, container.SystemModuleID, sys.ID)

	m, err := c.Install(nil, "file:demo", &container.RevisionBuilder{SymbolicName: "demo"}, nil)
	require.NoError(t, err)
	assert.Equal(t, container.StateInstalled, m.State())
}

func TestNewContainer_DemoScenarioResolvesBothModules(t *testing.T) {
	c := newContainer()
	defer c.Close()

	b, err := c.Install(nil, "file:b", &container.RevisionBuilder{
		SymbolicName: "B",
		Capabilities: []container.Capability{{
			Namespace:  container.NamespacePackage,
			Attributes: map[string]any{"package": "b.pkg"},
		}},
	}, nil)
	require.NoError(t, err)

	a, err := c.Install(nil, "file:a", &container.RevisionBuilder{
		SymbolicName: "A",
		Requirements: []container.Requirement{{
			Namespace: container.NamespacePackage,
			Matches: func(cap container.Capability) bool {
				return cap.Attributes["package"] == "b.pkg"
			},
		}},
	}, nil)
	require.NoError(t, err)

	require.NoError(t, c.Resolve(context.Background(), []*container.Module{a}, true))

	assert.Equal(t, container.StateActive, a.State())
	assert.Equal(t, container.StateActive, b.State())
}
