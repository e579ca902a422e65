package container_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/containerkit/container"
)

// Concurrent installs at the same fresh location must serialize through the
// location lock and produce exactly one module, not one per goroutine. A
// lock token derived only from the location string (rather than a unique
// per-call identity) would let unrelated concurrent callers treat each
// other as the same reentrant holder and race straight through the
// existence check below.
func TestInstall_ConcurrentInstallsAtSameLocation_ProduceOneModule(t *testing.T) {
	c, _, _, _ := newTestContainer()
	defer c.Close()

	const goroutines = 16
	results := make([]*container.Module, goroutines)
	errs := make([]error, goroutines)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			m, err := c.Install(nil, "file:same", &container.RevisionBuilder{SymbolicName: "A"}, nil)
			results[i] = m
			errs[i] = err
		}(i)
	}
	wg.Wait()

	first := results[0]
	require.NotNil(t, first)
	for i, m := range results {
		require.NoError(t, errs[i])
		assert.Same(t, first, m, "every concurrent Install at the same location must return the same module")
	}
}

// Resolving a newly-wired, non-trigger, auto-startable module must not
// deadlock: applyDelta's RESOLVED state-change lock must be released before
// the auto-start pass tries to take the module's STARTED lock on the same
// goroutine.
func TestResolve_AutoStartOfNonTriggerModule_DoesNotDeadlock(t *testing.T) {
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

	done := make(chan error, 1)
	go func() {
		done <- c.Resolve(context.Background(), []*container.Module{a}, true)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Resolve deadlocked auto-starting a newly-wired non-trigger module")
	}

	assert.Equal(t, container.StateActive, a.State())
	assert.Equal(t, container.StateActive, b.State())
}
