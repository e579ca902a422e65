package container

import (
	"context"
	"sync"
	"sync/atomic"
)

// Container is the façade external callers use: it owns the LockSets, the
// database and resolver collaborators, the adaptor, the lifecycle hook, and
// the refresh/start-level dispatchers.
type Container struct {
	db       ModuleDatabase
	resolver ModuleResolver
	adaptor  Adaptor
	lifecycle LifecycleHook

	locationLocks *LockSet
	nameLocks     *LockSet

	// AutoStartOnResolve gates the "questionable" auto-start-after-resolve
	// behavior inherited verbatim from the reference container (see
	// DESIGN.md Open Question resolutions). Defaults to true to preserve
	// the observed behavior; a host that needs to diverge sets it false.
	AutoStartOnResolve bool

	refreshDispatcher    *refreshDispatcher
	startLevelDispatcher *startLevelDispatcher

	activeStartLevel atomic.Int32
	frameworkSLLock  sync.Mutex

	systemRefreshMu   sync.Mutex
	systemRefreshing  bool

	closed bool
	mu     sync.RWMutex
}

// New constructs a Container ready for Load to be called. db, resolver,
// adaptor, and lifecycle are the external collaborators the container
// depends on; database.New() and resolver.New() supply working defaults for
// the first two.
func New(db ModuleDatabase, res ModuleResolver, adaptor Adaptor, lifecycle LifecycleHook) *Container {
	c := &Container{
		db:                 db,
		resolver:           res,
		adaptor:            adaptor,
		lifecycle:          lifecycle,
		locationLocks:      NewLockSet(),
		nameLocks:          NewLockSet(),
		AutoStartOnResolve: true,
	}
	c.refreshDispatcher = newRefreshDispatcher(c)
	c.startLevelDispatcher = newStartLevelDispatcher(c)
	return c
}

func (c *Container) isSystemRefreshing() bool {
	c.systemRefreshMu.Lock()
	defer c.systemRefreshMu.Unlock()
	return c.systemRefreshing
}

func (c *Container) setSystemRefreshing(v bool) {
	c.systemRefreshMu.Lock()
	defer c.systemRefreshMu.Unlock()
	c.systemRefreshing = v
}

// stopTransient stops m via the lifecycle hook with StartTransient
// semantics, transitioning through StateStopping.
func (c *Container) stopTransient(m *Module) error {
	m.SetState(StateStopping)
	err := c.lifecycle.Stop(context.Background(), m, StartTransient)
	if err == nil {
		c.adaptor.PublishModuleEvent(EventStopped, m, nil)
	}
	m.SetState(StateResolved)
	return err
}

// startTransientResume resumes m via the lifecycle hook, publishing STARTED
// on success.
func (c *Container) startTransientResume(m *Module) error {
	m.SetState(StateStarting)
	err := c.lifecycle.Start(context.Background(), m, StartTransientResume)
	if err != nil {
		m.SetState(StateResolved)
		return err
	}
	m.SetState(StateActive)
	c.adaptor.PublishModuleEvent(EventStarted, m, nil)
	return nil
}

// startTransientIfAutoStart attempts to start m only if the lifecycle hook's
// auto-start policy allows it; used by the resolve auto-start pass, the
// framework start-level ramp, and MODULE_STARTLEVEL dispatch.
func (c *Container) startTransientIfAutoStart(m *Module) error {
	if !c.lifecycle.AutoStartAllowed(m) {
		return nil
	}
	if m.HoldsTransitionEventLock(TransitionStarted) {
		// Another goroutine is already mid-STARTED transition on this
		// module; suppress the reentrant start attempt.
		return nil
	}
	unlock := m.StateChangeLock(TransitionStarted)
	defer unlock()

	m.SetState(StateStarting)
	err := c.lifecycle.Start(context.Background(), m, StartTransientIfAutoStart|StartTransientResume)
	if err != nil {
		m.SetState(StateResolved)
		return err
	}
	m.SetState(StateActive)
	c.adaptor.PublishModuleEvent(EventStarted, m, nil)
	return nil
}

// Close shuts down the container's background dispatchers. Safe to call
// once; subsequent operations fail with ErrContainerClosed.
func (c *Container) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.refreshDispatcher.stop()
	c.startLevelDispatcher.stop()
}

func (c *Container) checkOpen() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrContainerClosed
	}
	return nil
}
