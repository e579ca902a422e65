package container

import (
	"time"

	"github.com/Masterminds/semver/v3"
)

const lockTimeout = 5 * time.Second

// RevisionBuilder supplies the fields of a new revision to Install and
// Update: symbolic name, version, capabilities, requirements, and the
// fragment flag.
type RevisionBuilder struct {
	SymbolicName string
	Version      *semver.Version
	Capabilities []Capability
	Requirements []Requirement
	IsFragment   bool
	RevisionInfo any
}

// Install admits a new module at location, or returns the module already
// there. origin, when non-nil, is consulted for visibility and passed to
// the collision hook.
func (c *Container) Install(origin *Module, location string, builder *RevisionBuilder, revisionInfo any) (*Module, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	token := newJobID()
	if !c.locationLocks.TryLock(location, token, lockTimeout) {
		return nil, newContainerError(ErrStateChange, "install: location lock timeout", nil)
	}
	defer c.locationLocks.Unlock(location, token)

	if builder.SymbolicName != "" {
		nameToken := newJobID()
		if !c.nameLocks.TryLock(builder.SymbolicName, nameToken, lockTimeout) {
			return nil, newContainerError(ErrStateChange, "install: name lock timeout", nil)
		}
		defer c.nameLocks.Unlock(builder.SymbolicName, nameToken)
	}

	c.db.ReadLock()
	existing, hasExisting := c.db.GetModuleByLocation(location)
	var candidates []*Module
	if !hasExisting {
		candidates = c.collisionCandidates(builder.SymbolicName)
	}
	c.db.ReadUnlock()

	if hasExisting {
		if origin != nil && !c.visibleTo(origin, existing) {
			return nil, newContainerError(ErrRejectedByHook, "install: existing module not visible to origin", nil)
		}
		return existing, nil
	}

	if origin != nil && len(candidates) > 0 {
		hook := c.adaptor.CollisionHook()
		if hook != nil {
			candidates = hook.FilterCollisions(CollisionInstalling, origin, candidates)
		}
		if len(candidates) > 0 {
			return nil, newContainerError(ErrDuplicateBundle, "install: collision candidates remain after hook", nil)
		}
	}

	rev := &ModuleRevision{
		SymbolicName: builder.SymbolicName,
		Version:      builder.Version,
		Capabilities: builder.Capabilities,
		Requirements: builder.Requirements,
		IsFragment:   builder.IsFragment,
		RevisionInfo: revisionInfo,
	}

	c.db.WriteLock()
	m := c.db.Install(location, rev)
	c.db.WriteUnlock()

	c.adaptor.PublishModuleEvent(EventInstalled, m, origin)
	return m, nil
}

// collisionCandidates finds current modules whose current revision shares
// symbolic name with the incoming one.
func (c *Container) collisionCandidates(name string) []*Module {
	var out []*Module
	for _, m := range c.db.GetModules() {
		rev := m.CurrentRevision()
		if rev == nil {
			continue
		}
		if rev.SymbolicName == name {
			out = append(out, m)
		}
	}
	return out
}

// visibleTo is a placeholder visibility check: without a bundle-context
// model in this container, every origin sees every module. Hosts that need
// real visibility rules supply a CollisionHook and rely on REJECTED_BY_HOOK
// at the collision-check step instead.
func (c *Container) visibleTo(origin, target *Module) bool { return true }

// Update requires the caller to have already checked ADMIN.LIFECYCLE
// permission; the container does not implement a permission model itself,
// though it surfaces a permission error code for hosts that do.
func (c *Container) Update(m *Module, builder *RevisionBuilder, revisionInfo any) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	unlock := m.StateChangeLock(TransitionUpdated)
	defer unlock()

	if m.State() == StateUninstalled {
		return newContainerError(ErrStateChange, "update: module uninstalled", ErrModuleUninstalled)
	}
	previousState := m.State()

	if builder.SymbolicName == "" {
		builder.SymbolicName = m.CurrentRevision().SymbolicName
	}
	token := newJobID()
	if !c.nameLocks.TryLock(builder.SymbolicName, token, lockTimeout) {
		return newContainerError(ErrStateChange, "update: name lock timeout", nil)
	}
	defer c.nameLocks.Unlock(builder.SymbolicName, token)

	if previousState.InActiveSet() {
		if err := c.stopTransient(m); err != nil {
			return newContainerError(ErrStateChange, "update: stop before update failed", err)
		}
	}
	if previousState.InResolvedSet() {
		m.SetState(StateInstalled)
		c.adaptor.PublishModuleEvent(EventUnresolved, m, nil)
	}

	candidates := c.collisionCandidatesExcluding(builder.SymbolicName, m)
	if len(candidates) > 0 {
		hook := c.adaptor.CollisionHook()
		if hook != nil {
			candidates = hook.FilterCollisions(CollisionUpdating, m, candidates)
		}
		if len(candidates) > 0 {
			return newContainerError(ErrDuplicateBundle, "update: collision candidates remain after hook", nil)
		}
	}

	rev := &ModuleRevision{
		SymbolicName: builder.SymbolicName,
		Version:      builder.Version,
		Capabilities: builder.Capabilities,
		Requirements: builder.Requirements,
		IsFragment:   builder.IsFragment,
		RevisionInfo: revisionInfo,
	}

	oldRev := m.CurrentRevision()

	c.db.WriteLock()
	c.db.Update(m, rev)
	if oldRev != nil {
		if _, hasWiring := c.db.GetWiring(oldRev); hasWiring {
			c.db.AddRemovalPending(oldRev)
		}
	}
	c.db.WriteUnlock()

	c.adaptor.PublishModuleEvent(EventUpdated, m, nil)

	if previousState.InActiveSet() {
		if err := c.startTransientResume(m); err != nil {
			c.adaptor.PublishContainerEvent(EventError, m, err)
		}
	}
	return nil
}

func (c *Container) collisionCandidatesExcluding(name string, exclude *Module) []*Module {
	var out []*Module
	for _, m := range c.db.GetModules() {
		if m == exclude {
			continue
		}
		rev := m.CurrentRevision()
		if rev != nil && rev.SymbolicName == name {
			out = append(out, m)
		}
	}
	return out
}

// Uninstall requires ADMIN.LIFECYCLE (see Update's note on permissions).
func (c *Container) Uninstall(m *Module) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	unlock := m.StateChangeLock(TransitionUninstalled)
	defer unlock()

	if m.State() == StateUninstalled {
		return nil
	}

	if m.State().InActiveSet() {
		if err := c.stopTransient(m); err != nil {
			c.adaptor.PublishContainerEvent(EventError, m, err)
		}
	}
	if m.State().InResolvedSet() {
		m.SetState(StateInstalled)
		c.adaptor.PublishModuleEvent(EventUnresolved, m, nil)
	}

	c.db.WriteLock()
	if rev := m.CurrentRevision(); rev != nil {
		if _, wired := c.db.GetWiring(rev); wired {
			c.db.AddRemovalPending(rev)
		}
	}
	c.db.Uninstall(m)
	c.db.WriteUnlock()

	m.SetState(StateUninstalled)
	c.adaptor.PublishModuleEvent(EventUninstalled, m, nil)
	return nil
}
