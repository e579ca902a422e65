package container

// Load synchronizes in-memory Module state with persisted wirings: for
// every module, set state to RESOLVED iff a wiring exists for its current
// revision, else INSTALLED. Runs exactly once per container instance and is
// not concurrent with Resolve/Refresh.
func (c *Container) Load() error {
	c.db.ReadLock()
	defer c.db.ReadUnlock()

	for _, m := range c.db.GetModules() {
		unlock := m.StateChangeLock(TransitionResolved)
		rev := m.CurrentRevision()
		if rev != nil {
			if _, ok := c.db.GetWiring(rev); ok {
				m.SetState(StateResolved)
			} else {
				m.SetState(StateInstalled)
			}
		}
		unlock()
	}
	return nil
}

// Unload transitions every non-system module to UNINSTALLED and invalidates
// all of its wirings, matching container close semantics.
func (c *Container) Unload() error {
	c.db.ReadLock()
	modules := c.db.GetModules()
	c.db.ReadUnlock()

	for _, m := range modules {
		if m.ID == SystemModuleID {
			continue
		}
		unlock := m.StateChangeLock(TransitionUninstalled)
		m.SetState(StateUninstalled)
		if rev := m.CurrentRevision(); rev != nil {
			if w, ok := c.db.GetWiring(rev); ok {
				w.Invalidate()
			}
		}
		unlock()
	}
	return nil
}

// SetInitialModuleStates puts the system module in INSTALLED and every
// other module in UNINSTALLED, invalidating all wirings. Used to prime a
// freshly created database before the first Load.
func (c *Container) SetInitialModuleStates() {
	c.db.ReadLock()
	modules := c.db.GetModules()
	c.db.ReadUnlock()

	for _, m := range modules {
		if rev := m.CurrentRevision(); rev != nil {
			if w, ok := c.db.GetWiring(rev); ok {
				w.Invalidate()
			}
		}
		if m.ID == SystemModuleID {
			m.SetState(StateInstalled)
		} else {
			m.SetState(StateUninstalled)
		}
	}
}
