package container

import (
	"context"
	"sort"
)

// Refresh computes the refresh triggers (unresolve(initial)) and, unless
// the system module is currently mid-refresh, re-resolves them with
// triggersMandatory=false and restartTriggers=true.
func (c *Container) Refresh(ctx context.Context, initial []*Module) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	triggers, err := c.unresolve(ctx, initial)
	if err != nil {
		return err
	}
	if c.isSystemRefreshing() {
		return nil
	}
	if len(triggers) == 0 {
		return nil
	}
	return c.Resolve(ctx, triggers, false)
}

// unresolve loops unresolve0 until it reports no retry (its triggers may
// then be nil), retrying on optimistic-timestamp conflicts exactly as
// resolveAndApply does.
func (c *Container) unresolve(ctx context.Context, initial []*Module) ([]*Module, error) {
	for {
		triggers, retry, err := c.unresolve0(ctx, initial)
		if err != nil {
			return nil, err
		}
		if !retry {
			return triggers, nil
		}
	}
}

// unresolve0 is one attempt at the unresolve algorithm. retry=true means the
// optimistic timestamp changed underneath us and the caller should try
// again from a fresh snapshot.
func (c *Container) unresolve0(ctx context.Context, initial []*Module) (triggers []*Module, retry bool, err error) {
	c.db.ReadLock()
	initial = c.checkSystemExtensionRefresh(initial)
	timestamp := c.db.RevisionsTimestamp()
	wiringsClone := c.db.GetWiringsClone()
	refreshTriggers := c.getRefreshClosure(initial, wiringsClone)

	type removal struct {
		wiring          *ModuleWiring
		providerRemoves map[*ModuleWiring][]*ModuleWire
	}
	var toRemoveWirings []*ModuleWiring
	providerRemoves := make(map[*ModuleWiring][]*ModuleWire)
	var toRemoveRevisions []*ModuleRevision

	var liveTriggers []*Module
	for _, m := range refreshTriggers {
		if m.State() == StateUninstalled {
			continue
		}
		liveTriggers = append(liveTriggers, m)
		for _, rev := range m.Revisions.All() {
			w, ok := wiringsClone[rev]
			if !ok {
				continue
			}
			toRemoveWirings = append(toRemoveWirings, w)
			for _, wire := range w.RequiredWires() {
				providerWiring, ok := wiringsClone[wire.Provider]
				if ok && wire.Provider.Revisions() != nil && !isTrigger(wire.Provider.Revisions().Module, refreshTriggers) {
					providerRemoves[providerWiring] = append(providerRemoves[providerWiring], wire)
				}
			}
		}
	}
	for _, m := range liveTriggers {
		for _, rev := range m.Revisions.All() {
			if rev != m.CurrentRevision() {
				toRemoveRevisions = append(toRemoveRevisions, rev)
			}
		}
	}
	for _, m := range refreshTriggers {
		if m.State() == StateUninstalled {
			for _, rev := range m.Revisions.All() {
				toRemoveRevisions = append(toRemoveRevisions, rev)
			}
		}
	}

	sort.SliceStable(liveTriggers, func(i, j int) bool {
		li, lj := liveTriggers[i].StartLevel(), liveTriggers[j].StartLevel()
		if li != lj {
			return li < lj
		}
		return dependencyLess(liveTriggers[i], liveTriggers[j], wiringsClone)
	})
	c.db.ReadUnlock()

	if containsSystemModule(liveTriggers) && systemModuleActive(liveTriggers) {
		go c.refreshSystemModule(ctx, liveTriggers)
		return nil, false, nil
	}

	// Acquire UNRESOLVED locks in reverse order to match stop order.
	locked := make([]*Module, len(liveTriggers))
	copy(locked, liveTriggers)
	unlocks := make([]func(), 0, len(locked))
	for i := len(locked) - 1; i >= 0; i-- {
		unlock := locked[i].StateChangeLock(TransitionUnresolved)
		unlocks = append(unlocks, unlock)
	}
	defer func() {
		for _, u := range unlocks {
			u()
		}
	}()

	restartable := make(map[*Module]bool)
	for i := len(locked) - 1; i >= 0; i-- {
		m := locked[i]
		wasActive := m.State() == StateActive
		if m.State().InActiveSet() {
			if stopErr := c.stopTransient(m); stopErr != nil {
				c.adaptor.PublishContainerEvent(EventError, m, stopErr)
			}
		}
		if wasActive {
			restartable[m] = true
		}
	}

	for _, m := range locked {
		if m.State().InActiveSet() {
			return nil, false, newContainerError(ErrInvariantViolation, "unresolve: module still active after stop pass", nil)
		}
	}

	c.db.WriteLock()
	if timestamp != c.db.RevisionsTimestamp() {
		c.db.WriteUnlock()
		return nil, true, nil
	}

	for providerWiring, wires := range providerRemoves {
		providerWiring.RemoveProvidedWires(wires)
	}
	for _, rev := range toRemoveRevisions {
		c.db.DetachRevision(rev)
		c.db.RemoveCapabilities(rev)
		c.db.ClearRemovalPending(rev)
	}
	for _, w := range toRemoveWirings {
		w.Invalidate()
	}
	for _, m := range locked {
		if rev := m.CurrentRevision(); rev != nil {
			c.db.RemoveWiring(rev)
		}
	}
	c.db.WriteUnlock()

	var toPublish []*Module
	for _, m := range locked {
		if m.State() == StateResolved {
			m.SetState(StateInstalled)
			toPublish = append(toPublish, m)
		}
	}

	for _, m := range toPublish {
		c.adaptor.PublishModuleEvent(EventUnresolved, m, nil)
	}

	var survivors []*Module
	for _, m := range locked {
		if restartable[m] {
			survivors = append(survivors, m)
		}
	}
	return survivors, false, nil
}

// checkSystemExtensionRefresh removes the system module from initial when
// it is active (it is never unresolved directly, only via
// refreshSystemModule), and removes any resolved fragment whose current
// host wire resolves to the system module (id 0), since unresolving that
// fragment would needlessly shut down the framework.
func (c *Container) checkSystemExtensionRefresh(initial []*Module) []*Module {
	var out []*Module
	for _, m := range initial {
		if m.ID == SystemModuleID && m.State() == StateActive {
			continue
		}
		if m.State() == StateResolved || m.State().InActiveSet() {
			rev := m.CurrentRevision()
			if rev != nil && rev.IsFragment {
				if w, ok := c.db.GetWiring(rev); ok {
					isSystemHost := false
					for _, wire := range w.RequiredWires() {
						if wire.Namespace == NamespaceHost && wire.Provider != nil &&
							wire.Provider.Revisions() != nil && wire.Provider.Revisions().Module.ID == SystemModuleID {
							isSystemHost = true
						}
					}
					if isSystemHost {
						continue
					}
				}
			}
		}
		out = append(out, m)
	}
	return out
}

// getRefreshClosure computes the transitive set of modules that must be
// unresolved together: starting from initial, DFS-add every requirer of
// every provided wire of any revision of the current node, and for
// fragment revisions also add every host across required host wires.
func (c *Container) getRefreshClosure(initial []*Module, wirings map[*ModuleRevision]*ModuleWiring) []*Module {
	if initial == nil {
		for _, rev := range c.db.GetRemovalPending() {
			if revs := rev.Revisions(); revs != nil {
				initial = append(initial, revs.Module)
			}
		}
	}

	visited := make(map[*Module]bool)
	var order []*Module
	var visit func(m *Module)
	visit = func(m *Module) {
		if visited[m] {
			return
		}
		visited[m] = true
		order = append(order, m)
		for _, rev := range m.Revisions.All() {
			w, ok := wirings[rev]
			if !ok {
				continue
			}
			for _, wire := range w.ProvidedWires() {
				if wire.Requirer == nil || wire.Requirer.Revisions() == nil {
					continue
				}
				visit(wire.Requirer.Revisions().Module)
			}
			if rev.IsFragment {
				for _, wire := range w.RequiredWires() {
					if wire.Namespace == NamespaceHost && wire.Provider != nil && wire.Provider.Revisions() != nil {
						visit(wire.Provider.Revisions().Module)
					}
				}
			}
		}
	}
	for _, m := range initial {
		visit(m)
	}
	return order
}

// refreshSystemModule is the distinguished asynchronous refresh path for
// the system module: it runs off the calling goroutine so the caller (and
// the start-level worker) can return promptly, tracked via the guarded
// systemRefreshing flag so unrelated resolves are refused while it runs.
func (c *Container) refreshSystemModule(ctx context.Context, triggers []*Module) {
	c.setSystemRefreshing(true)
	defer c.setSystemRefreshing(false)

	var sys *Module
	for _, m := range triggers {
		if m.ID == SystemModuleID {
			sys = m
			break
		}
	}
	if sys != nil && sys.State().InActiveSet() {
		if err := c.stopTransient(sys); err != nil {
			c.adaptor.PublishContainerEvent(EventError, sys, err)
		}
	}
	c.adaptor.RefreshedSystemModule()
}

func isTrigger(m *Module, triggers []*Module) bool {
	for _, t := range triggers {
		if t == m {
			return true
		}
	}
	return false
}

func containsSystemModule(modules []*Module) bool {
	for _, m := range modules {
		if m.ID == SystemModuleID {
			return true
		}
	}
	return false
}

func systemModuleActive(modules []*Module) bool {
	for _, m := range modules {
		if m.ID == SystemModuleID {
			return m.State() == StateActive
		}
	}
	return false
}

func dependencyLess(a, b *Module, wirings map[*ModuleRevision]*ModuleWiring) bool {
	arev := a.CurrentRevision()
	if arev == nil {
		return false
	}
	w, ok := wirings[arev]
	if !ok {
		return false
	}
	for _, wire := range w.RequiredWires() {
		if wire.Provider != nil && wire.Provider.Revisions() != nil && wire.Provider.Revisions().Module == b {
			return true
		}
	}
	return false
}
