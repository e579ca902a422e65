package container

import (
	"context"
)

// Resolve loops resolveAndApply until it settles, so timestamp conflicts
// drive an unbounded but deterministic retry: each attempt either commits
// or observes a timestamp that another writer has advanced.
func (c *Container) Resolve(ctx context.Context, triggers []*Module, triggersMandatory bool) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if c.isSystemRefreshing() {
		return newContainerError(ErrResolution, "resolve: system module refresh in progress", ErrSystemModuleRefresh)
	}
	for {
		done, err := c.resolveAndApply(ctx, triggers, triggersMandatory, true)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// resolveAndApply performs one snapshot→compute→apply attempt. It returns
// done=true when there was nothing left to resolve (delta empty) or the
// apply committed; done=false signals the caller should retry because the
// optimistic timestamp check failed.
func (c *Container) resolveAndApply(ctx context.Context, triggers []*Module, triggersMandatory, restartTriggers bool) (bool, error) {
	c.db.ReadLock()
	timestamp := c.db.RevisionsTimestamp()
	wiringsClone := c.db.GetWiringsClone()
	triggerRevisions := currentRevisionsOf(triggers)
	unresolved := c.unresolvedRevisions()
	c.db.ReadUnlock()

	delta, err := c.resolver.ResolveDelta(ctx, triggerRevisions, triggersMandatory, unresolved, wiringsClone, c.db)
	if err != nil {
		return false, newContainerError(ErrResolution, "resolve: resolver failed", err)
	}
	if len(delta) == 0 {
		return true, nil
	}

	modulesResolved := c.newlyResolvedModules(delta)
	committed, err := c.applyDelta(ctx, delta, modulesResolved, timestamp, restartTriggers, triggers)
	if err != nil {
		return false, err
	}
	return committed, nil
}

// unresolvedRevisions returns the current revisions of installed,
// non-uninstalled modules that have no wiring yet.
func (c *Container) unresolvedRevisions() []*ModuleRevision {
	var out []*ModuleRevision
	for _, m := range c.db.GetModules() {
		if m.State() == StateUninstalled {
			continue
		}
		rev := m.CurrentRevision()
		if rev == nil {
			continue
		}
		if _, ok := c.db.GetWiring(rev); !ok {
			out = append(out, rev)
		}
	}
	return out
}

func currentRevisionsOf(modules []*Module) []*ModuleRevision {
	var out []*ModuleRevision
	for _, m := range modules {
		if m.State() == StateUninstalled {
			continue
		}
		if rev := m.CurrentRevision(); rev != nil {
			out = append(out, rev)
		}
	}
	return out
}

func (c *Container) newlyResolvedModules(delta map[*ModuleRevision]*ModuleWiring) []*Module {
	seen := make(map[*Module]bool)
	var out []*Module
	for rev := range delta {
		if _, alreadyWired := c.db.GetWiring(rev); alreadyWired {
			continue
		}
		if revs := rev.Revisions(); revs != nil && !seen[revs.Module] {
			seen[revs.Module] = true
			out = append(out, revs.Module)
		}
	}
	return out
}

// applyDelta implements ResolveEngine phase C: lock RESOLVED state-change
// locks on modulesResolved in iteration order, re-validate the optimistic
// timestamp under the database write lock, commit and set state, then
// release those locks before publishing events, restarting triggers, or
// auto-starting — those steps call back into startTransientResume/
// startTransientIfAutoStart, which take the very same per-module locks
// (under a different transition kind) on modules this call already holds,
// so the locks must be gone before phase C's own critical section ends.
func (c *Container) applyDelta(
	ctx context.Context,
	delta map[*ModuleRevision]*ModuleWiring,
	modulesResolved []*Module,
	timestamp uint64,
	restartTriggers bool,
	triggers []*Module,
) (bool, error) {
	unlocks := make([]func(), 0, len(modulesResolved))
	release := func() {
		for _, unlock := range unlocks {
			unlock()
		}
		unlocks = nil
	}
	for _, m := range modulesResolved {
		unlocks = append(unlocks, m.StateChangeLock(TransitionResolved))
	}

	c.db.WriteLock()
	if timestamp != c.db.RevisionsTimestamp() {
		c.db.WriteUnlock()
		release()
		return false, nil
	}

	for rev, w := range delta {
		if existing, ok := c.db.GetWiring(rev); ok {
			existing.SetWires(w.ProvidedWires(), w.RequiredWires())
			delta[rev] = existing
		}
	}
	c.db.MergeWiring(delta)
	c.db.SortModules(modulesResolved, BySortDependency, BySortStartLevel)
	c.db.WriteUnlock()

	for _, m := range modulesResolved {
		m.SetState(StateResolved)
	}
	release()

	for _, m := range modulesResolved {
		c.adaptor.PublishModuleEvent(EventResolved, m, nil)
	}

	if restartTriggers {
		for _, t := range triggers {
			if t.ID == SystemModuleID {
				continue
			}
			if t.State().InResolvedSet() {
				if err := c.startTransientResume(t); err != nil {
					c.adaptor.PublishContainerEvent(EventError, t, err)
				}
			}
		}
	}

	triggerSet := make(map[*Module]bool, len(triggers))
	for _, t := range triggers {
		triggerSet[t] = true
	}
	// Auto-start: preserved verbatim from the reference container's
	// questionable auto-activate-everything behavior (see DESIGN.md).
	if c.AutoStartOnResolve {
		for _, m := range modulesResolved {
			if m.ID == SystemModuleID || triggerSet[m] {
				continue
			}
			if m.HoldsTransitionEventLock(TransitionStarted) {
				continue
			}
			if err := c.startTransientIfAutoStart(m); err != nil {
				c.adaptor.PublishContainerEvent(EventError, m, err)
			}
		}
	}

	return true, nil
}

// ResolveDynamic attempts to satisfy exactly one package requirement of
// revision dynamically, returning the new tail required wire on success or
// nil if the resolver could not satisfy it.
func (c *Container) ResolveDynamic(ctx context.Context, packageName string, revision *ModuleRevision) (*ModuleWire, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if revision.IsFragment {
		return nil, nil
	}
	c.db.ReadLock()
	_, resolved := c.db.GetWiring(revision)
	c.db.ReadUnlock()
	if !resolved {
		return nil, nil
	}

	for {
		c.db.ReadLock()
		timestamp := c.db.RevisionsTimestamp()
		wiringsClone := c.db.GetWiringsClone()
		c.db.ReadUnlock()

		dynReqs := dynamicPackageRequirements(revision, packageName)
		var delta map[*ModuleRevision]*ModuleWiring
		for _, req := range dynReqs {
			d, err := c.resolver.ResolveDynamicDelta(ctx, req, revision, wiringsClone, c.db)
			if err != nil {
				return nil, newContainerError(ErrResolution, "resolveDynamic: resolver failed", err)
			}
			if len(d) > 0 {
				delta = d
				break
			}
		}
		if delta == nil {
			return nil, nil
		}

		revWiring, ok := delta[revision]
		if !ok {
			return nil, newContainerError(ErrResolution, "resolveDynamic: delta did not wire the requesting revision", ErrInconsistentDynamicWire)
		}
		required := revWiring.RequiredWires()
		if len(required) == 0 {
			return nil, newContainerError(ErrResolution, "resolveDynamic: no required wire produced", ErrInconsistentDynamicWire)
		}
		tail := required[len(required)-1]
		if tail.Namespace != NamespacePackage || tail.Capability.Attributes["package"] != packageName {
			return nil, newContainerError(ErrResolution, "resolveDynamic: inconsistent wire", ErrInconsistentDynamicWire)
		}

		committed, err := c.applyDelta(ctx, delta, nil, timestamp, false, nil)
		if err != nil {
			return nil, err
		}
		if committed {
			return tail, nil
		}
	}
}

// dynamicPackageRequirements projects the package-namespace requirements of
// revision that could plausibly satisfy packageName.
func dynamicPackageRequirements(revision *ModuleRevision, packageName string) []Requirement {
	var out []Requirement
	for _, req := range revision.Requirements {
		if req.Namespace != NamespacePackage {
			continue
		}
		out = append(out, Requirement{
			Namespace:  NamespacePackage,
			Attributes: map[string]any{"package": packageName},
			Matches: func(cap Capability) bool {
				return cap.Attributes["package"] == packageName
			},
		})
	}
	return out
}
