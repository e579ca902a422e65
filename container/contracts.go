package container

import "context"

// SortKey selects a dimension used to order a slice of modules before
// starting or stopping a batch.
type SortKey int

const (
	// BySortDependency orders modules so a module never precedes one of
	// its wired dependencies.
	BySortDependency SortKey = iota
	// BySortStartLevel orders modules by ascending start level.
	BySortStartLevel
)

// CollisionMode tells the collision hook why it is being asked to filter
// candidates.
type CollisionMode int

const (
	CollisionInstalling CollisionMode = iota
	CollisionUpdating
)

// CollisionHook lets an external policy filter collision candidates during
// install/update; it may mutate candidates in place. It is untrusted
// external code that may block arbitrarily and is invoked outside the
// database read lock.
type CollisionHook interface {
	FilterCollisions(mode CollisionMode, target *Module, candidates []*Module) []*Module
}

// Adaptor is the container's sole outward-facing collaborator: it publishes
// lifecycle events, exposes a collision hook, provides configuration, and
// receives the system-module-refresh completion signal. Implementations
// must be safe for concurrent use and must not call back into the
// container synchronously.
type Adaptor interface {
	PublishModuleEvent(kind EventKind, module *Module, origin *Module)
	PublishContainerEvent(kind EventKind, module *Module, cause error)
	CollisionHook() CollisionHook
	GetProperty(key string) (string, bool)
	RefreshedSystemModule()
}

// ModuleDatabase is the persistent (here: in-memory) store of modules,
// revisions, wirings, the removal-pending set, and start-level assignments.
// It exposes its own read/write lock and a monotonically advancing
// revisions timestamp for the optimistic-concurrency protocol used by
// ResolveEngine and RefreshEngine.
type ModuleDatabase interface {
	ReadLock()
	ReadUnlock()
	WriteLock()
	WriteUnlock()

	RevisionsTimestamp() uint64

	GetModules() []*Module
	GetModule(id uint64) (*Module, bool)
	GetModuleByLocation(location string) (*Module, bool)
	GetRevisions(name string) []*ModuleRevision

	GetWiring(rev *ModuleRevision) (*ModuleWiring, bool)
	GetWiringsClone() map[*ModuleRevision]*ModuleWiring

	Install(location string, rev *ModuleRevision) *Module
	Update(m *Module, rev *ModuleRevision)
	Uninstall(m *Module)

	MergeWiring(delta map[*ModuleRevision]*ModuleWiring)
	SetWiring(rev *ModuleRevision, wiring *ModuleWiring)
	RemoveWiring(rev *ModuleRevision)
	RemoveCapabilities(rev *ModuleRevision)

	SortModules(modules []*Module, keys ...SortKey) []*Module
	GetSortedModules(keys ...SortKey) []*Module

	SetStartLevel(m *Module, level int)
	GetInitialModuleStartLevel() int
	SetInitialModuleStartLevel(level int)

	GetRemovalPending() []*ModuleRevision
	AddRemovalPending(rev *ModuleRevision)
	ClearRemovalPending(rev *ModuleRevision)

	// DetachRevision removes rev from its ModuleRevisions container; used by
	// refresh once a non-current or uninstalled revision's wiring is torn
	// down.
	DetachRevision(rev *ModuleRevision)
}

// StartOption tags the semantics of a Start call the way the reference
// container does: TRANSIENT changes do not persist a module's "should be
// active" flag; TRANSIENT_IF_AUTO_START only starts a module whose own
// auto-start policy allows it; TRANSIENT_RESUME resumes a module that was
// active before an intervening stop, without re-checking auto-start policy.
type StartOption int

const (
	StartTransient StartOption = 1 << iota
	StartTransientIfAutoStart
	StartTransientResume
)

// LifecycleHook is the per-module activator: the actual start/stop logic
// (classloading, running an activator, whatever the host module type does).
// The container never inspects why start/stop succeeds or fails; it only
// sequences calls and reports outcomes as events.
type LifecycleHook interface {
	Start(ctx context.Context, m *Module, opts StartOption) error
	Stop(ctx context.Context, m *Module, opts StartOption) error
	// AutoStartAllowed reports whether m should be included in an
	// auto-start pass gated by TRANSIENT_IF_AUTO_START.
	AutoStartAllowed(m *Module) bool
}

// ModuleResolver is a pure function collaborator: given triggers plus the
// unresolved set and current wirings, it computes a delta wiring (or a
// dynamic delta for one package). It must not mutate its inputs and must
// not acquire any container or database lock.
type ModuleResolver interface {
	ResolveDelta(
		ctx context.Context,
		triggers []*ModuleRevision,
		triggersMandatory bool,
		unresolved []*ModuleRevision,
		wirings map[*ModuleRevision]*ModuleWiring,
		db ModuleDatabase,
	) (map[*ModuleRevision]*ModuleWiring, error)

	ResolveDynamicDelta(
		ctx context.Context,
		requirement Requirement,
		revision *ModuleRevision,
		wirings map[*ModuleRevision]*ModuleWiring,
		db ModuleDatabase,
	) (map[*ModuleRevision]*ModuleWiring, error)
}
