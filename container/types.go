// Package container implements the module container core: install, update,
// uninstall, resolve, refresh, and start-level ordering of a dynamic set of
// modules whose dependencies are expressed as a capability/requirement
// graph.
package container

import (
	"sync"
	"sync/atomic"

	"github.com/Masterminds/semver/v3"
)

// State is a module's position in its discrete lifecycle.
type State int32

const (
	StateInstalled State = iota
	StateResolved
	StateStarting
	StateActive
	StateStopping
	StateUninstalled
)

func (s State) String() string {
	switch s {
	case StateInstalled:
		return "INSTALLED"
	case StateResolved:
		return "RESOLVED"
	case StateStarting:
		return "STARTING"
	case StateActive:
		return "ACTIVE"
	case StateStopping:
		return "STOPPING"
	case StateUninstalled:
		return "UNINSTALLED"
	default:
		return "UNKNOWN"
	}
}

// InActiveSet reports whether s is one of {STARTING, ACTIVE, STOPPING}.
func (s State) InActiveSet() bool {
	return s == StateStarting || s == StateActive || s == StateStopping
}

// InResolvedSet reports whether s is one of {RESOLVED} ∪ ACTIVE_SET.
func (s State) InResolvedSet() bool {
	return s == StateResolved || s.InActiveSet()
}

// TransitionKind parameterises a module's state-change lock: it records
// which transition is in flight. The lock is not re-entrant; a second
// acquisition blocks until release, whatever its kind.
type TransitionKind int

const (
	TransitionInstalled TransitionKind = iota
	TransitionResolved
	TransitionUnresolved
	TransitionUpdated
	TransitionUninstalled
	TransitionStarted
	TransitionStopped
)

// SystemModuleID is the reserved identity of the system module, which
// always exists while the container is open and cannot be uninstalled by
// ordinary flow.
const SystemModuleID uint64 = 0

// Namespace identifies a typed domain of capability/requirement matching.
type Namespace string

const (
	NamespacePackage Namespace = "package"
	NamespaceHost    Namespace = "host"
)

// Capability is an attributed claim offered by a revision in a namespace.
type Capability struct {
	Namespace  Namespace
	Attributes map[string]any
}

// Requirement is an attributed need declared by a revision in a namespace.
type Requirement struct {
	Namespace  Namespace
	Attributes map[string]any
	// Matches reports whether cap satisfies this requirement. The default
	// resolver in container/resolver uses this to keep matching semantics
	// out of the container core, which treats the resolver as an external
	// collaborator.
	Matches func(cap Capability) bool
}

// ModuleWire is a directed edge between a requirer's requirement and a
// provider's capability inside one namespace. Wires are owned jointly by
// the two wirings they connect; invalidation is idempotent.
type ModuleWire struct {
	Namespace       Namespace
	Requirer        *ModuleRevision
	Requirement     Requirement
	Provider        *ModuleRevision
	Capability      Capability
	mu              sync.Mutex
	invalidated     bool
}

// Invalidate marks the wire dead. Safe to call more than once.
func (w *ModuleWire) Invalidate() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.invalidated = true
}

func (w *ModuleWire) IsInvalidated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.invalidated
}

// ModuleWiring is the resolved binding of one revision.
type ModuleWiring struct {
	Revision *ModuleRevision

	mu            sync.RWMutex
	providedWires []*ModuleWire
	requiredWires []*ModuleWire
	invalidated   bool
}

func NewModuleWiring(rev *ModuleRevision) *ModuleWiring {
	return &ModuleWiring{Revision: rev}
}

func (w *ModuleWiring) ProvidedWires() []*ModuleWire {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.invalidated {
		return nil
	}
	out := make([]*ModuleWire, len(w.providedWires))
	copy(out, w.providedWires)
	return out
}

func (w *ModuleWiring) RequiredWires() []*ModuleWire {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.invalidated {
		return nil
	}
	out := make([]*ModuleWire, len(w.requiredWires))
	copy(out, w.requiredWires)
	return out
}

// SetWires replaces the provided/required wire lists in place. Callers must
// hold the database write lock; mutator methods on this type always assume
// the caller holds it.
func (w *ModuleWiring) SetWires(provided, required []*ModuleWire) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.providedWires = provided
	w.requiredWires = required
}

func (w *ModuleWiring) AddProvidedWire(wire *ModuleWire) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.providedWires = append(w.providedWires, wire)
}

func (w *ModuleWiring) AddRequiredWire(wire *ModuleWire) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.requiredWires = append(w.requiredWires, wire)
}

// RemoveProvidedWires strips the given wires from the provided list and
// invalidates each of them. Callers must hold the database write lock.
func (w *ModuleWiring) RemoveProvidedWires(toRemove []*ModuleWire) {
	w.mu.Lock()
	defer w.mu.Unlock()
	dead := make(map[*ModuleWire]struct{}, len(toRemove))
	for _, wire := range toRemove {
		dead[wire] = struct{}{}
		wire.Invalidate()
	}
	kept := w.providedWires[:0:0]
	for _, wire := range w.providedWires {
		if _, isDead := dead[wire]; !isDead {
			kept = append(kept, wire)
		}
	}
	w.providedWires = kept
}

// Invalidate marks the wiring and every wire it owns dead. Safe once;
// idempotent on subsequent calls.
func (w *ModuleWiring) Invalidate() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.invalidated {
		return
	}
	w.invalidated = true
	for _, wire := range w.providedWires {
		wire.Invalidate()
	}
	for _, wire := range w.requiredWires {
		wire.Invalidate()
	}
}

func (w *ModuleWiring) IsInvalidated() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.invalidated
}

// ModuleRevision is an immutable description of a snapshot: symbolic name,
// version, the capabilities it offers, the requirements it declares, and
// whether it is a fragment.
type ModuleRevision struct {
	SymbolicName string
	Version      *semver.Version
	Capabilities []Capability
	Requirements []Requirement
	IsFragment   bool
	RevisionInfo any

	revisions *ModuleRevisions // back-reference, set on creation
}

// Revisions returns the ModuleRevisions container this revision belongs to.
func (r *ModuleRevision) Revisions() *ModuleRevisions { return r.revisions }

// ModuleRevisions is the ordered sequence of revisions owned by a Module;
// exactly one is current unless the module is uninstalled.
type ModuleRevisions struct {
	Module   *Module
	mu       sync.RWMutex
	all      []*ModuleRevision
	current  *ModuleRevision
}

func NewModuleRevisions(m *Module) *ModuleRevisions {
	return &ModuleRevisions{Module: m}
}

func (rs *ModuleRevisions) Current() *ModuleRevision {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.current
}

func (rs *ModuleRevisions) All() []*ModuleRevision {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]*ModuleRevision, len(rs.all))
	copy(out, rs.all)
	return out
}

// AddAndPromote appends rev, back-links it, and promotes it to current.
func (rs *ModuleRevisions) AddAndPromote(rev *ModuleRevision) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rev.revisions = rs
	rs.all = append(rs.all, rev)
	rs.current = rev
}

// Remove drops rev from this container's revision list, whether or not it
// is the current revision. Used by DetachRevision to make refresh's
// "discard the detached revision" step actually observable through All().
func (rs *ModuleRevisions) Remove(rev *ModuleRevision) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	kept := rs.all[:0:0]
	for _, r := range rs.all {
		if r != rev {
			kept = append(kept, r)
		}
	}
	rs.all = kept
	if rs.current == rev {
		rs.current = nil
	}
}

// Module is a long-lived entity with identity, a location, a current
// symbolic name/version (via its current revision), a start level, and a
// lifecycle state.
type Module struct {
	ID       uint64
	Location string

	Revisions *ModuleRevisions

	state atomic.Int32

	mu         sync.RWMutex
	startLevel int

	// stateChangeLock serializes transitions of a given kind on this module.
	stateChangeLock *transitionLock
}

// NewModule constructs a Module in StateInstalled with start level 1.
func NewModule(id uint64, location string) *Module {
	m := &Module{
		ID:              id,
		Location:        location,
		startLevel:      1,
		stateChangeLock: newTransitionLock(),
	}
	m.Revisions = NewModuleRevisions(m)
	m.state.Store(int32(StateInstalled))
	return m
}

func (m *Module) State() State { return State(m.state.Load()) }

func (m *Module) SetState(s State) { m.state.Store(int32(s)) }

func (m *Module) StartLevel() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.startLevel
}

func (m *Module) SetStartLevel(level int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startLevel = level
}

func (m *Module) IsSystemModule() bool { return m.ID == SystemModuleID }

// CurrentRevision is a convenience accessor.
func (m *Module) CurrentRevision() *ModuleRevision {
	return m.Revisions.Current()
}

// transitionLock is a mutex that records the TransitionKind of its current
// holder, mirroring the Java source's stateChangeLock plus
// holdsTransitionEventLock predicate. It is not re-entrant: acquiring it
// again, even for the same kind and from the same goroutine, blocks until
// it is released.
type transitionLock struct {
	mu      sync.Mutex
	holding atomic.Int32 // -1 = unheld, else the TransitionKind in flight
}

func newTransitionLock() *transitionLock {
	tl := &transitionLock{}
	tl.holding.Store(-1)
	return tl
}

// HoldsTransitionEventLock reports whether kind is the transition currently
// in flight on this module, used by auto-start to suppress reentrant starts.
func (tl *transitionLock) HoldsTransitionEventLock(kind TransitionKind) bool {
	return tl.holding.Load() == int32(kind)
}

func (tl *transitionLock) Lock(kind TransitionKind) {
	tl.mu.Lock()
	tl.holding.Store(int32(kind))
}

func (tl *transitionLock) Unlock() {
	tl.holding.Store(-1)
	tl.mu.Unlock()
}

// StateChangeLock exposes the module's transition lock for engines outside
// this file (install.go, resolve.go, refresh.go, startlevel.go).
func (m *Module) StateChangeLock(kind TransitionKind) func() {
	m.stateChangeLock.Lock(kind)
	return m.stateChangeLock.Unlock
}

func (m *Module) HoldsTransitionEventLock(kind TransitionKind) bool {
	return m.stateChangeLock.HoldsTransitionEventLock(kind)
}
