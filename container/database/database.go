// Package database supplies the default in-memory ModuleDatabase: the
// persistent store of modules, revisions, wirings, the removal-pending set,
// and start-level assignments that container.ResolveEngine and
// container.RefreshEngine transact against.
//
// Grounded on the RWMutex-plus-map registry shape of a service locator,
// generalized here into a module/revision/wiring graph store with an added
// monotonic revisions timestamp for optimistic concurrency.
package database

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/GoCodeAlone/containerkit/container"
)

// InMemory is the default ModuleDatabase implementation.
type InMemory struct {
	rw sync.RWMutex

	timestamp atomic.Uint64

	byID       map[uint64]*container.Module
	byLocation map[string]*container.Module
	byName     map[string][]*container.ModuleRevision

	wirings map[*container.ModuleRevision]*container.ModuleWiring

	removalPending map[*container.ModuleRevision]struct{}

	nextID uint64

	initialStartLevel int
}

// New constructs an empty InMemory database. The system module (id 0) is
// not created here, and container.Load does not create it either; the
// caller installs it with InstallSystemModule.
func New() *InMemory {
	return &InMemory{
		byID:           make(map[uint64]*container.Module),
		byLocation:     make(map[string]*container.Module),
		byName:         make(map[string][]*container.ModuleRevision),
		wirings:        make(map[*container.ModuleRevision]*container.ModuleWiring),
		removalPending: make(map[*container.ModuleRevision]struct{}),
		nextID:         1,
		initialStartLevel: 1,
	}
}

func (db *InMemory) ReadLock()    { db.rw.RLock() }
func (db *InMemory) ReadUnlock()  { db.rw.RUnlock() }
func (db *InMemory) WriteLock()   { db.rw.Lock() }
func (db *InMemory) WriteUnlock() { db.rw.Unlock() }

func (db *InMemory) RevisionsTimestamp() uint64 { return db.timestamp.Load() }

func (db *InMemory) bump() { db.timestamp.Add(1) }

func (db *InMemory) GetModules() []*container.Module {
	out := make([]*container.Module, 0, len(db.byID))
	for _, m := range db.byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (db *InMemory) GetModule(id uint64) (*container.Module, bool) {
	m, ok := db.byID[id]
	return m, ok
}

func (db *InMemory) GetModuleByLocation(location string) (*container.Module, bool) {
	m, ok := db.byLocation[location]
	return m, ok
}

func (db *InMemory) GetRevisions(name string) []*container.ModuleRevision {
	revs := db.byName[name]
	out := make([]*container.ModuleRevision, len(revs))
	copy(out, revs)
	return out
}

func (db *InMemory) GetWiring(rev *container.ModuleRevision) (*container.ModuleWiring, bool) {
	w, ok := db.wirings[rev]
	return w, ok
}

func (db *InMemory) GetWiringsClone() map[*container.ModuleRevision]*container.ModuleWiring {
	out := make(map[*container.ModuleRevision]*container.ModuleWiring, len(db.wirings))
	for k, v := range db.wirings {
		out[k] = v
	}
	return out
}

// Install allocates a new Module with the next free ID (starting at 1; the
// system module is installed only through InstallSystemModule) at location,
// attaches rev as its current revision, and bumps the timestamp.
func (db *InMemory) Install(location string, rev *container.ModuleRevision) *container.Module {
	id := db.nextID
	db.nextID++
	m := container.NewModule(id, location)
	m.Revisions.AddAndPromote(rev)

	db.byID[id] = m
	db.byLocation[location] = m
	db.byName[rev.SymbolicName] = append(db.byName[rev.SymbolicName], rev)
	db.bump()
	return m
}

// InstallSystemModule installs the reserved id-0 module. The container never
// calls it; the host calls it once, before Load or SetInitialModuleStates.
func (db *InMemory) InstallSystemModule(location string, rev *container.ModuleRevision) *container.Module {
	m := container.NewModule(container.SystemModuleID, location)
	m.Revisions.AddAndPromote(rev)
	db.byID[container.SystemModuleID] = m
	db.byLocation[location] = m
	db.byName[rev.SymbolicName] = append(db.byName[rev.SymbolicName], rev)
	db.bump()
	return m
}

func (db *InMemory) Update(m *container.Module, rev *container.ModuleRevision) {
	m.Revisions.AddAndPromote(rev)
	db.byName[rev.SymbolicName] = append(db.byName[rev.SymbolicName], rev)
	db.bump()
}

func (db *InMemory) Uninstall(m *container.Module) {
	delete(db.byLocation, m.Location)
	db.bump()
}

func (db *InMemory) MergeWiring(delta map[*container.ModuleRevision]*container.ModuleWiring) {
	for rev, w := range delta {
		db.wirings[rev] = w
	}
	db.bump()
}

func (db *InMemory) SetWiring(rev *container.ModuleRevision, wiring *container.ModuleWiring) {
	db.wirings[rev] = wiring
	db.bump()
}

func (db *InMemory) RemoveWiring(rev *container.ModuleRevision) {
	delete(db.wirings, rev)
	db.bump()
}

func (db *InMemory) RemoveCapabilities(rev *container.ModuleRevision) {
	rev.Capabilities = nil
	db.bump()
}

func (db *InMemory) SortModules(modules []*container.Module, keys ...container.SortKey) []*container.Module {
	out := make([]*container.Module, len(modules))
	copy(out, modules)
	db.sortInPlace(out, keys...)
	return out
}

func (db *InMemory) GetSortedModules(keys ...container.SortKey) []*container.Module {
	return db.SortModules(db.GetModules(), keys...)
}

func (db *InMemory) sortInPlace(modules []*container.Module, keys ...container.SortKey) {
	sort.SliceStable(modules, func(i, j int) bool {
		for _, key := range keys {
			switch key {
			case container.BySortStartLevel:
				li, lj := modules[i].StartLevel(), modules[j].StartLevel()
				if li != lj {
					return li < lj
				}
			case container.BySortDependency:
				if db.dependsOn(modules[j], modules[i]) {
					return true
				}
				if db.dependsOn(modules[i], modules[j]) {
					return false
				}
			}
		}
		return modules[i].ID < modules[j].ID
	})
}

// dependsOn reports whether a's current revision has a required wire
// provided by b's current revision, used to keep BY_DEPENDENCY order
// consistent (a dependency sorts before its dependent).
func (db *InMemory) dependsOn(a, b *container.Module) bool {
	arev := a.CurrentRevision()
	if arev == nil {
		return false
	}
	w, ok := db.wirings[arev]
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

func (db *InMemory) SetStartLevel(m *container.Module, level int) {
	m.SetStartLevel(level)
	db.bump()
}

func (db *InMemory) GetInitialModuleStartLevel() int { return db.initialStartLevel }

func (db *InMemory) SetInitialModuleStartLevel(level int) { db.initialStartLevel = level }

func (db *InMemory) GetRemovalPending() []*container.ModuleRevision {
	out := make([]*container.ModuleRevision, 0, len(db.removalPending))
	for rev := range db.removalPending {
		out = append(out, rev)
	}
	return out
}

func (db *InMemory) AddRemovalPending(rev *container.ModuleRevision) {
	db.removalPending[rev] = struct{}{}
}

func (db *InMemory) ClearRemovalPending(rev *container.ModuleRevision) {
	delete(db.removalPending, rev)
}

func (db *InMemory) DetachRevision(rev *container.ModuleRevision) {
	if revs := rev.Revisions(); revs != nil {
		revs.Remove(rev)
	}
	byName := db.byName[rev.SymbolicName]
	for i, r := range byName {
		if r == rev {
			db.byName[rev.SymbolicName] = append(byName[:i], byName[i+1:]...)
			break
		}
	}
	db.bump()
}

var _ container.ModuleDatabase = (*InMemory)(nil)
