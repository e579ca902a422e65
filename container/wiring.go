package container

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ContainerWiring coalesces refresh/resolve calls for external clients and
// owns the refresh dispatcher thread (via Container.refreshDispatcher).
type ContainerWiring struct {
	c     *Container
	cache *lru.Cache[string, []*Module]
	cacheGen uint64
}

// NewContainerWiring wraps c with a bounded dependency-closure cache
// invalidated whenever the database's revisions timestamp advances.
func NewContainerWiring(c *Container) *ContainerWiring {
	cache, _ := lru.New[string, []*Module](256)
	return &ContainerWiring{c: c, cache: cache}
}

// RefreshBundles queues a single refresh job on the dedicated dispatcher;
// on completion it emits a REFRESH container event even if the refresh
// failed, publishing ERROR first when it did.
func (w *ContainerWiring) RefreshBundles(ctx context.Context, modules []*Module) error {
	err := w.c.refreshDispatcher.submit(modules)
	if err != nil {
		w.c.adaptor.PublishContainerEvent(EventError, nil, err)
	}
	w.c.adaptor.PublishContainerEvent(EventRefresh, nil, nil)
	return err
}

// ResolveBundles calls Resolve(modules, false) and reports whether every
// module in the set ended up with a wiring.
func (w *ContainerWiring) ResolveBundles(ctx context.Context, modules []*Module) bool {
	if err := w.c.Resolve(ctx, modules, false); err != nil {
		return false
	}
	w.c.db.ReadLock()
	defer w.c.db.ReadUnlock()
	targets := modules
	if targets == nil {
		targets = w.c.db.GetModules()
	}
	for _, m := range targets {
		rev := m.CurrentRevision()
		if rev == nil {
			return false
		}
		if _, ok := w.c.db.GetWiring(rev); !ok {
			return false
		}
	}
	return true
}

// GetRemovalPendingBundles returns the modules owning a removal-pending
// revision, under the database read lock.
func (w *ContainerWiring) GetRemovalPendingBundles() []*Module {
	w.c.db.ReadLock()
	defer w.c.db.ReadUnlock()
	seen := make(map[*Module]bool)
	var out []*Module
	for _, rev := range w.c.db.GetRemovalPending() {
		if revs := rev.Revisions(); revs != nil && !seen[revs.Module] {
			seen[revs.Module] = true
			out = append(out, revs.Module)
		}
	}
	return out
}

// GetDependencyClosure returns the refresh closure of modules, memoized in
// an LRU cache keyed by the module-ID set and invalidated wholesale on
// every revisions-timestamp bump.
func (w *ContainerWiring) GetDependencyClosure(modules []*Module) []*Module {
	w.c.db.ReadLock()
	ts := w.c.db.RevisionsTimestamp()
	wirings := w.c.db.GetWiringsClone()
	w.c.db.ReadUnlock()

	if ts != w.cacheGen {
		w.cache.Purge()
		w.cacheGen = ts
	}

	key := closureCacheKey(modules)
	if cached, ok := w.cache.Get(key); ok {
		return cached
	}

	closure := w.c.getRefreshClosure(modules, wirings)
	w.cache.Add(key, closure)
	return closure
}

func closureCacheKey(modules []*Module) string {
	ids := make([]string, len(modules))
	for i, m := range modules {
		ids[i] = strconv.FormatUint(m.ID, 10)
	}
	return fmt.Sprintf("%d:%s", len(ids), strings.Join(ids, ","))
}
