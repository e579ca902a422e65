package container

import (
	"context"
	"math"
	"strconv"

	"github.com/golobby/cast"
)

// UseBeginningStartLevel asks SetFrameworkStartLevel to read its target
// from the framework.beginning.startlevel configuration key instead of a
// caller-supplied value.
const UseBeginningStartLevel = math.MinInt32

const beginningStartLevelProperty = "framework.beginning.startlevel"
const defaultBeginningStartLevel = 1

// ActiveStartLevel returns the framework's current active start level (0
// means the container has not yet been activated).
func (c *Container) ActiveStartLevel() int {
	return int(c.activeStartLevel.Load())
}

// SetModuleStartLevel persists a module's start level and queues a
// MODULE_STARTLEVEL dispatch. Rejects the system module and levels < 1.
func (c *Container) SetModuleStartLevel(m *Module, level int) error {
	if m.ID == SystemModuleID {
		return newContainerError(ErrInvalidStartLevel, "set start level: system module", nil)
	}
	if level < 1 {
		return newContainerError(ErrInvalidStartLevel, "set start level: must be >= 1", nil)
	}
	if m.StartLevel() == level {
		return nil
	}
	c.db.WriteLock()
	c.db.SetStartLevel(m, level)
	c.db.WriteUnlock()

	return c.startLevelDispatcher.submit(startLevelJob{
		id:       newJobID(),
		kind:     jobModuleStartLevel,
		target:   level,
		module:   m,
		response: make(chan error, 1),
	})
}

// SetFrameworkStartLevel ramps the container's active start level toward
// target (or the beginning-start-level property when target ==
// UseBeginningStartLevel). Rejects target < 1.
func (c *Container) SetFrameworkStartLevel(ctx context.Context, target int) error {
	if target == UseBeginningStartLevel {
		target = c.readBeginningStartLevel()
	}
	if target < 1 {
		return newContainerError(ErrInvalidStartLevel, "set framework start level: must be >= 1", nil)
	}
	return c.startLevelDispatcher.submit(startLevelJob{
		id:       newJobID(),
		kind:     jobFrameworkStartLevel,
		target:   target,
		response: make(chan error, 1),
	})
}

func (c *Container) readBeginningStartLevel() int {
	raw, ok := c.adaptor.GetProperty(beginningStartLevelProperty)
	if !ok || raw == "" {
		return defaultBeginningStartLevel
	}
	level, err := cast.ToInt(raw)
	if err != nil {
		if parsed, perr := strconv.Atoi(raw); perr == nil {
			return parsed
		}
		return defaultBeginningStartLevel
	}
	return level
}

// doContainerStartLevel is the FRAMEWORK_STARTLEVEL dispatch handler,
// serialized under the framework lock so only one ramp runs at a time.
func (c *Container) doContainerStartLevel(ctx context.Context, target int) error {
	c.frameworkSLLock.Lock()
	defer c.frameworkSLLock.Unlock()

	current := int(c.activeStartLevel.Load())
	var stepErr error
	if current < target {
		for level := current + 1; level <= target; level++ {
			if c.isSystemRefreshing() {
				break
			}
			c.incStartLevel(ctx, level)
			c.activeStartLevel.Store(int32(level))
		}
	} else if current > target {
		for level := current - 1; level >= target; level-- {
			if c.isSystemRefreshing() {
				break
			}
			c.decStartLevel(ctx, level)
			c.activeStartLevel.Store(int32(level))
		}
	}

	if stepErr != nil {
		c.adaptor.PublishContainerEvent(EventError, nil, stepErr)
		return stepErr
	}
	c.adaptor.PublishContainerEvent(EventStartLevel, nil, nil)
	return nil
}

// incStartLevel starts, in two passes, every module whose start level
// equals level: lazy-activation modules first, then normal modules.
// Modules below level are assumed already active; the scan stops once a
// module above level is encountered (modules are pre-sorted by level).
func (c *Container) incStartLevel(ctx context.Context, level int) {
	c.db.ReadLock()
	sorted := c.db.GetSortedModules(BySortStartLevel, BySortDependency)
	c.db.ReadUnlock()

	pass := func(lazyOnly bool) {
		for _, m := range sorted {
			if c.isSystemRefreshing() {
				return
			}
			if m.StartLevel() < level {
				continue
			}
			if m.StartLevel() > level {
				return
			}
			if m.ID == SystemModuleID {
				continue
			}
			isLazy := c.lifecycle != nil && c.isLazyActivation(m)
			if lazyOnly != isLazy {
				continue
			}
			if err := c.startTransientIfAutoStart(m); err != nil {
				c.adaptor.PublishContainerEvent(EventError, m, err)
			}
		}
	}
	pass(true)
	pass(false)
}

// decStartLevel stops every active module whose start level equals
// level+1, iterating the dependency/start-level-sorted list in reverse.
func (c *Container) decStartLevel(ctx context.Context, level int) {
	c.db.ReadLock()
	sorted := c.db.GetSortedModules(BySortStartLevel, BySortDependency)
	c.db.ReadUnlock()

	for i := len(sorted) - 1; i >= 0; i-- {
		if c.isSystemRefreshing() {
			return
		}
		m := sorted[i]
		if m.StartLevel() != level+1 {
			if m.StartLevel() <= level {
				return
			}
			continue
		}
		if !m.State().InActiveSet() {
			continue
		}
		if err := c.stopTransient(m); err != nil {
			c.adaptor.PublishContainerEvent(EventError, m, err)
		}
	}
}

// doModuleStartLevel is the MODULE_STARTLEVEL dispatch handler: never
// mutates activeStartLevel.
func (c *Container) doModuleStartLevel(ctx context.Context, m *Module, newLevel int) error {
	active := int(c.activeStartLevel.Load())
	if active < newLevel {
		if m.State().InActiveSet() {
			if err := c.stopTransient(m); err != nil {
				c.adaptor.PublishContainerEvent(EventError, m, err)
				return err
			}
		}
		return nil
	}
	if err := c.startTransientIfAutoStart(m); err != nil {
		c.adaptor.PublishContainerEvent(EventError, m, err)
		return err
	}
	return nil
}

// isLazyActivation reports whether m's lifecycle hook wants lazy activation
// semantics. Modules that don't participate in the optional interface are
// treated as non-lazy.
func (c *Container) isLazyActivation(m *Module) bool {
	type lazyAware interface {
		IsLazyActivation(m *Module) bool
	}
	if la, ok := c.lifecycle.(lazyAware); ok {
		return la.IsLazyActivation(m)
	}
	return false
}
