// Package hooks supplies a default container.LifecycleHook: a registry of
// per-symbolic-name start/stop functions, sufficient for tests and the
// containerctl CLI's manual smoke-testing needs. Real hosts wire their own
// classloader/activator implementation against the same interface.
package hooks

import (
	"context"
	"sync"

	"github.com/GoCodeAlone/containerkit/container"
)

// ActivatorFunc is invoked on start/stop for a module whose current
// revision's symbolic name has a registered activator.
type ActivatorFunc func(ctx context.Context, m *container.Module) error

// Registry is a simple container.LifecycleHook keyed by symbolic name. A
// module with no registered activator starts and stops trivially
// (succeeds immediately) and is treated as eligible for auto-start.
type Registry struct {
	mu    sync.RWMutex
	start map[string]ActivatorFunc
	stop  map[string]ActivatorFunc
	lazy  map[string]bool
	// autoStartDisabled lists symbolic names excluded from auto-start.
	autoStartDisabled map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{
		start:             make(map[string]ActivatorFunc),
		stop:              make(map[string]ActivatorFunc),
		lazy:              make(map[string]bool),
		autoStartDisabled: make(map[string]bool),
	}
}

// OnStart registers fn to run when a module with the given symbolic name
// starts.
func (r *Registry) OnStart(symbolicName string, fn ActivatorFunc) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.start[symbolicName] = fn
	return r
}

// OnStop registers fn to run when a module with the given symbolic name
// stops.
func (r *Registry) OnStop(symbolicName string, fn ActivatorFunc) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stop[symbolicName] = fn
	return r
}

// SetLazyActivation marks symbolicName as a lazy-activation module for the
// start-level ramp's two-pass ordering.
func (r *Registry) SetLazyActivation(symbolicName string, lazy bool) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lazy[symbolicName] = lazy
	return r
}

// DisableAutoStart excludes symbolicName from TRANSIENT_IF_AUTO_START
// passes (resolve auto-start, start-level ramp, MODULE_STARTLEVEL).
func (r *Registry) DisableAutoStart(symbolicName string) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.autoStartDisabled[symbolicName] = true
	return r
}

func (r *Registry) Start(ctx context.Context, m *container.Module, opts container.StartOption) error {
	name := symbolicNameOf(m)
	r.mu.RLock()
	fn := r.start[name]
	r.mu.RUnlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, m)
}

func (r *Registry) Stop(ctx context.Context, m *container.Module, opts container.StartOption) error {
	name := symbolicNameOf(m)
	r.mu.RLock()
	fn := r.stop[name]
	r.mu.RUnlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, m)
}

func (r *Registry) AutoStartAllowed(m *container.Module) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.autoStartDisabled[symbolicNameOf(m)]
}

func (r *Registry) IsLazyActivation(m *container.Module) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lazy[symbolicNameOf(m)]
}

func symbolicNameOf(m *container.Module) string {
	rev := m.CurrentRevision()
	if rev == nil {
		return ""
	}
	return rev.SymbolicName
}

var _ container.LifecycleHook = (*Registry)(nil)
