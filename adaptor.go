// Package containerkit provides the default Adaptor: the container's sole
// outward-facing collaborator, wiring structured logging, CloudEvents
// publication, and property-based configuration together the way the
// container's contracts.go expects.
package containerkit

import (
	"context"

	"github.com/GoCodeAlone/containerkit/config"
	"github.com/GoCodeAlone/containerkit/container"
	"github.com/GoCodeAlone/containerkit/internal/observability"
)

// DefaultAdaptor is the reference container.Adaptor implementation.
type DefaultAdaptor struct {
	logger     observability.Logger
	subject    *container.EventSubject
	properties config.PropertySource
	hook       container.CollisionHook

	onRefreshedSystemModule func()
}

// NewDefaultAdaptor builds an Adaptor publishing through subject, logging
// through logger, and resolving configuration through properties. Any
// argument may be nil; a nil subject makes publish calls into no-ops, a nil
// logger discards, and a nil properties source makes GetProperty always
// miss.
func NewDefaultAdaptor(logger observability.Logger, subject *container.EventSubject, properties config.PropertySource) *DefaultAdaptor {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &DefaultAdaptor{logger: logger, subject: subject, properties: properties}
}

// WithCollisionHook installs hook as the collision hook consulted during
// install/update and returns the adaptor for chaining.
func (a *DefaultAdaptor) WithCollisionHook(hook container.CollisionHook) *DefaultAdaptor {
	a.hook = hook
	return a
}

// WithSystemModuleRefreshedHandler installs fn to be called from
// RefreshedSystemModule.
func (a *DefaultAdaptor) WithSystemModuleRefreshedHandler(fn func()) *DefaultAdaptor {
	a.onRefreshedSystemModule = fn
	return a
}

func (a *DefaultAdaptor) PublishModuleEvent(kind container.EventKind, module *container.Module, origin *container.Module) {
	a.logger.Debug("module event", "kind", kind, "moduleId", module.ID, "state", module.State().String())
	if a.subject == nil {
		return
	}
	if err := a.subject.NotifyObservers(context.Background(), container.NewModuleEvent(kind, module, origin)); err != nil {
		a.logger.Warn("failed to publish module event", "kind", kind, "error", err)
	}
}

func (a *DefaultAdaptor) PublishContainerEvent(kind container.EventKind, module *container.Module, cause error) {
	if cause != nil {
		a.logger.Error("container event", "kind", kind, "error", cause)
	} else {
		a.logger.Info("container event", "kind", kind)
	}
	if a.subject == nil {
		return
	}
	if err := a.subject.NotifyObservers(context.Background(), container.NewContainerEvent(kind, module, cause)); err != nil {
		a.logger.Warn("failed to publish container event", "kind", kind, "error", err)
	}
}

func (a *DefaultAdaptor) CollisionHook() container.CollisionHook { return a.hook }

func (a *DefaultAdaptor) GetProperty(key string) (string, bool) {
	if a.properties == nil {
		return "", false
	}
	return a.properties.GetProperty(key)
}

func (a *DefaultAdaptor) RefreshedSystemModule() {
	a.logger.Info("system module refreshed")
	if a.onRefreshedSystemModule != nil {
		a.onRefreshedSystemModule()
	}
}

var _ container.Adaptor = (*DefaultAdaptor)(nil)
