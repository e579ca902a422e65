package container_test

import (
	"sync"

	"github.com/GoCodeAlone/containerkit/container"
)

// recordingAdaptor is a minimal container.Adaptor that records every
// published event for assertions, and lets tests install a collision hook
// or a beginning-start-level property.
type recordingAdaptor struct {
	mu             sync.Mutex
	moduleEvents   []recordedModuleEvent
	containerEvents []recordedContainerEvent
	properties     map[string]string
	hook           container.CollisionHook
	refreshedSystemModuleCalls int
}

type recordedModuleEvent struct {
	kind   container.EventKind
	module *container.Module
	origin *container.Module
}

type recordedContainerEvent struct {
	kind   container.EventKind
	module *container.Module
	cause  error
}

func newRecordingAdaptor() *recordingAdaptor {
	return &recordingAdaptor{properties: map[string]string{}}
}

func (a *recordingAdaptor) PublishModuleEvent(kind container.EventKind, module *container.Module, origin *container.Module) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.moduleEvents = append(a.moduleEvents, recordedModuleEvent{kind, module, origin})
}

func (a *recordingAdaptor) PublishContainerEvent(kind container.EventKind, module *container.Module, cause error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.containerEvents = append(a.containerEvents, recordedContainerEvent{kind, module, cause})
}

func (a *recordingAdaptor) CollisionHook() container.CollisionHook { return a.hook }

func (a *recordingAdaptor) GetProperty(key string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.properties[key]
	return v, ok
}

func (a *recordingAdaptor) RefreshedSystemModule() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshedSystemModuleCalls++
}

func (a *recordingAdaptor) moduleEventsFor(m *container.Module, kind container.EventKind) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	count := 0
	for _, e := range a.moduleEvents {
		if e.module == m && e.kind == kind {
			count++
		}
	}
	return count
}

func (a *recordingAdaptor) containerEventsOfKind(kind container.EventKind) []recordedContainerEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []recordedContainerEvent
	for _, e := range a.containerEvents {
		if e.kind == kind {
			out = append(out, e)
		}
	}
	return out
}

var _ container.Adaptor = (*recordingAdaptor)(nil)
