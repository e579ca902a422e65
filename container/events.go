package container

import (
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// EventKind enumerates the module and container event kinds published by
// this package. Module events track a module's state transitions; container
// events report cross-cutting occurrences (a refresh sweep, a start-level
// ramp, an orchestration error that was swallowed rather than propagated).
type EventKind string

const (
	EventInstalled   EventKind = "com.container.module.installed"
	EventUpdated     EventKind = "com.container.module.updated"
	EventUninstalled EventKind = "com.container.module.uninstalled"
	EventResolved    EventKind = "com.container.module.resolved"
	EventUnresolved  EventKind = "com.container.module.unresolved"
	EventStarted     EventKind = "com.container.module.started"
	EventStopped     EventKind = "com.container.module.stopped"

	EventRefresh    EventKind = "com.container.framework.refresh"
	EventStartLevel EventKind = "com.container.framework.startlevel"
	EventError      EventKind = "com.container.framework.error"
)

// EventSource is the CloudEvents source attribute used for every event this
// container publishes. Overridable for multi-container processes.
var EventSource = "urn:container"

// Event wraps a cloudevents.Event with typed accessors convenient for the
// container's own publication and observer-matching code.
type Event struct {
	cloudevents.Event
}

func (e Event) Kind() EventKind { return EventKind(e.Type()) }

// NewModuleEvent builds a module lifecycle event. origin is the module that
// triggered the transition when it differs from module itself (e.g. the
// origin passed to Install); it may be nil.
func NewModuleEvent(kind EventKind, module *Module, origin *Module) Event {
	ce := cloudevents.NewEvent()
	ce.SetID(newEventID())
	ce.SetSource(EventSource)
	ce.SetType(string(kind))
	ce.SetTime(time.Now())
	ce.SetSpecVersion(cloudevents.VersionV1)
	payload := map[string]any{
		"moduleId": module.ID,
		"location": module.Location,
		"state":    module.State().String(),
	}
	if origin != nil {
		payload["originId"] = origin.ID
	}
	_ = ce.SetData(cloudevents.ApplicationJSON, payload)
	return Event{Event: ce}
}

// NewContainerEvent builds a container-scoped event, optionally carrying the
// error that accompanied it. The container publishes ERROR events with their
// cause and REFRESH/START_LEVEL events without one; a failed refresh or ramp
// is reported by a separate ERROR event.
func NewContainerEvent(kind EventKind, module *Module, cause error) Event {
	ce := cloudevents.NewEvent()
	ce.SetID(newEventID())
	ce.SetSource(EventSource)
	ce.SetType(string(kind))
	ce.SetTime(time.Now())
	ce.SetSpecVersion(cloudevents.VersionV1)
	payload := map[string]any{}
	if module != nil {
		payload["moduleId"] = module.ID
	}
	if cause != nil {
		payload["error"] = cause.Error()
	}
	_ = ce.SetData(cloudevents.ApplicationJSON, payload)
	return Event{Event: ce}
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}
