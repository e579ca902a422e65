package container

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// refreshJob is one queued refresh request: a buffered channel drained by
// exactly one goroutine so concurrent refresh calls coalesce into
// sequential execution.
type refreshJob struct {
	id       string
	modules  []*Module
	response chan error
}

// refreshDispatcher is the ContainerWiring façade's single-consumer refresh
// worker. Its goroutine is started by New, not on first use, and is stopped
// by Close; a stopped dispatcher is never restarted.
type refreshDispatcher struct {
	c        *Container
	queue    chan refreshJob
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func newRefreshDispatcher(c *Container) *refreshDispatcher {
	d := &refreshDispatcher{
		c:      c,
		queue:  make(chan refreshJob, 64),
		stopCh: make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *refreshDispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.queue:
			err := d.c.Refresh(context.Background(), job.modules)
			job.response <- err
		case <-d.stopCh:
			return
		}
	}
}

// submit enqueues a refresh job and blocks for its result. Two concurrent
// callers targeting overlapping module sets simply execute one after the
// other on the single worker.
func (d *refreshDispatcher) submit(modules []*Module) error {
	job := refreshJob{
		id:       newJobID(),
		modules:  modules,
		response: make(chan error, 1),
	}
	select {
	case <-d.stopCh:
		return ErrContainerClosed
	default:
	}
	select {
	case d.queue <- job:
	case <-d.stopCh:
		return ErrContainerClosed
	}
	select {
	case err := <-job.response:
		return err
	case <-d.stopCh:
		return ErrContainerClosed
	}
}

func (d *refreshDispatcher) stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
	d.wg.Wait()
}

// startLevelJob is one queued start-level request, either a framework-wide
// ramp (FRAMEWORK_STARTLEVEL) or a single module's level change
// (MODULE_STARTLEVEL).
type startLevelJob struct {
	id       string
	kind     startLevelJobKind
	target   int
	module   *Module
	response chan error
}

type startLevelJobKind int

const (
	jobFrameworkStartLevel startLevelJobKind = iota
	jobModuleStartLevel
)

// startLevelDispatcher is StartLevelEngine's single-consumer worker,
// mirroring refreshDispatcher's shape.
type startLevelDispatcher struct {
	c        *Container
	queue    chan startLevelJob
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func newStartLevelDispatcher(c *Container) *startLevelDispatcher {
	d := &startLevelDispatcher{
		c:      c,
		queue:  make(chan startLevelJob, 64),
		stopCh: make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *startLevelDispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.queue:
			var err error
			switch job.kind {
			case jobFrameworkStartLevel:
				err = d.c.doContainerStartLevel(context.Background(), job.target)
			case jobModuleStartLevel:
				err = d.c.doModuleStartLevel(context.Background(), job.module, job.target)
			}
			job.response <- err
		case <-d.stopCh:
			return
		}
	}
}

func (d *startLevelDispatcher) submit(job startLevelJob) error {
	select {
	case <-d.stopCh:
		return ErrContainerClosed
	default:
	}
	select {
	case d.queue <- job:
	case <-d.stopCh:
		return ErrContainerClosed
	}
	select {
	case err := <-job.response:
		return err
	case <-time.After(30 * time.Second):
		return newContainerError(ErrStateChange, "start-level job timed out", nil)
	}
}

func (d *startLevelDispatcher) stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
	d.wg.Wait()
}

func newJobID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}
