package monitor

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/bletower/internal/groutine"
)

// executor runs submitted tasks one at a time, in submission order, on a single
// named goroutine. Submit never blocks; the queue is unbounded.
type executor struct {
	name   string
	logger *logrus.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

func newExecutor(name string, logger *logrus.Logger) *executor {
	e := &executor{
		name:   name,
		logger: logger,
		done:   make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	groutine.Go(context.Background(), "monitor-"+name, e.run)
	return e
}

// Submit queues task. It returns false if the executor is closed.
func (e *executor) Submit(task func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		e.logger.WithField("section", e.name).Debug("Task submitted after close, ignored")
		return false
	}
	e.queue = append(e.queue, task)
	e.cond.Signal()
	return true
}

// Sync blocks until every task submitted before the call has run.
func (e *executor) Sync() {
	done := make(chan struct{})
	if !e.Submit(func() { close(done) }) {
		return
	}
	<-done
}

// Close stops accepting tasks, runs the ones already queued and waits for the worker to exit.
// It must not be called from a task of the same executor.
func (e *executor) Close() {
	e.mu.Lock()
	e.closed = true
	e.cond.Broadcast()
	e.mu.Unlock()

	<-e.done
}

func (e *executor) run(_ context.Context) {
	defer close(e.done)

	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return
		}
		task := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.mu.Unlock()

		e.runTask(task)
	}
}

func (e *executor) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithFields(logrus.Fields{
				"section": e.name,
				"panic":   r,
			}).Error("Recovered panic in monitor task")
		}
	}()
	task()
}
