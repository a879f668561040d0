package tasks

import (
	"fmt"
	"sync"
)

// workerPool is a fixed set of goroutines consuming closures from a shared
// channel. The manager's semaphore already bounds admitted tasks, so the pool
// exists to pin CPU-bound work to a stable number of goroutines rather than
// to add another limit.
type workerPool struct {
	jobs chan func()
	wg   sync.WaitGroup
	once sync.Once
}

func newWorkerPool(workers, backlog int) *workerPool {
	if workers < 1 {
		workers = 1
	}
	if backlog < 0 {
		backlog = 0
	}
	p := &workerPool{jobs: make(chan func(), backlog)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *workerPool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		job()
	}
}

// runWait schedules fn on a pool worker and blocks until it returns. fn is
// expected to contain its own panic recovery.
func (p *workerPool) runWait(fn func()) {
	done := make(chan struct{})
	p.jobs <- func() {
		defer close(done)
		fn()
	}
	<-done
}

func (p *workerPool) stop() {
	p.once.Do(func() { close(p.jobs) })
	p.wg.Wait()
}

func recoverToError(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("task panicked: %v", r)
	}
}
