package engine

import "sync"

// workerPool bounds concurrent node execution for one invocation. Submission
// is non-blocking: each job gets a goroutine that waits on the semaphore, so
// queued work applies back-pressure on execution, never on submission.
// Wait returns once every submitted job has finished.
type workerPool struct {
	sem  chan struct{}
	jobs sync.WaitGroup
}

func newWorkerPool(parallelism int) *workerPool {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &workerPool{sem: make(chan struct{}, parallelism)}
}

// Submit schedules fn without blocking the caller.
func (p *workerPool) Submit(fn func()) {
	p.jobs.Add(1)
	go func() {
		p.sem <- struct{}{}
		defer func() {
			<-p.sem
			p.jobs.Done()
		}()
		fn()
	}()
}

// Wait blocks until all submitted jobs complete, including jobs submitted
// while waiting.
func (p *workerPool) Wait() {
	p.jobs.Wait()
}
