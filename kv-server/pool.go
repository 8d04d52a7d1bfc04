package server

import "sync"

const (
	DefaultPoolSize  = 10
	DefaultQueueSize = 64
)

// workerPool runs submitted jobs on a fixed number of goroutines.
// When every worker is busy jobs wait in a bounded queue,
// and when the queue is full submit blocks until a worker frees up.
type workerPool struct {
	jobs chan func()
	wg   sync.WaitGroup
	once sync.Once
}

func newWorkerPool(size, queueSize int) *workerPool {
	if size < 1 {
		size = 1
	}

	if queueSize < 0 {
		queueSize = 0
	}

	var p = &workerPool{jobs: make(chan func(), queueSize)}

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go func() {
			defer p.wg.Done()

			for job := range p.jobs {
				job()
			}
		}()
	}

	return p
}

// submit queues job, it returns false without running it if done closes first
func (p *workerPool) submit(job func(), done <-chan struct{}) bool {
	select {
	case p.jobs <- job:
		return true
	case <-done:
		return false
	}
}

// stop lets workers drain the queue and exit, it must not race with submit
func (p *workerPool) stop() {
	p.once.Do(func() {
		close(p.jobs)
	})
}

// wait blocks until every worker has exited after stop
func (p *workerPool) wait() {
	p.wg.Wait()
}
