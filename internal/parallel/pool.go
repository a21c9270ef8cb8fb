// Package parallel provides the worker pool used to classify drawable items
// concurrently.
//
// Each pool worker owns a queue and steals from its siblings when idle.
// Callers split their input into contiguous chunks so that every chunk can
// write into its own unsynchronized output (a command bucket) and the
// outputs are merged once all chunks have completed.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// MinChunk is the smallest number of items handed to one task. Smaller
// inputs run on the caller's goroutine.
const MinChunk = 64

// WorkerPool is a fixed set of goroutines with work stealing.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers int
	queues  []chan func()
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool

	// Held for reading while tasks are queued; Close takes it for writing
	// so no task is queued after the workers are told to stop.
	submit sync.RWMutex
}

// NewWorkerPool starts a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range workers {
		p.queues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	own := p.queues[id]
	for {
		select {
		case <-p.done:
			p.drain(own)
			return
		case fn := <-own:
			fn()
		default:
			if fn := p.steal(id); fn != nil {
				fn()
				continue
			}
			select {
			case <-p.done:
				p.drain(own)
				return
			case fn := <-own:
				fn()
			}
		}
	}
}

func (p *WorkerPool) drain(q chan func()) {
	for {
		select {
		case fn := <-q:
			fn()
		default:
			return
		}
	}
}

func (p *WorkerPool) steal(id int) func() {
	for i := range p.workers {
		if i == id {
			continue
		}
		select {
		case fn := <-p.queues[i]:
			return fn
		default:
		}
	}
	return nil
}

// ExecuteAll runs every function and waits for all of them. On a closed pool
// the functions run on the calling goroutine.
func (p *WorkerPool) ExecuteAll(work []func()) {
	if len(work) == 0 {
		return
	}
	p.submit.RLock()
	if !p.running.Load() {
		p.submit.RUnlock()
		for _, fn := range work {
			fn()
		}
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(work))
	for i, fn := range work {
		p.queues[i%p.workers] <- func() {
			defer wg.Done()
			fn()
		}
	}
	p.submit.RUnlock()
	wg.Wait()
}

// Chunks returns how many chunks n items are split into: at most one per
// worker and never fewer than MinChunk items per chunk.
func (p *WorkerPool) Chunks(n int) int {
	if n <= 0 {
		return 0
	}
	c := (n + MinChunk - 1) / MinChunk
	return min(c, p.workers)
}

// ForEachChunk splits [0, n) into Chunks(n) contiguous ranges and calls fn
// once per range, concurrently. chunk is the range index in [0, Chunks(n)).
// A single chunk runs on the calling goroutine.
func (p *WorkerPool) ForEachChunk(n int, fn func(chunk, lo, hi int)) {
	chunks := p.Chunks(n)
	switch chunks {
	case 0:
		return
	case 1:
		fn(0, 0, n)
		return
	}

	size := (n + chunks - 1) / chunks
	work := make([]func(), 0, chunks)
	for c := range chunks {
		lo := c * size
		hi := min(lo+size, n)
		if lo >= hi {
			break
		}
		work = append(work, func() { fn(c, lo, hi) })
	}
	p.ExecuteAll(work)
}

// Close stops accepting work, runs what is queued and stops the workers.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	p.submit.Lock()
	if !p.running.CompareAndSwap(true, false) {
		p.submit.Unlock()
		return
	}
	close(p.done)
	p.submit.Unlock()
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int { return p.workers }

// IsRunning reports whether the pool accepts work.
func (p *WorkerPool) IsRunning() bool { return p.running.Load() }
