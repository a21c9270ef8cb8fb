package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("pool should be running after creation")
	}
}

func TestWorkerPool_CreateDefaultWorkers(t *testing.T) {
	for _, n := range []int{0, -3} {
		pool := NewWorkerPool(n)
		if got, want := pool.Workers(), runtime.GOMAXPROCS(0); got != want {
			t.Errorf("NewWorkerPool(%d).Workers() = %d, want %d", n, got, want)
		}
		pool.Close()
	}
}

func TestWorkerPool_ExecuteAll(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		work[i] = func() { counter.Add(1) }
	}
	pool.ExecuteAll(work)

	if counter.Load() != 100 {
		t.Errorf("counter = %d, want 100", counter.Load())
	}
}

func TestWorkerPool_ExecuteAll_Empty(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	pool.ExecuteAll(nil)
	pool.ExecuteAll([]func(){})
}

func TestWorkerPool_ExecuteAll_AfterClose(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()

	ran := 0
	pool.ExecuteAll([]func(){func() { ran++ }, func() { ran++ }})
	if ran != 2 {
		t.Errorf("ran = %d after Close, want 2", ran)
	}
}

func TestWorkerPool_Chunks(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	tests := []struct {
		n    int
		want int
	}{
		{0, 0},
		{1, 1},
		{MinChunk, 1},
		{MinChunk + 1, 2},
		{MinChunk * 3, 3},
		{MinChunk * 100, 4},
	}
	for _, tt := range tests {
		if got := pool.Chunks(tt.n); got != tt.want {
			t.Errorf("Chunks(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestWorkerPool_ForEachChunkCoversRange(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	for _, n := range []int{0, 1, 10, MinChunk*4 + 7, 5000} {
		seen := make([]int32, n)
		var mu sync.Mutex
		chunks := map[int]bool{}
		pool.ForEachChunk(n, func(chunk, lo, hi int) {
			mu.Lock()
			if chunks[chunk] {
				t.Errorf("n=%d: chunk %d visited twice", n, chunk)
			}
			chunks[chunk] = true
			mu.Unlock()
			for i := lo; i < hi; i++ {
				atomic.AddInt32(&seen[i], 1)
			}
		})
		for i, v := range seen {
			if v != 1 {
				t.Fatalf("n=%d: index %d visited %d times, want 1", n, i, v)
			}
		}
		for c := range chunks {
			if c < 0 || c >= pool.Chunks(n) {
				t.Errorf("n=%d: chunk index %d out of [0,%d)", n, c, pool.Chunks(n))
			}
		}
	}
}

func TestWorkerPool_CloseIdempotent(t *testing.T) {
	pool := NewWorkerPool(4)
	pool.Close()
	pool.Close()
	if pool.IsRunning() {
		t.Error("pool should not be running after Close")
	}
}

func TestWorkerPool_CloseDuringExecuteAll(t *testing.T) {
	for range 200 {
		pool := NewWorkerPool(2)
		var counter atomic.Int64
		work := make([]func(), 64)
		for i := range work {
			work[i] = func() { counter.Add(1) }
		}

		finished := make(chan struct{})
		go func() {
			pool.ExecuteAll(work)
			close(finished)
		}()
		pool.Close()

		select {
		case <-finished:
		case <-time.After(5 * time.Second):
			t.Fatal("ExecuteAll did not return after a concurrent Close")
		}
		if counter.Load() != 64 {
			t.Fatalf("counter = %d, want 64", counter.Load())
		}
	}
}
