package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// KeyFunc processes the i-th key of a batch. It owns its failures: the Worker
// never sees an error.
type KeyFunc func(ctx context.Context, workerID, i int)

// Worker fans a batch of independent keys out over a bounded goroutine pool.
type Worker struct {
	config PipelineConfig
}

// NewWorker creates a new pipeline worker
func NewWorker(config PipelineConfig) *Worker {
	return &Worker{config: config}
}

// ProcessBatch runs fn for indices 0..n-1 using WorkerCount goroutines.
// Once ctx is cancelled no further index is handed out; indices already
// handed out run to completion. The returned slice marks scheduled indices.
func (w *Worker) ProcessBatch(ctx context.Context, n int, fn KeyFunc) []bool {
	scheduled := make([]bool, n)
	if n == 0 {
		return scheduled
	}

	workerCount := w.config.WorkerCount
	if workerCount < 1 {
		workerCount = 1
	}
	if workerCount > n {
		workerCount = n
	}

	start := time.Now()
	var done atomic.Int64
	jobChan := make(chan int)
	var wg sync.WaitGroup

	// Start workers
	for id := 0; id < workerCount; id++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := range jobChan {
				fn(ctx, workerID, i)
				w.reportProgress(done.Add(1), n, start)
			}
		}(id)
	}

	// Enqueue jobs
enqueue:
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break enqueue
		case jobChan <- i:
			scheduled[i] = true
		}
	}
	close(jobChan)

	// Wait for all workers
	wg.Wait()

	log.Debug().
		Str("pipeline", w.config.Name).
		Int64("processed", done.Load()).
		Int("total", n).
		Dur("elapsed", time.Since(start)).
		Msg("batch finished")

	return scheduled
}

func (w *Worker) reportProgress(done int64, total int, start time.Time) {
	every := int64(w.config.ProgressEvery)
	if every <= 0 || done%every != 0 {
		return
	}
	log.Info().
		Str("pipeline", w.config.Name).
		Int64("done", done).
		Int("total", total).
		Dur("elapsed", time.Since(start)).
		Msg("batch progress")
}
