package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"

	"github.com/AaronLay10/animgraph/internal/animgraph"
	"github.com/AaronLay10/animgraph/internal/observability"
)

// Scheduler runs one task per worker thread and waits for all of them.
// Each task updates its batch of instances sequentially, so a thread's
// pools are never shared between goroutines.
type Scheduler struct {
	pool    worker.DynamicWorkerPool
	mu      sync.Mutex
	nextID  int
	stopped bool
}

// ErrSchedulerStopped is returned by Run after Stop.
var ErrSchedulerStopped = errors.New("scheduler stopped")

// NewScheduler starts a pool of threads workers. Workers idle for a second
// are released by the pool.
func NewScheduler(threads int) *Scheduler {
	return &Scheduler{pool: worker.NewDynamicWorkerPool(threads, 256, 1*time.Second)}
}

// Run calls fn on every instance of every batch. Batch i runs on thread i.
// Panics are recovered and returned as errors.
func (s *Scheduler) Run(ctx context.Context, batches [][]*animgraph.Instance, fn func(*animgraph.Instance)) error {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return ErrSchedulerStopped
	}

	errs := make([]error, len(batches))
	var wg sync.WaitGroup

	for i, batch := range batches {
		if len(batch) == 0 {
			continue
		}
		wg.Add(1)
		s.pool.SubmitTask(worker.Task{
			ID: s.taskID(),
			Do: func() (any, error) {
				defer wg.Done()
				_, span := observability.StartThreadSpan(ctx, i, len(batch))
				defer span.End()
				defer func() {
					if r := recover(); r != nil {
						errs[i] = fmt.Errorf("thread %d: panic: %v", i, r)
						observability.RecordError(span, errs[i])
					}
				}()

				for _, inst := range batch {
					if err := ctx.Err(); err != nil {
						errs[i] = err
						return nil, err
					}
					fn(inst)
				}
				return len(batch), nil
			},
		})
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (s *Scheduler) taskID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID
}

// Stop rejects further frames. Running frames complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}
