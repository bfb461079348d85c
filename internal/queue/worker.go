package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/imagegenio/orchestrator/internal/infrastructure/logger"
	"github.com/imagegenio/orchestrator/internal/infrastructure/metrics"
	"github.com/imagegenio/orchestrator/internal/infrastructure/storage"
)

// ErrNoJobAvailable signals an empty queue to the poll loop.
var ErrNoJobAvailable = storage.ErrNoJobAvailable

// Store is the durable persistence the worker pool leases jobs from.
// storage.JobRepository implements this.
type Store interface {
	Enqueue(ctx context.Context, requestID, organizationID string) (string, error)
	LeaseNext(ctx context.Context) (*storage.Job, error)
	Ack(ctx context.Context, jobID string) error
	Nack(ctx context.Context, jobID string) error
}

// Executor runs one generation request's full iteration loop to a
// terminal state. internal/orchestrator implements this.
type Executor interface {
	ExecuteRequest(ctx context.Context, requestID string) error
}

// Pool dispatches leased jobs to a bounded set of worker goroutines,
// acking on clean completion and nacking (with bounded redelivery,
// enforced by Store) on error. Grounded on the teacher's
// WorkflowEngine wave/retry loop, generalized from in-process fan-out
// to a lease-and-dispatch worker pool since the teacher has no durable
// queue of its own.
type Pool struct {
	store        Store
	executor     Executor
	registry     *CancellationRegistry
	logger       *logger.Logger
	workers      int
	pollInterval time.Duration
	idleBackoff  time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewPool creates a worker pool. workers bounds concurrent dispatch;
// pollInterval is how often an idle worker checks for new work;
// idleBackoff is how long a worker sleeps after finding the queue empty.
func NewPool(store Store, executor Executor, registry *CancellationRegistry, log *logger.Logger, workers int, pollInterval, idleBackoff time.Duration) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		store:        store,
		executor:     executor,
		registry:     registry,
		logger:       log,
		workers:      workers,
		pollInterval: pollInterval,
		idleBackoff:  idleBackoff,
	}
}

// Enqueue durably queues a new request for dispatch.
func (p *Pool) Enqueue(ctx context.Context, requestID, organizationID string) error {
	_, err := p.store.Enqueue(ctx, requestID, organizationID)
	if err == nil {
		metrics.QueueDepth.Inc()
	}
	return err
}

// Start launches the worker goroutines. It returns immediately; call
// Stop to shut the pool down.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
}

// Stop signals every worker to exit and waits for in-flight jobs to
// return control (it does not interrupt an executing job; the
// orchestrator itself honors ctx cancellation at its own checkpoints).
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.dispatchOne(ctx)
		}
	}
}

func (p *Pool) dispatchOne(ctx context.Context) {
	job, err := p.store.LeaseNext(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoJobAvailable) {
			p.logger.ErrorContext(ctx, "lease job failed", "error", err)
		}
		time.Sleep(p.idleBackoff)
		return
	}
	metrics.QueueDepth.Dec()

	if p.registry.IsCancelled(job.RequestID) {
		p.registry.Clear(job.RequestID)
		_ = p.store.Ack(ctx, job.ID)
		return
	}

	execErr := p.executor.ExecuteRequest(ctx, job.RequestID)
	p.registry.Clear(job.RequestID)
	if execErr != nil {
		p.logger.ErrorContext(ctx, "request execution failed", "requestId", job.RequestID, "error", execErr)
		if nackErr := p.store.Nack(ctx, job.ID); nackErr != nil {
			p.logger.ErrorContext(ctx, "nack job failed", "jobId", job.ID, "error", nackErr)
		}
		return
	}

	if ackErr := p.store.Ack(ctx, job.ID); ackErr != nil {
		p.logger.ErrorContext(ctx, "ack job failed", "jobId", job.ID, "error", ackErr)
	}
}
