package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrDuplicate is returned by Enqueue when a job with the same key is already queued or retrying.
var ErrDuplicate = errors.New("job already queued")

// Job is one unit of background work. Jobs sharing a Key are never queued twice at once.
type Job[T any] struct {
	ID       string
	Key      string
	Type     string
	Payload  T
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job. Returning an error schedules a retry unless it is Permanent.
type Handler[T any] func(context.Context, Job[T]) error

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was wrapped by Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// QueueConfig configures the worker pool and its retry schedule.
type QueueConfig[T any] struct {
	Workers    int
	BufferSize int
	MaxRetries int
	// RetryDelay is the first backoff; each further attempt doubles it up to MaxDelay.
	RetryDelay time.Duration
	MaxDelay   time.Duration
	Logger     *zap.Logger
	// OnExhausted runs when a job fails permanently or more than MaxRetries times.
	OnExhausted func(Job[T], error)
}

// Queue is an in-memory worker pool with keyed de-duplication and exponential backoff.
type Queue[T any] struct {
	name    string
	handler Handler[T]
	cfg     QueueConfig[T]
	logger  *zap.Logger

	jobs    chan Job[T]
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	keys    map[string]struct{}
}

// NewQueue builds a queue around handler.
func NewQueue[T any](name string, handler Handler[T], cfg QueueConfig[T]) *Queue[T] {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxDelay < cfg.RetryDelay {
		cfg.MaxDelay = cfg.RetryDelay * 32
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Queue[T]{
		name:    name,
		handler: handler,
		cfg:     cfg,
		logger:  cfg.Logger,
		jobs:    make(chan Job[T], cfg.BufferSize),
		keys:    make(map[string]struct{}),
	}
}

// Start launches the workers. Later calls are no-ops.
func (q *Queue[T]) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.started = true
	q.logger.Sugar().Infow("queue started", "queue", q.name, "workers", q.cfg.Workers)
}

// Stop cancels workers and pending retries and waits for them to exit.
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Sugar().Infow("queue stopped", "queue", q.name, "abandoned", q.Pending())
}

// Pending counts keyed jobs that are queued, running or waiting for a retry.
func (q *Queue[T]) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.keys)
}

// Enqueue submits a new job. A job whose Key is already in flight is rejected with ErrDuplicate.
func (q *Queue[T]) Enqueue(job Job[T]) error {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return fmt.Errorf("queue %s not started", q.name)
	}
	if job.Key != "" {
		if _, ok := q.keys[job.Key]; ok {
			q.mu.Unlock()
			return ErrDuplicate
		}
		q.keys[job.Key] = struct{}{}
	}
	ctx := q.ctx
	q.mu.Unlock()

	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	if err := q.push(ctx, job); err != nil {
		q.release(job)
		return err
	}
	return nil
}

func (q *Queue[T]) push(ctx context.Context, job Job[T]) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("queue %s stopped: %w", q.name, ctx.Err())
	case q.jobs <- job:
		return nil
	}
}

func (q *Queue[T]) release(job Job[T]) {
	if job.Key == "" {
		return
	}
	q.mu.Lock()
	delete(q.keys, job.Key)
	q.mu.Unlock()
}

func (q *Queue[T]) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			err := q.handler(q.ctx, job)
			if err == nil {
				q.release(job)
				continue
			}
			q.handleFailure(job, err)
		}
	}
}

// backoff returns the delay before attempt n (1-based).
func (q *Queue[T]) backoff(attempt int) time.Duration {
	delay := q.cfg.RetryDelay
	for i := 1; i < attempt && delay < q.cfg.MaxDelay; i++ {
		delay *= 2
	}
	if delay > q.cfg.MaxDelay {
		delay = q.cfg.MaxDelay
	}
	return delay
}

func (q *Queue[T]) handleFailure(job Job[T], err error) {
	job.Attempt++
	if IsPermanent(err) || job.Attempt > q.cfg.MaxRetries {
		q.logger.Sugar().Errorw("job abandoned", "queue", q.name, "job_id", job.ID, "type", job.Type,
			"attempt", job.Attempt, "permanent", IsPermanent(err), "error", err)
		q.release(job)
		if q.cfg.OnExhausted != nil {
			q.cfg.OnExhausted(job, err)
		}
		return
	}
	delay := q.backoff(job.Attempt)
	q.logger.Sugar().Warnw("job failed, retrying", "queue", q.name, "job_id", job.ID, "type", job.Type,
		"attempt", job.Attempt, "delay", delay, "error", err)

	q.wg.Add(1)
	go func(j Job[T]) {
		defer q.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			return
		case <-timer.C:
			if err := q.push(q.ctx, j); err != nil {
				q.logger.Sugar().Errorw("failed to requeue job", "queue", q.name, "job_id", j.ID, "error", err)
			}
		}
	}(job)
}
