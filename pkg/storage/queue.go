package storage

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/sgl-project/registry/pkg/logging"
)

// Queue drives restartable tasks of one kind to a terminal outcome.
//
// A supervisor goroutine accepts submissions and starts one goroutine per task
// chain, so unrelated tasks never wait on each other. Identical tasks are not
// deduplicated: every Run call gets its own chain.
type Queue[T any] struct {
	bucket  string
	op      string
	retry   RetryConfig
	logger  logging.Interface
	metrics *Metrics
	// discard releases a result nobody is waiting for any more.
	discard func(T)

	submit chan *job[T]
	closed chan struct{}
	idle   chan struct{}

	closeOnce sync.Once
	chains    sync.WaitGroup
}

type job[T any] struct {
	ctx    context.Context
	task   Task[T]
	result chan jobResult[T]
}

type jobResult[T any] struct {
	value T
	err   error
}

// NewQueue creates a queue for the op operations of bucket and starts its supervisor.
func NewQueue[T any](bucket, op string, retry RetryConfig, logger logging.Interface, metrics *Metrics) *Queue[T] {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if retry.AttemptTimeout <= 0 {
		retry.AttemptTimeout = DefaultRetryConfig().AttemptTimeout
	}
	q := &Queue[T]{
		bucket:  bucket,
		op:      op,
		retry:   retry,
		logger:  logger.WithField("bucket", bucket).WithField("op", op),
		metrics: metrics,
		submit:  make(chan *job[T]),
		closed:  make(chan struct{}),
		idle:    make(chan struct{}),
	}
	go q.supervise()
	return q
}

// WithDiscard sets fn to release a successful result whose caller stopped
// waiting, such as an open reader. It must be called before the first Run.
func (q *Queue[T]) WithDiscard(fn func(T)) *Queue[T] {
	q.discard = fn
	return q
}

func (q *Queue[T]) supervise() {
	defer close(q.idle)
	for {
		select {
		case <-q.closed:
			return
		case j := <-q.submit:
			q.chains.Add(1)
			go func() {
				defer q.chains.Done()
				q.drive(j)
			}()
		}
	}
}

// Run submits task and waits for its chain to finish.
//
// If ctx ends first Run returns ctx.Err(). The attempt in progress is left to
// finish on its own, and no further attempt is started for that chain. A
// result it still produces is passed to the discard func, if any.
func (q *Queue[T]) Run(ctx context.Context, task Task[T]) (T, error) {
	var zero T
	j := &job[T]{
		ctx:    ctx,
		task:   task,
		result: make(chan jobResult[T], 1),
	}

	select {
	case <-q.closed:
		return zero, ErrQueueClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	case q.submit <- j:
	}

	select {
	case r := <-j.result:
		return r.value, r.err
	case <-ctx.Done():
		if q.discard != nil {
			go func() {
				if r := <-j.result; r.err == nil {
					q.discard(r.value)
				}
			}()
		}
		return zero, ctx.Err()
	}
}

// Close stops accepting tasks, interrupts chains waiting out a backoff delay
// and waits for attempts already talking to the backend.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() {
		close(q.closed)
	})
	<-q.idle
	q.chains.Wait()
}

func (q *Queue[T]) drive(j *job[T]) {
	taskID := uuid.NewString()
	log := q.logger.WithField("task_id", taskID).WithField("path", j.task.Path())
	start := time.Now()
	q.metrics.taskStarted(q.bucket, q.op)

	value, err := q.loop(j, log)

	q.metrics.taskFinished(q.bucket, q.op, err, time.Since(start))
	j.result <- jobResult[T]{value: value, err: err}
}

func (q *Queue[T]) loop(j *job[T], log logging.Interface) (T, error) {
	var zero T
	policy := q.retry.newBackOff()
	task := j.task

	for attempt := 1; ; attempt++ {
		if err := j.ctx.Err(); err != nil {
			return zero, err
		}
		out := q.attempt(j.ctx, task)
		q.metrics.observeAttempt(q.bucket, q.op, out.String())

		switch {
		case out.IsOk():
			if attempt > 1 {
				log.WithField("attempt", attempt).Info("Storage task succeeded after retry")
			}
			return out.Value(), nil
		case out.IsFail():
			log.WithField("attempt", attempt).WithError(out.Err()).Warn("Storage task failed")
			return zero, out.Err()
		}

		if q.retry.exhausted(attempt) {
			log.WithField("attempt", attempt).WithError(out.Err()).Error("Storage task out of attempts")
			return zero, &RetriesExhaustedError{Attempts: attempt, Err: out.Err()}
		}
		delay := policy.NextBackOff()
		if delay == backoff.Stop {
			log.WithField("attempt", attempt).WithError(out.Err()).Error("Storage task out of retry time")
			return zero, &RetriesExhaustedError{Attempts: attempt, Err: out.Err()}
		}

		log.WithField("attempt", attempt).
			WithField("delay", delay.String()).
			WithError(out.Err()).
			Debug("Retryable storage failure, backing off")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-j.ctx.Done():
			timer.Stop()
			return zero, j.ctx.Err()
		case <-q.closed:
			timer.Stop()
			return zero, ErrQueueClosed
		}
		task = out.Next()
	}
}

// attempt runs one task attempt detached from the caller's cancellation so a
// backend call in progress is never cut off halfway. AttemptTimeout still applies.
func (q *Queue[T]) attempt(ctx context.Context, task Task[T]) Outcome[T] {
	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.retry.AttemptTimeout)
	defer cancel()
	return task.Run(attemptCtx)
}
