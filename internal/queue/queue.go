// Package queue serializes calls to a rate-limited external service.
//
// A Queue runs scheduled operations one at a time in submission order and
// keeps a minimum interval between the start of consecutive operations.
// One Queue should be shared by every caller that reaches the same
// service, since the external limit applies to the whole process.
package queue

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultMinInterval spaces calls for a limit of 15 requests per minute.
const DefaultMinInterval = 4 * time.Second

// ErrClosed is returned by Schedule after Close.
var ErrClosed = errors.New("queue closed")

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

type job struct {
	run  func()
	done chan struct{}
}

// Queue is a FIFO executor with minimum start spacing.
type Queue struct {
	minInterval time.Duration
	clock       Clock
	logger      *slog.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	pending   []*job
	running   bool
	closed    bool
	lastStart time.Time
	started   bool
}

// Option customizes a Queue.
type Option func(*Queue)

// WithMinInterval overrides DefaultMinInterval.
func WithMinInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d >= 0 {
			q.minInterval = d
		}
	}
}

// WithClock overrides the wall clock and sleeper (useful for tests).
func WithClock(c Clock) Option {
	return func(q *Queue) {
		if c != nil {
			q.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// New creates a Queue and starts its worker.
func New(opts ...Option) *Queue {
	q := &Queue{
		minInterval: DefaultMinInterval,
		clock:       realClock{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.cond = sync.NewCond(&q.mu)
	go q.work()
	return q
}

// MinInterval returns the configured spacing.
func (q *Queue) MinInterval() time.Duration {
	return q.minInterval
}

// Len returns the number of operations waiting or running.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending)
	if q.running {
		n++
	}
	return n
}

// Close stops the worker after the already scheduled operations finish.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Do schedules op and blocks until it has run. Once scheduled, op runs to
// completion; there is no cancellation. A panic in op is recovered and
// returned as an error so later operations still run.
func (q *Queue) Do(op func() error) error {
	var opErr error
	j := &job{done: make(chan struct{})}
	j.run = func() {
		defer func() {
			if r := recover(); r != nil {
				opErr = fmt.Errorf("queued operation panicked: %v", r)
			}
		}()
		opErr = op()
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.pending = append(q.pending, j)
	q.mu.Unlock()
	q.cond.Signal()

	<-j.done
	return opErr
}

// Schedule runs op on q and returns its result.
func Schedule[T any](q *Queue, op func() (T, error)) (T, error) {
	var result T
	err := q.Do(func() error {
		var err error
		result, err = op()
		return err
	})
	return result, err
}

func (q *Queue) work() {
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		j := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.running = true
		q.mu.Unlock()

		q.waitTurn()
		j.run()

		q.mu.Lock()
		q.running = false
		q.mu.Unlock()
		close(j.done)
	}
}

// waitTurn sleeps until minInterval has passed since the previous start,
// then records the new start. Only the worker goroutine touches
// lastStart.
func (q *Queue) waitTurn() {
	if q.started {
		if wait := q.minInterval - q.clock.Now().Sub(q.lastStart); wait > 0 {
			q.logger.Debug("queue spacing", "wait", wait)
			q.clock.Sleep(wait)
		}
	}
	q.lastStart = q.clock.Now()
	q.started = true
}
