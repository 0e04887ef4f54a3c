package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrQueueFull   = errors.New("attendance queue is full")
	ErrQueueClosed = errors.New("attendance queue is stopped")
)

// IntentKind is the store operation an intent performs.
type IntentKind string

const (
	IntentCreate   IntentKind = "create"
	IntentCheckIn  IntentKind = "checkin"
	IntentCheckOut IntentKind = "checkout"
)

// Intent is one pending store write produced by the state machine.
type Intent struct {
	ID       string
	Kind     IntentKind
	Identity string
	Record   *Record // state to persist
	Previous *Record // mirror state before the transition, restored if the write fails
	Queued   time.Time
}

// NewIntent creates an intent with a fresh ID.
func NewIntent(kind IntentKind, identity string, rec, previous *Record) Intent {
	return Intent{
		ID:       uuid.NewString(),
		Kind:     kind,
		Identity: identity,
		Record:   rec,
		Previous: previous,
		Queued:   time.Now(),
	}
}

// QueueHooks are optional callbacks for observability.
type QueueHooks struct {
	OnApplied func(Intent)
	OnFailed  func(Intent, error)
	OnRetry   func(Intent, error)
}

// Queue is a bounded outbound queue drained by a single worker goroutine that
// applies intents to the store with retries.
type Queue struct {
	store      Store
	intents    chan Intent
	failed     chan Intent
	attempts   int
	newBackOff func() backoff.BackOff
	hooks      QueueHooks
	log        logrus.FieldLogger

	mu       sync.Mutex
	started  bool
	stopped  bool
	stop     chan struct{}
	done     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithBackOff sets the retry policy factory (one policy per intent).
func WithBackOff(f func() backoff.BackOff) QueueOption {
	return func(q *Queue) { q.newBackOff = f }
}

// WithQueueLogger sets the logger.
func WithQueueLogger(l logrus.FieldLogger) QueueOption {
	return func(q *Queue) { q.log = l }
}

// WithQueueHooks sets observability callbacks.
func WithQueueHooks(h QueueHooks) QueueOption {
	return func(q *Queue) { q.hooks = h }
}

// NewQueue creates a queue holding at most size intents. Each intent is tried
// up to attempts times before it is reported as failed.
func NewQueue(store Store, size, attempts int, opts ...QueueOption) *Queue {
	if size <= 0 {
		size = 64
	}
	if attempts <= 0 {
		attempts = 1
	}
	q := &Queue{
		store:    store,
		intents:  make(chan Intent, size),
		failed:   make(chan Intent, size),
		attempts: attempts,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
		log:  logrus.StandardLogger(),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue adds an intent without blocking.
func (q *Queue) Enqueue(in Intent) error {
	q.mu.Lock()
	stopped := q.stopped
	q.mu.Unlock()
	if stopped {
		return ErrQueueClosed
	}

	select {
	case q.intents <- in:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len returns the number of pending intents.
func (q *Queue) Len() int {
	return len(q.intents)
}

// Failed delivers intents whose retries were exhausted.
func (q *Queue) Failed() <-chan Intent {
	return q.failed
}

// Start spawns the worker. Calling it twice has no effect.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true
	q.ctx, q.cancel = context.WithCancel(ctx)
	go q.run()
}

// Stop asks the worker to apply the pending intents and exit. If ctx expires
// first, in-flight writes are cancelled.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	q.stopped = true
	started := q.started
	q.mu.Unlock()
	if !started {
		return nil
	}

	q.stopOnce.Do(func() { close(q.stop) })

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		q.cancel()
		<-q.done
		return fmt.Errorf("draining attendance queue: %w", ctx.Err())
	}
}

func (q *Queue) run() {
	defer close(q.done)
	defer q.cancel()

	for {
		select {
		case in := <-q.intents:
			q.apply(in)
		case <-q.stop:
			q.drain()
			return
		case <-q.ctx.Done():
			return
		}
	}
}

func (q *Queue) drain() {
	for {
		select {
		case in := <-q.intents:
			q.apply(in)
		default:
			return
		}
	}
}

func (q *Queue) apply(in Intent) {
	log := q.log.WithFields(logrus.Fields{
		"intent_id": in.ID,
		"kind":      in.Kind,
		"identity":  in.Identity,
	})

	op := func() error {
		if err := q.ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return q.write(q.ctx, in)
	}
	notify := func(err error, wait time.Duration) {
		log.WithError(err).Warnf("store write failed, retrying in %s", wait)
		if q.hooks.OnRetry != nil {
			q.hooks.OnRetry(in, err)
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(q.newBackOff(), uint64(q.attempts-1)), q.ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		log.WithError(err).Error("giving up on attendance write")
		select {
		case q.failed <- in:
		default:
			log.Warn("failed intent report dropped, report channel full")
		}
		if q.hooks.OnFailed != nil {
			q.hooks.OnFailed(in, err)
		}
		return
	}

	log.WithField("latency", time.Since(in.Queued).String()).Debug("attendance write applied")
	if q.hooks.OnApplied != nil {
		q.hooks.OnApplied(in)
	}
}

func (q *Queue) write(ctx context.Context, in Intent) error {
	switch in.Kind {
	case IntentCreate:
		return q.store.CreateRecord(ctx, in.Record)
	case IntentCheckIn, IntentCheckOut:
		return q.store.UpdateRecord(ctx, in.Record)
	default:
		return backoff.Permanent(fmt.Errorf("unknown intent kind %q", in.Kind))
	}
}
