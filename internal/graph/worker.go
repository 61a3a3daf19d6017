package graph

import (
	"context"
	"log"
	"time"

	"github.com/outpost-fi/sovereign/internal/ledger"
)

// WorkerConfig tunes the background projection loop.
type WorkerConfig struct {
	QueueSize     int
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
}

const (
	defaultQueueSize     = 1024
	defaultMaxAttempts   = 5
	defaultRetryBackoff  = 50 * time.Millisecond
	defaultRetryMaxDelay = 2 * time.Second
)

func (c WorkerConfig) normalized() WorkerConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = defaultRetryMaxDelay
	}
	return c
}

// Worker mirrors committed ledger mutations off the ledger-write critical
// path. Transient graph-store failures are retried with backoff; a ledger
// write is never rolled back because the mirror is slow or unavailable.
type Worker struct {
	projector *Projector
	config    WorkerConfig
	queue     chan task
}

// task is one queued projection: either a committed entry or a created
// account. Exactly one field is set.
type task struct {
	entry   *ledger.JournalEntry
	account *ledger.Account
}

// NewWorker creates a projection worker feeding the given projector.
func NewWorker(projector *Projector, config WorkerConfig) *Worker {
	config = config.normalized()
	return &Worker{
		projector: projector,
		config:    config,
		queue:     make(chan task, config.QueueSize),
	}
}

// Enqueue hands a committed entry to the worker. It never blocks the
// committing caller: when the queue is full the entry is dropped with a log
// line, and the periodic integrity sweep surfaces the resulting variance.
func (w *Worker) Enqueue(entry ledger.JournalEntry) {
	w.push(task{entry: &entry}, "entry "+entry.ID)
}

// EnqueueAccount hands a newly created account to the worker so its node
// mirrors without waiting for a referencing entry.
func (w *Worker) EnqueueAccount(account ledger.Account) {
	w.push(task{account: &account}, "account "+account.ID)
}

func (w *Worker) push(t task, label string) {
	select {
	case w.queue <- t:
	default:
		log.Printf("graph projection queue full, dropping %s", label)
	}
}

// Run processes the queue until the context ends.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-w.queue:
			w.projectWithRetry(ctx, t)
		}
	}
}

func (w *Worker) projectWithRetry(ctx context.Context, t task) {
	var label string
	var apply func(context.Context) error
	if t.account != nil {
		label = "account " + t.account.ID
		apply = func(ctx context.Context) error {
			return w.projector.ProjectAccount(ctx, *t.account)
		}
	} else {
		label = "entry " + t.entry.ID
		apply = func(ctx context.Context) error {
			_, err := w.projector.Project(ctx, *t.entry)
			return err
		}
	}

	delay := w.config.RetryBackoff
	for attempt := 1; attempt <= w.config.MaxAttempts; attempt++ {
		err := apply(ctx)
		if err == nil {
			return
		}
		if attempt == w.config.MaxAttempts {
			log.Printf("graph projection gave up: %s attempts=%d err=%v", label, attempt, err)
			return
		}
		log.Printf("graph projection retry: %s attempt=%d err=%v", label, attempt, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > w.config.RetryMaxDelay {
			delay = w.config.RetryMaxDelay
		}
	}
}
