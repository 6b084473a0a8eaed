// Package updater runs segment and vector refreshes in the background so that
// appending a message never waits on embedding.
package updater

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultDebounce  = time.Second
	defaultQueueSize = 256
	errBufferSize    = 64
)

// Updater queues tasks and runs them on a single worker goroutine. Tasks with the same
// kind and entity that arrive within the debounce window coalesce into the latest one.
// Handler errors are logged and never retried.
type Updater struct {
	handler  Handler
	debounce time.Duration
	logger   *zap.Logger

	queue chan Task
	errs  chan error

	mu          sync.Mutex
	debounceMap map[string]*pendingTask
	started     bool
	stopped     bool

	done     chan struct{}
	stopOnce sync.Once
	workerWG sync.WaitGroup
	logWG    sync.WaitGroup
}

type pendingTask struct {
	task  Task
	timer *time.Timer
}

// Option configures an Updater.
type Option func(*Updater)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(u *Updater) {
		if l != nil {
			u.logger = l
		}
	}
}

// WithDebounce sets the coalescing window. Zero queues tasks immediately.
func WithDebounce(d time.Duration) Option {
	return func(u *Updater) {
		if d >= 0 {
			u.debounce = d
		}
	}
}

// WithQueueSize sets how many ready tasks may wait for the worker.
func WithQueueSize(n int) Option {
	return func(u *Updater) {
		if n > 0 {
			u.queue = make(chan Task, n)
		}
	}
}

// New returns an updater that runs tasks through handler.
func New(handler Handler, opts ...Option) *Updater {
	u := &Updater{
		handler:     handler,
		debounce:    defaultDebounce,
		logger:      zap.NewNop(),
		queue:       make(chan Task, defaultQueueSize),
		errs:        make(chan error, errBufferSize),
		debounceMap: make(map[string]*pendingTask),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Start launches the worker and error logger. It runs until ctx is cancelled or Stop is called.
func (u *Updater) Start(ctx context.Context) {
	u.mu.Lock()
	if u.started || u.stopped {
		u.mu.Unlock()
		return
	}
	u.started = true
	u.mu.Unlock()

	u.logger.Debug("updater starting", zap.Duration("debounce", u.debounce), zap.Int("queue_size", cap(u.queue)))
	u.logWG.Add(1)
	go u.logErrors()
	u.workerWG.Add(1)
	go u.run(ctx)
}

// Enqueue schedules t without blocking. It returns false when the task was dropped because
// the updater is stopped or the queue is full.
func (u *Updater) Enqueue(t Task) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.stopped {
		return false
	}
	if u.debounce == 0 {
		return u.offer(t)
	}

	key := t.key()
	if p, ok := u.debounceMap[key]; ok {
		p.timer.Stop()
		u.logger.Debug("updater coalesced task", zap.String("key", key), zap.String("replaced_job", p.task.JobID))
	}
	p := &pendingTask{task: t}
	p.timer = time.AfterFunc(u.debounce, func() {
		u.mu.Lock()
		defer u.mu.Unlock()
		if u.debounceMap[key] != p {
			return
		}
		delete(u.debounceMap, key)
		if u.stopped {
			return
		}
		u.offer(p.task)
	})
	u.debounceMap[key] = p
	return true
}

// offer puts t on the queue without blocking. Callers hold u.mu.
func (u *Updater) offer(t Task) bool {
	select {
	case u.queue <- t:
		return true
	default:
		u.logger.Warn("updater queue full, dropping task",
			zap.String("job_id", t.JobID), zap.String("kind", string(t.Kind)), zap.Int64("entity_id", t.EntityID))
		return false
	}
}

// Pending returns the number of tasks waiting in the debounce window or the queue.
func (u *Updater) Pending() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.debounceMap) + len(u.queue)
}

func (u *Updater) run(ctx context.Context) {
	defer u.workerWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-u.done:
			u.drain(ctx)
			return
		case t := <-u.queue:
			u.handle(ctx, t)
		}
	}
}

func (u *Updater) drain(ctx context.Context) {
	for {
		select {
		case t := <-u.queue:
			u.handle(ctx, t)
		default:
			return
		}
	}
}

func (u *Updater) handle(ctx context.Context, t Task) {
	start := time.Now()
	err := u.handler.HandleTask(ctx, t)
	if err == nil {
		u.logger.Debug("updater task done", zap.String("job_id", t.JobID), zap.String("kind", string(t.Kind)),
			zap.Int64("entity_id", t.EntityID), zap.Duration("took", time.Since(start)))
		return
	}
	err = fmt.Errorf("job %s (%s %d): %w", t.JobID, t.Kind, t.EntityID, err)
	select {
	case u.errs <- err:
	default:
		u.logger.Error("updater task failed", zap.Error(err))
	}
}

func (u *Updater) logErrors() {
	defer u.logWG.Done()
	for err := range u.errs {
		u.logger.Error("updater task failed", zap.Error(err))
	}
}

// Stop flushes debounced tasks, runs everything already queued, and waits for the worker.
// Tasks enqueued after Stop are rejected.
func (u *Updater) Stop() {
	u.stopOnce.Do(func() {
		u.mu.Lock()
		u.stopped = true
		started := u.started
		// A timer that already fired may be blocked on u.mu; its entry is still here,
		// and once deleted the callback returns without offering, so offer it now.
		for key, p := range u.debounceMap {
			p.timer.Stop()
			u.offer(p.task)
			delete(u.debounceMap, key)
		}
		u.mu.Unlock()

		close(u.done)
		u.workerWG.Wait()
		close(u.errs)
		if started {
			u.logWG.Wait()
		}
	})
}
