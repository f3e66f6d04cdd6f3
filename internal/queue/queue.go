// Package queue implements the rate-limited priority job queues that drive
// the ingestion pipeline. Each queue owns a bounded pool of handler
// goroutines, dispatches waiting jobs in priority order (FIFO within a
// priority), throttles job starts with a rolling-window rate cap, and
// retries failed jobs with a configurable backoff. Delivery is
// at-least-once: handlers must be idempotent.
package queue

import (
	"container/heap"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/navbug/competitive-monitoring-platform-backend/internal/metrics"
)

// Handler consumes one job. Returning an error schedules a retry unless the
// error is marked Permanent or the attempt budget is exhausted.
type Handler func(ctx context.Context, job Job) error

// Job is one unit of work delivered to a handler.
type Job struct {
	ID          string
	Queue       string
	Payload     json.RawMessage
	Attempt     int
	MaxAttempts int
	Priority    int

	backoff Backoff
	seq     uint64
}

// Options tune a single enqueue call.
type Options struct {
	// Priority orders dispatch; lower values run first. Zero means the
	// default priority (3).
	Priority int
	// MaxAttempts bounds delivery attempts. Zero means one attempt.
	MaxAttempts int
	// Backoff computes the delay between attempts.
	Backoff Backoff
}

// Config describes one named queue.
type Config struct {
	Name        string
	Concurrency int
	// Depth bounds waiting jobs; Enqueue fails beyond it. Zero means 1024.
	Depth int
	// RateMax caps job starts per RateWindow; zero disables rate limiting.
	RateMax    int
	RateWindow time.Duration
}

const (
	defaultPriority = 3
	defaultDepth    = 1024
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error as non-retryable; the job fails immediately
// regardless of its remaining attempt budget.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether the error carries the Permanent marker.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// FailureHandler receives jobs that exhausted their attempts.
type FailureHandler func(job Job, err error)

// Queue is a single named priority queue with its own worker pool.
type Queue struct {
	cfg       Config
	handler   Handler
	limiter   *rate.Limiter
	onFailure FailureHandler
	logger    *zap.Logger

	mu      sync.Mutex
	waiting jobHeap
	seq     uint64
	closed  bool

	wake chan struct{}
	wg   sync.WaitGroup
}

func newQueue(cfg Config, handler Handler, onFailure FailureHandler, logger *zap.Logger) *Queue {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Depth <= 0 {
		cfg.Depth = defaultDepth
	}
	var limiter *rate.Limiter
	if cfg.RateMax > 0 && cfg.RateWindow > 0 {
		// Token bucket sized to the window cap approximates the rolling
		// window: at most RateMax starts in any RateWindow once drained.
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RateMax)/cfg.RateWindow.Seconds()), cfg.RateMax)
	}
	return &Queue{
		cfg:       cfg,
		handler:   handler,
		limiter:   limiter,
		onFailure: onFailure,
		logger:    logger.Named(cfg.Name),
		wake:      make(chan struct{}, 1),
	}
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.cfg.Name
}

// Depth returns the number of jobs currently waiting.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiting.Len()
}

func (q *Queue) push(job *Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("queue %s is closed", q.cfg.Name)
	}
	if q.waiting.Len() >= q.cfg.Depth {
		q.mu.Unlock()
		return fmt.Errorf("queue %s is full (depth %d)", q.cfg.Name, q.cfg.Depth)
	}
	q.seq++
	job.seq = q.seq
	heap.Push(&q.waiting, job)
	depth := q.waiting.Len()
	q.mu.Unlock()

	metrics.SetQueueDepth(q.cfg.Name, depth)
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// requeue re-inserts a retrying job, bypassing the depth cap so a full
// queue cannot drop a job that was already accepted. A job arriving after
// the queue closed cannot run again and is reported as abandoned.
func (q *Queue) requeue(job *Job) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		metrics.ObserveJob(q.cfg.Name, "failed")
		metrics.ObservePermanentFailure(q.cfg.Name)
		q.logger.Error("job abandoned, queue closed before retry",
			zap.String("job_id", job.ID),
			zap.Int("attempt", job.Attempt),
		)
		if q.onFailure != nil {
			q.onFailure(*job, fmt.Errorf("queue %s closed before retry", q.cfg.Name))
		}
		return
	}
	q.seq++
	job.seq = q.seq
	heap.Push(&q.waiting, job)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) pop() (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.waiting.Len() == 0 {
		return nil, false
	}
	job := heap.Pop(&q.waiting).(*Job)
	metrics.SetQueueDepth(q.cfg.Name, q.waiting.Len())
	return job, true
}

// Run starts the worker pool and blocks until the context finishes.
func (q *Queue) Run(ctx context.Context) {
	for i := 0; i < q.cfg.Concurrency; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.runWorker(ctx)
		}()
	}
	<-ctx.Done()
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) runWorker(ctx context.Context) {
	for {
		job, ok := q.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}
		if q.limiter != nil {
			start := time.Now()
			if err := q.limiter.Wait(ctx); err != nil {
				// Context ended while throttled; the job was already
				// accepted, so put it back for the next run.
				q.requeue(job)
				return
			}
			if waited := time.Since(start); waited > time.Millisecond {
				metrics.ObserveRateLimitWait(q.cfg.Name, waited)
			}
		}
		q.process(ctx, job)
	}
}

func (q *Queue) process(ctx context.Context, job *Job) {
	err := q.handler(ctx, *job)
	if err == nil {
		metrics.ObserveJob(q.cfg.Name, "succeeded")
		return
	}

	if IsPermanent(err) || job.Attempt >= job.MaxAttempts {
		metrics.ObserveJob(q.cfg.Name, "failed")
		metrics.ObservePermanentFailure(q.cfg.Name)
		q.logger.Error("job permanently failed",
			zap.String("job_id", job.ID),
			zap.Int("attempt", job.Attempt),
			zap.Error(err),
		)
		if q.onFailure != nil {
			q.onFailure(*job, err)
		}
		return
	}

	delay := job.backoff.Next(job.Attempt)
	metrics.ObserveJob(q.cfg.Name, "retried")
	q.logger.Warn("job failed, scheduling retry",
		zap.String("job_id", job.ID),
		zap.Int("attempt", job.Attempt),
		zap.Duration("delay", delay),
		zap.Error(err),
	)
	retry := *job
	retry.Attempt++
	time.AfterFunc(delay, func() {
		q.requeue(&retry)
	})
}

// Manager owns the named queues and is the single enqueue surface for the
// pipeline components.
type Manager struct {
	mu     sync.Mutex
	queues map[string]*Queue
	logger *zap.Logger
	nextID uint64
}

// NewManager constructs an empty Manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		queues: make(map[string]*Queue),
		logger: logger.Named("queue"),
	}
}

// Register creates a queue with a single handler. Registering the same name
// twice is a programming error.
func (m *Manager) Register(cfg Config, handler Handler, onFailure FailureHandler) (*Queue, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("queue %s requires a handler", cfg.Name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.queues[cfg.Name]; exists {
		return nil, fmt.Errorf("queue %s already registered", cfg.Name)
	}
	q := newQueue(cfg, handler, onFailure, m.logger)
	m.queues[cfg.Name] = q
	return q, nil
}

// Enqueue submits a JSON-serializable payload to a named queue.
func (m *Manager) Enqueue(ctx context.Context, queueName string, payload any, opts Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("enqueue canceled: %w", err)
	}
	m.mu.Lock()
	q, ok := m.queues[queueName]
	m.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("unknown queue %q", queueName)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	priority := opts.Priority
	if priority <= 0 {
		priority = defaultPriority
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	id := fmt.Sprintf("%s-%d", queueName, atomic.AddUint64(&m.nextID, 1))
	job := &Job{
		ID:          id,
		Queue:       queueName,
		Payload:     data,
		Attempt:     1,
		MaxAttempts: attempts,
		Priority:    priority,
		backoff:     opts.Backoff,
	}
	if err := q.push(job); err != nil {
		return "", err
	}
	return id, nil
}

// Run starts every registered queue and blocks until the context finishes.
func (m *Manager) Run(ctx context.Context) {
	m.mu.Lock()
	queues := make([]*Queue, 0, len(m.queues))
	for _, q := range m.queues {
		queues = append(queues, q)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, q := range queues {
		wg.Add(1)
		go func(q *Queue) {
			defer wg.Done()
			q.Run(ctx)
		}(q)
	}
	wg.Wait()
}

// jobHeap orders jobs by priority, then enqueue order.
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) {
	*h = append(*h, x.(*Job))
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return job
}
