package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/accordhq/accord/internal/metrics"
	"github.com/accordhq/accord/types"
)

// AttemptRunner executes one negotiation attempt. Implemented by
// negotiation.Orchestrator; the scheduler only cares whether the error is
// retryable.
type AttemptRunner interface {
	// RunAttempt runs attempt number attempt (1-based) for the conflict.
	RunAttempt(ctx context.Context, conflictID string, attempt int) error

	// MarkFailed records that the conflict exhausted its retry budget.
	MarkFailed(ctx context.Context, conflictID string, cause error) error
}

// Config configures the scheduler.
type Config struct {
	// Workers is the size of the worker pool.
	Workers int `json:"workers" yaml:"workers"`

	// QueueSize is the buffered queue capacity. Excess enqueues block in
	// the background rather than fail.
	QueueSize int `json:"queue_size" yaml:"queue_size"`

	// AttemptsPerWindow and RateWindow bound attempt admission: at most
	// AttemptsPerWindow attempts issue their first agent call per rolling
	// RateWindow. Protects the shared LLM-backed agent capability.
	AttemptsPerWindow int           `json:"attempts_per_window" yaml:"attempts_per_window"`
	RateWindow        time.Duration `json:"rate_window" yaml:"rate_window"`

	// MaxAttempts is the total attempt budget per conflict, including the
	// first run.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// RetryDelay is the fixed delay before a transient failure is retried.
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay"`
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		Workers:           4,
		QueueSize:         64,
		AttemptsPerWindow: 5,
		RateWindow:        time.Minute,
		MaxAttempts:       3,
		RetryDelay:        120 * time.Second,
	}
}

func (c Config) normalized() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.AttemptsPerWindow <= 0 {
		c.AttemptsPerWindow = 5
	}
	if c.RateWindow <= 0 {
		c.RateWindow = time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 120 * time.Second
	}
	return c
}

type task struct {
	conflictID string
	attempt    int
	handle     *Handle
}

// Scheduler admits negotiation attempts to a bounded worker pool. The
// shared rate limiter and the in-flight map are the only cross-attempt
// mutable state; both are safe under concurrent access from all workers.
type Scheduler struct {
	config  Config
	runner  AttemptRunner
	limiter *rate.Limiter

	queue    chan *task
	inflight map[string]*Handle
	mu       sync.Mutex
	closed   bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewScheduler creates a scheduler. Call Start before enqueueing.
func NewScheduler(config Config, runner AttemptRunner, collector *metrics.Collector, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	config = config.normalized()
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		config: config,
		runner: runner,
		// Burst 1: admissions are evenly spaced, so any rolling RateWindow
		// holds at most AttemptsPerWindow of them even after idle periods.
		limiter: rate.NewLimiter(
			rate.Every(config.RateWindow/time.Duration(config.AttemptsPerWindow)),
			1,
		),
		queue:    make(chan *task, config.QueueSize),
		inflight: make(map[string]*Handle),
		baseCtx:  ctx,
		cancel:   cancel,
		metrics:  collector,
		logger:   logger.With(zap.String("component", "scheduler")),
	}
}

// Start launches the worker pool.
func (s *Scheduler) Start() {
	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	s.logger.Info("scheduler started",
		zap.Int("workers", s.config.Workers),
		zap.Int("attempts_per_window", s.config.AttemptsPerWindow),
		zap.Duration("rate_window", s.config.RateWindow),
	)
}

// Enqueue admits a conflict for negotiation. Enqueueing a conflict that is
// already in flight is a no-op returning the existing handle; this is the
// per-conflict mutual exclusion guarantee.
func (s *Scheduler) Enqueue(conflictID string) (*Handle, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, types.NewError(types.ErrSchedulerClosed, "scheduler is closed")
	}
	if existing, ok := s.inflight[conflictID]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	handle := newHandle(conflictID)
	s.inflight[conflictID] = handle
	s.metrics.IncInflight()
	s.mu.Unlock()

	s.push(&task{conflictID: conflictID, attempt: 1, handle: handle})
	return handle, nil
}

// InFlight reports whether a negotiation is currently admitted for the
// conflict.
func (s *Scheduler) InFlight(conflictID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[conflictID]
	return ok
}

// Close stops admission, cancels running attempts, and waits for workers up
// to the context deadline.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		s.drain()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain completes every task still buffered in the queue after the workers
// have exited. Without it a caller waiting on the handle of a
// queued-but-unstarted conflict would block forever.
func (s *Scheduler) drain() {
	for {
		select {
		case t := <-s.queue:
			s.finish(t, types.NewError(types.ErrSchedulerClosed,
				"scheduler closed before the attempt ran"))
		default:
			return
		}
	}
}

// push delivers a task to the queue without ever failing: if the buffer is
// full the delivery blocks in the background, so excess load queues instead
// of erroring.
func (s *Scheduler) push(t *task) {
	s.metrics.SetQueueDepth(len(s.queue) + 1)
	select {
	case s.queue <- t:
		return
	default:
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case s.queue <- t:
		case <-s.baseCtx.Done():
			s.finish(t, s.baseCtx.Err())
		}
	}()
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()
	logger := s.logger.With(zap.Int("worker", id))
	for {
		select {
		case <-s.baseCtx.Done():
			return
		case t := <-s.queue:
			s.metrics.SetQueueDepth(len(s.queue))
			s.execute(logger, t)
		}
	}
}

// execute runs one attempt. Admission under the shared limiter happens here,
// immediately before the first agent call of the attempt.
func (s *Scheduler) execute(logger *zap.Logger, t *task) {
	if err := s.limiter.Wait(s.baseCtx); err != nil {
		s.finish(t, err)
		return
	}

	logger.Debug("attempt admitted",
		zap.String("conflict_id", t.conflictID),
		zap.Int("attempt", t.attempt),
	)

	err := s.runner.RunAttempt(s.baseCtx, t.conflictID, t.attempt)
	if err == nil {
		s.finish(t, nil)
		return
	}

	if types.IsRetryable(err) && t.attempt < s.config.MaxAttempts {
		s.scheduleRetry(logger, t, err)
		return
	}

	if types.IsRetryable(err) {
		err = types.NewError(types.ErrAttemptsExhausted,
			fmt.Sprintf("conflict %s failed after %d attempts", t.conflictID, t.attempt)).
			WithCause(err)
	}
	if markErr := s.runner.MarkFailed(s.baseCtx, t.conflictID, err); markErr != nil {
		logger.Error("failed to mark conflict failed",
			zap.String("conflict_id", t.conflictID),
			zap.Error(markErr),
		)
	}
	s.finish(t, err)
}

// scheduleRetry re-enqueues the task after the fixed delay. The in-flight
// entry stays in place across the wait, so a duplicate Enqueue during the
// backoff still returns the same handle.
func (s *Scheduler) scheduleRetry(logger *zap.Logger, t *task, cause error) {
	s.metrics.RecordRetry()
	logger.Warn("transient attempt failure, retry scheduled",
		zap.String("conflict_id", t.conflictID),
		zap.Int("attempt", t.attempt),
		zap.Duration("delay", s.config.RetryDelay),
		zap.Error(cause),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-time.After(s.config.RetryDelay):
			s.push(&task{conflictID: t.conflictID, attempt: t.attempt + 1, handle: t.handle})
		case <-s.baseCtx.Done():
			s.finish(t, cause)
		}
	}()
}

func (s *Scheduler) finish(t *task, err error) {
	s.mu.Lock()
	delete(s.inflight, t.conflictID)
	s.mu.Unlock()
	s.metrics.DecInflight()
	t.handle.complete(t.attempt, err)
}
