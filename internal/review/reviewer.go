package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vanshika/txscreen/internal/domain"
)

// Store is the persistence the reviewer needs.
type Store interface {
	GetTransaction(ctx context.Context, id string) (domain.Transaction, error)
	CompareAndSetStatus(ctx context.Context, id string, expected, next domain.Status, review domain.SecondaryReview) error
	// AttachSecondaryReview stores review without touching the status.
	AttachSecondaryReview(ctx context.Context, id string, review domain.SecondaryReview) error
	RecordComplianceCheck(ctx context.Context, check domain.ComplianceCheck) error
}

// Notifier is told about every completed review.
type Notifier interface {
	Notify(ctx context.Context, tx domain.Transaction, note string) error
}

// Request asks for a secondary review. ObservedStatus is the status the
// transaction had when the review was scheduled; the transition is applied
// only if the stored status still equals it.
type Request struct {
	TransactionID  string
	ObservedStatus domain.Status
}

// Config tunes the worker pool.
type Config struct {
	Workers   int
	QueueSize int
	Delay     time.Duration
	Timeout   time.Duration
}

const (
	defaultWorkers   = 2
	defaultQueueSize = 256
	defaultTimeout   = 30 * time.Second
)

var (
	// ErrQueueFull is returned by Schedule when the backlog is at capacity.
	ErrQueueFull = errors.New("review queue is full")
	// ErrNotRunning is returned by Schedule before Start or after shutdown.
	ErrNotRunning = errors.New("reviewer is not running")
)

// Reviewer consumes review requests from a buffered channel with a fixed set
// of workers.
type Reviewer struct {
	cfg        Config
	store      Store
	classifier Classifier
	notifier   Notifier
	logger     *slog.Logger
	nowFn      func() time.Time

	queue chan Request
	wg    sync.WaitGroup

	mu       sync.Mutex
	running  bool
	inflight map[string]*inflightReview
}

type inflightReview struct {
	cancel context.CancelFunc
}

// NewReviewer builds a Reviewer. notifier may be nil.
func NewReviewer(cfg Config, store Store, classifier Classifier, notifier Notifier, logger *slog.Logger) *Reviewer {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if classifier == nil {
		classifier = NewRandomClassifier(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reviewer{
		cfg:        cfg,
		store:      store,
		classifier: classifier,
		notifier:   notifier,
		logger:     logger.With("component", "reviewer"),
		nowFn:      time.Now,
		queue:      make(chan Request, cfg.QueueSize),
		inflight:   make(map[string]*inflightReview),
	}
}

// WithClock overrides the time provider (used primarily in tests).
func (r *Reviewer) WithClock(nowFn func() time.Time) {
	if nowFn != nil {
		r.nowFn = nowFn
	}
}

// Start launches the workers. They stop when ctx is cancelled; Wait blocks
// until they have.
func (r *Reviewer) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.work(ctx)
	}

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()
}

// Wait blocks until all workers have exited.
func (r *Reviewer) Wait() {
	r.wg.Wait()
}

// Schedule enqueues req without blocking.
func (r *Reviewer) Schedule(req Request) error {
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()
	if !running {
		return ErrNotRunning
	}

	select {
	case r.queue <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Cancel aborts an in-flight review of transactionID. It reports whether one
// was running.
func (r *Reviewer) Cancel(transactionID string) bool {
	r.mu.Lock()
	run, ok := r.inflight[transactionID]
	delete(r.inflight, transactionID)
	r.mu.Unlock()
	if ok {
		run.cancel()
	}
	return ok
}

func (r *Reviewer) work(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-r.queue:
			if err := r.Review(ctx, req); err != nil {
				r.logger.Error("secondary review failed",
					"transaction_id", req.TransactionID,
					"error", err,
				)
			}
		}
	}
}

// Review performs one secondary review synchronously. A newer review of the
// same transaction supersedes one still running.
func (r *Reviewer) Review(ctx context.Context, req Request) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	run := r.track(req.TransactionID, cancel)
	defer r.untrack(req.TransactionID, run)

	if r.cfg.Delay > 0 {
		timer := time.NewTimer(r.cfg.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("review %s: %w", req.TransactionID, ctx.Err())
		case <-timer.C:
		}
	}

	tx, err := r.store.GetTransaction(ctx, req.TransactionID)
	if err != nil {
		return fmt.Errorf("load transaction %s: %w", req.TransactionID, err)
	}

	outcome, err := r.classifier.Classify(ctx, tx)
	if err != nil {
		return fmt.Errorf("classify transaction %s: %w", req.TransactionID, err)
	}
	if !outcome.Valid() {
		return fmt.Errorf("classify transaction %s: unknown outcome %q", req.TransactionID, outcome)
	}

	now := r.nowFn().UTC()
	report := outcome.Report(now)
	next := NextStatus(req.ObservedStatus, outcome)

	if next != req.ObservedStatus {
		if err := r.store.CompareAndSetStatus(ctx, req.TransactionID, req.ObservedStatus, next, report); err != nil {
			return fmt.Errorf("apply %s -> %s on %s: %w", req.ObservedStatus, next, req.TransactionID, err)
		}
		r.logger.Info("transaction status revised",
			"transaction_id", req.TransactionID,
			"from", req.ObservedStatus,
			"to", next,
			"outcome", outcome,
		)
	} else if err := r.store.AttachSecondaryReview(ctx, req.TransactionID, report); err != nil {
		return fmt.Errorf("attach review to %s: %w", req.TransactionID, err)
	}

	check := domain.ComplianceCheck{
		ID:            uuid.NewString(),
		TransactionID: req.TransactionID,
		CheckType:     domain.CheckTypeAsync,
		Result:        outcome.CheckResult(),
		Notes:         report.Notes,
		CreatedAt:     now,
	}
	if err := r.store.RecordComplianceCheck(ctx, check); err != nil {
		r.logger.Warn("record compliance check failed", "transaction_id", req.TransactionID, "error", err)
	}

	if r.notifier == nil {
		return nil
	}
	fresh, err := r.store.GetTransaction(ctx, req.TransactionID)
	if err != nil {
		return fmt.Errorf("reload transaction %s: %w", req.TransactionID, err)
	}
	if err := r.notifier.Notify(ctx, fresh, report.Notes); err != nil {
		r.logger.Warn("review notification failed", "transaction_id", req.TransactionID, "error", err)
	}
	return nil
}

func (r *Reviewer) track(id string, cancel context.CancelFunc) *inflightReview {
	run := &inflightReview{cancel: cancel}
	r.mu.Lock()
	prev, ok := r.inflight[id]
	r.inflight[id] = run
	r.mu.Unlock()
	if ok {
		prev.cancel()
	}
	return run
}

func (r *Reviewer) untrack(id string, run *inflightReview) {
	r.mu.Lock()
	if r.inflight[id] == run {
		delete(r.inflight, id)
	}
	r.mu.Unlock()
}
