package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vanshika/txscreen/internal/domain"
)

// TaskError accumulates multiple errors produced during bulk ingestion.
type TaskError struct {
	Errors []error
}

func (e *TaskError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msg := "multiple errors:"
	for _, err := range e.Errors {
		msg += " " + err.Error() + ";"
	}
	return msg
}

func (e *TaskError) append(err error) {
	if err == nil {
		return
	}
	e.Errors = append(e.Errors, err)
}

func (e *TaskError) asError() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// HistoryWriter is the subset of Store used to load historical data.
type HistoryWriter interface {
	EnsureUser(ctx context.Context, user domain.User) (domain.User, error)
	InsertTransaction(ctx context.Context, tx domain.Transaction) error
}

// BulkIngestor loads historical users and transactions using a worker pool.
// Ingested transactions are stored as given; they are not screened or
// reviewed, and extrIds already present are skipped so reruns are safe.
type BulkIngestor struct {
	store    HistoryWriter
	workers  int
	progress func(n int)
}

// NewBulkIngestor creates a new BulkIngestor instance with the provided concurrency.
func NewBulkIngestor(store HistoryWriter, workers int) *BulkIngestor {
	if workers <= 0 {
		workers = 4
	}
	return &BulkIngestor{
		store:   store,
		workers: workers,
	}
}

// OnProgress registers fn to be called after each processed item.
func (bi *BulkIngestor) OnProgress(fn func(n int)) {
	bi.progress = fn
}

// IngestUsers processes the provided users concurrently.
func (bi *BulkIngestor) IngestUsers(ctx context.Context, users []domain.User) error {
	return bi.run(ctx, len(users), func(idx int) error {
		u := users[idx]
		if u.Account == "" {
			return fmt.Errorf("user %d: account is required", idx)
		}
		if _, err := bi.store.EnsureUser(ctx, u); err != nil {
			return fmt.Errorf("user %s: %w", u.Account, err)
		}
		return nil
	})
}

// IngestTransactions processes transactions concurrently.
func (bi *BulkIngestor) IngestTransactions(ctx context.Context, txs []domain.Transaction) error {
	return bi.run(ctx, len(txs), func(idx int) error {
		tx := txs[idx]
		if tx.ExtrID == "" || tx.Sender.Account == "" {
			return fmt.Errorf("transaction %d: extrId and sender account are required", idx)
		}
		if !tx.Status.Valid() {
			return fmt.Errorf("transaction %s: invalid status %q", tx.ExtrID, tx.Status)
		}
		err := bi.store.InsertTransaction(ctx, tx)
		if err != nil && !errors.Is(err, domain.ErrDuplicateExtrID) {
			return fmt.Errorf("transaction %s: %w", tx.ExtrID, err)
		}
		return nil
	})
}

func (bi *BulkIngestor) run(ctx context.Context, total int, workerFn func(idx int) error) error {
	if total == 0 {
		return nil
	}
	indexCh := make(chan int)
	errCh := make(chan error, total)
	var wg sync.WaitGroup
	var progressMu sync.Mutex

	worker := func() {
		defer wg.Done()
		for idx := range indexCh {
			err := workerFn(idx)
			if bi.progress != nil {
				progressMu.Lock()
				bi.progress(1)
				progressMu.Unlock()
			}
			if err != nil {
				select {
				case errCh <- err:
				case <-ctx.Done():
					return
				}
			}
		}
	}

	for i := 0; i < bi.workers; i++ {
		wg.Add(1)
		go worker()
	}

Loop:
	for i := 0; i < total; i++ {
		select {
		case indexCh <- i:
		case <-ctx.Done():
			break Loop
		}
	}
	close(indexCh)
	wg.Wait()
	close(errCh)

	if err := ctx.Err(); err != nil {
		return err
	}

	var taskErr TaskError
	for err := range errCh {
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		taskErr.append(err)
	}
	return taskErr.asError()
}
