package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/okian/comparo/internal/adapters/contracts"
	"github.com/okian/comparo/internal/adapters/mq/queue"
	"github.com/okian/comparo/internal/domain/dedupe"
	"github.com/okian/comparo/internal/domain/model"
	"github.com/okian/comparo/internal/domain/types"
	"github.com/okian/comparo/pkg/logger"
	"github.com/okian/comparo/pkg/metrics"
)

// Import results reported to metrics.
const (
	importAccepted  = "accepted"
	importRejected  = "rejected"
	importDuplicate = "duplicate"
	importFailed    = "failed"
)

// ImportComparable validates rec and stores it unless an identical record
// was already imported.
func (s *Service) ImportComparable(ctx context.Context, rec model.ComparableRecord) (model.Comparable, error) {
	const op = "service.ImportComparable"
	if err := s.running(); err != nil {
		return model.Comparable{}, fmt.Errorf("%s: %w", op, err)
	}
	return s.importRecord(ctx, rec)
}

// importRecord is the import pipeline behind the running check.
func (s *Service) importRecord(ctx context.Context, rec model.ComparableRecord) (model.Comparable, error) {
	const op = "service.ImportComparable"
	if err := rec.Validate(); err != nil {
		metrics.RecordImport(importRejected)
		return model.Comparable{}, fmt.Errorf("%s: %w", op, err)
	}

	fp := dedupe.Fingerprint(rec)
	if s.deduper.SeenAndRecord(ctx, fp) {
		metrics.RecordImport(importDuplicate)
		return model.Comparable{}, fmt.Errorf("%s: %w", op, dedupe.ErrDuplicate)
	}

	c, err := s.store.ImportComparable(ctx, rec)
	if err != nil {
		// allow the record to be retried
		s.deduper.Unrecord(ctx, fp)
		if errors.Is(err, model.ErrValidation) {
			metrics.RecordImport(importRejected)
		} else {
			metrics.RecordImport(importFailed)
		}
		return model.Comparable{}, fmt.Errorf("%s: %w", op, err)
	}
	metrics.RecordImport(importAccepted)
	return c, nil
}

// ImportRaw checks body against the import contract and imports it.
func (s *Service) ImportRaw(ctx context.Context, body []byte) (model.Comparable, error) {
	if err := s.running(); err != nil {
		return model.Comparable{}, fmt.Errorf("service.ImportRaw: %w", err)
	}
	return s.importRaw(ctx, body)
}

func (s *Service) importRaw(ctx context.Context, body []byte) (model.Comparable, error) {
	rec, err := contracts.DecodeRecord(body)
	if err != nil {
		metrics.RecordImport(importRejected)
		return model.Comparable{}, fmt.Errorf("service.ImportRaw: %w", err)
	}
	return s.importRecord(ctx, rec)
}

// workerImporter is the import workers' entry point. It skips the running
// check, which would block on the lock while Stop waits for the drain.
type workerImporter struct{ s *Service }

func (w workerImporter) ImportRaw(ctx context.Context, body []byte) (model.Comparable, error) {
	return w.s.importRaw(ctx, body)
}

// EnqueueBatch queues every record of a JSON array for asynchronous import.
// It stops at the first record the queue refuses and returns queue.ErrFull.
func (s *Service) EnqueueBatch(ctx context.Context, body []byte, origin string) (types.BatchReceipt, error) {
	const op = "service.EnqueueBatch"
	if err := s.running(); err != nil {
		return types.BatchReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	records, err := contracts.SplitBatch(body)
	if err != nil {
		return types.BatchReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	if len(records) == 0 {
		return types.BatchReceipt{}, fmt.Errorf("%s: %w", op, model.NewValidationError("body", "must contain at least 1 record"))
	}

	receipt := types.BatchReceipt{JobIDs: make([]string, 0, len(records))}
	for i, raw := range records {
		job := queue.Job{
			ID:         uuid.NewString(),
			Body:       raw,
			Origin:     origin,
			ReceivedAt: s.now().UTC(),
		}
		if !s.jobs.Enqueue(ctx, job) {
			receipt.Rejected = len(records) - i
			s.logger.Warn(ctx, "import queue full",
				logger.Int("accepted", receipt.Accepted),
				logger.Int("rejected", receipt.Rejected),
			)
			return receipt, fmt.Errorf("%s: %w", op, queue.ErrFull)
		}
		receipt.Accepted++
		receipt.JobIDs = append(receipt.JobIDs, job.ID)
	}
	return receipt, nil
}

// Enqueue queues one raw record produced elsewhere, e.g. by the AMQP consumer.
func (s *Service) Enqueue(ctx context.Context, j queue.Job) bool {
	if s.running() != nil {
		return false
	}
	return s.jobs.Enqueue(ctx, j)
}
