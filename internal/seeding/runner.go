package seeding

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"

	"github.com/okian/comparo/internal/domain/model"
	"github.com/okian/comparo/pkg/logger"
)

const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// Run seeds the service with synthetic comparables, values a subject at the
// center and verifies the result.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	log := logger.Get().Named("seed")
	stats := &Stats{StartTime: time.Now()}
	client := NewClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting comparo seeding run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("comps", cfg.NumComps),
		logger.Int("workers", cfg.Workers),
		logger.Int("batchSize", cfg.BatchSize),
		logger.Float64("radiusKm", cfg.RadiusKm),
		logger.Int("k", cfg.K))

	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	before, err := client.TotalComparables(ctx)
	if err != nil {
		return stats, fmt.Errorf("read stats: %w", err)
	}

	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}
	gen := NewGenerator(cfg, now())
	records := gen.Generate(cfg.NumComps)
	stats.Generated = len(records)

	if cfg.BatchSize > 0 {
		err = submitBatches(ctx, client, cfg, records, stats)
	} else {
		err = submitEach(ctx, client, cfg, records, stats)
	}
	if err != nil {
		return stats, fmt.Errorf("submission failed: %w", err)
	}

	if err := waitForImports(ctx, client, before+stats.Imported, cfg.Settle); err != nil {
		log.Warn(ctx, "not every queued record landed", logger.Error(err))
	}

	req := valuationRequest(cfg, gen.Subject())
	res, err := client.Valuate(ctx, req)
	if err != nil {
		return stats, fmt.Errorf("valuation failed: %w", err)
	}
	if err := Verify(res, *req.Params); err != nil {
		return stats, fmt.Errorf("result verification failed: %w", err)
	}
	stats.Weighted = lo.CountBy(res.Comparables, func(c model.ScoredComparable) bool { return c.Weight > 0 })

	log.Info(ctx, "valuation verified",
		logger.Float64("estimate", res.PointEstimate),
		logger.Float64("low", res.Band.Low),
		logger.Float64("high", res.Band.High),
		logger.Int("weighted", stats.Weighted),
		logger.Int("warnings", len(res.Warnings)),
		logger.Bool("lowConfidence", res.LowConfidence))

	if cfg.OutputFile != "" {
		if err := saveRecords(cfg.OutputFile, records); err != nil {
			log.Warn(ctx, "failed to save records", logger.Error(err))
		} else {
			log.Info(ctx, "records saved", logger.String("file", cfg.OutputFile))
		}
	}

	stats.Duration = time.Since(stats.StartTime)
	logStats(ctx, log, stats)
	return stats, nil
}

func valuationRequest(cfg *Config, subj model.SubjectRef) model.ValuationRequest {
	center := model.GeoPoint{Lat: cfg.CenterLat, Lng: cfg.CenterLng}
	return model.ValuationRequest{
		Subject: &subj,
		Filters: model.SearchFilters{Center: &center, RadiusKm: cfg.RadiusKm},
		Params: &model.ScoreParams{
			Method:      model.MethodKNN,
			K:           cfg.K,
			DistCapM:    cfg.RadiusKm * 1000,
			Aggregation: model.AggregationMedian,
		},
	}
}

// submitEach imports records one by one from a pool of workers.
func submitEach(ctx context.Context, client *Client, cfg *Config, records []model.ComparableRecord, stats *Stats) error {
	var counts [resultFailed + 1]atomic.Int64
	work := make(chan model.ComparableRecord, cfg.Workers*2)
	var wg sync.WaitGroup

	for range cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range work {
				counts[client.importOne(ctx, rec)].Add(1)
			}
		}()
	}

	go func() {
		defer close(work)
		for _, rec := range records {
			select {
			case <-ctx.Done():
				return
			case work <- rec:
			}
		}
	}()
	wg.Wait()

	stats.Imported = int(counts[resultImported].Load())
	stats.Duplicate = int(counts[resultDuplicate].Load())
	stats.Rejected = int(counts[resultRejected].Load())
	stats.Failed = int(counts[resultFailed].Load())
	stats.Submitted = stats.Imported + stats.Duplicate + stats.Rejected + stats.Failed
	return ctx.Err()
}

// submitBatches posts chunks to the batch endpoint, resending the refused
// tail of a chunk after backpressure.
func submitBatches(ctx context.Context, client *Client, cfg *Config, records []model.ComparableRecord, stats *Stats) error {
	for _, chunk := range lo.Chunk(records, cfg.BatchSize) {
		pending := chunk
		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt >= maxBatchRetries {
				stats.Failed += len(pending)
				break
			}
			receipt, full, err := client.Batch(ctx, pending)
			if err != nil {
				return err
			}
			stats.Submitted += receipt.Accepted
			stats.Imported += receipt.Accepted
			pending = pending[receipt.Accepted:]
			if !full {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backpressureWait):
			}
		}
	}
	return nil
}

// waitForImports polls /stats until want comparables are stored or settle
// elapses. Duplicates inside a batch are dropped by the workers, so the
// target may never be reached exactly.
func waitForImports(ctx context.Context, client *Client, want int, settle time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, settle)
	defer cancel()

	ticker := time.NewTicker(statsPollInterval)
	defer ticker.Stop()
	for {
		got, err := client.TotalComparables(ctx)
		if err == nil && got >= want {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("stored %d of %d: %w", got, want, ctx.Err())
		case <-ticker.C:
		}
	}
}

func saveRecords(filename string, records []model.ComparableRecord) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}
	return os.WriteFile(filename, data, filePermission)
}

func logStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("imported", stats.Imported),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed),
		logger.Int("weighted", stats.Weighted),
		logger.Duration("duration", stats.Duration),
		logger.Float64("recordsPerSecond", perSecond))
}
