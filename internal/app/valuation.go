package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/okian/comparo/internal/domain/aggregate"
	"github.com/okian/comparo/internal/domain/geo"
	"github.com/okian/comparo/internal/domain/model"
	"github.com/okian/comparo/internal/domain/normalize"
	"github.com/okian/comparo/internal/domain/recency"
	"github.com/okian/comparo/internal/domain/scoring"
	"github.com/okian/comparo/internal/domain/types"
	"github.com/okian/comparo/pkg/logger"
	"github.com/okian/comparo/pkg/metrics"
)

// Valuation outcomes reported to metrics.
const (
	outcomeOK            = "ok"
	outcomeInvalid       = "invalid"
	outcomeNoComparables = "no_comparables"
	outcomeCanceled      = "canceled"
	outcomeError         = "error"
)

// Valuate resolves the subject, rule set and params of req and runs
// ScoreComparables.
func (s *Service) Valuate(ctx context.Context, req model.ValuationRequest) (model.ValuationResult, error) {
	const op = "service.Valuate"
	if err := s.running(); err != nil {
		return model.ValuationResult{}, fmt.Errorf("%s: %w", op, err)
	}

	var subj model.SubjectRef
	switch {
	case req.Subject != nil:
		subj = *req.Subject
	case strings.TrimSpace(req.PropertyID) != "":
		resolved, err := s.ResolveSubject(ctx, req.PropertyID)
		if err != nil {
			return model.ValuationResult{}, fmt.Errorf("%s: %w", op, err)
		}
		subj = resolved
	default:
		return model.ValuationResult{}, fmt.Errorf("%s: %w", op, model.NewValidationError("subject", "subject or propertyId is required"))
	}

	rules, err := s.rulesFor(req)
	if err != nil {
		return model.ValuationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	params := s.cfg.DefaultScore
	if req.Params != nil {
		params = *req.Params
	}
	return s.score(ctx, subj, req.Filters, rules, params, req.WarnMonths)
}

func (s *Service) rulesFor(req model.ValuationRequest) (model.NormalizeRules, error) {
	if req.Rules != nil {
		return *req.Rules, nil
	}
	rules, ok := s.cfg.RulesByID(req.RulesID)
	if !ok {
		return model.NormalizeRules{}, model.NewValidationError("rulesId", "unknown rule set "+req.RulesID)
	}
	return rules, nil
}

// ResolveSubject looks up a subject by property id.
func (s *Service) ResolveSubject(ctx context.Context, propertyID string) (model.SubjectRef, error) {
	if err := s.running(); err != nil {
		return model.SubjectRef{}, err
	}
	return s.resolver.ResolveSubject(ctx, strings.TrimSpace(propertyID))
}

// ScoreComparables values subject from the comparables matching filters:
// candidates are screened for recency, normalized with rules, weighted by
// params.Method and aggregated. Only invalid input and an empty pool abort
// the run; everything else is reported as a warning.
func (s *Service) ScoreComparables(ctx context.Context, subj model.SubjectRef, filters model.SearchFilters, rules model.NormalizeRules, params model.ScoreParams) (model.ValuationResult, error) {
	if err := s.running(); err != nil {
		return model.ValuationResult{}, fmt.Errorf("service.ScoreComparables: %w", err)
	}
	return s.score(ctx, subj, filters, rules, params, 0)
}

func (s *Service) score(ctx context.Context, subj model.SubjectRef, filters model.SearchFilters, rules model.NormalizeRules, params model.ScoreParams, warnMonths int) (res model.ValuationResult, err error) {
	const op = "service.ScoreComparables"
	start := time.Now()
	defer func() {
		metrics.RecordValuation(string(params.Method), valuationOutcome(err))
		metrics.RecordValuationLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if err := validateRun(subj, rules, params); err != nil {
		return model.ValuationResult{}, fmt.Errorf("%s: %w", op, err)
	}

	cands, err := s.collect(ctx, filters, &subj)
	if err != nil {
		return model.ValuationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	metrics.RecordCandidates(len(cands))

	screened := s.checker.Screen(cands, warnMonths)
	metrics.RecordStaleExcluded(screened.StaleExcluded)
	warnings := screened.Warnings
	if len(screened.Kept) == 0 {
		return model.ValuationResult{}, fmt.Errorf("%s: %d candidates, %d stale: %w",
			op, len(cands), screened.StaleExcluded, model.ErrNoComparablesFound)
	}

	normalized, nw, err := normalize.New(rules).NormalizeAll(ctx, subj, screened.Kept)
	if err != nil {
		return model.ValuationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	warnings = append(warnings, nw...)

	scorer, err := scoring.ForMethod(params.Method)
	if err != nil {
		return model.ValuationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	scored, err := scorer.Score(ctx, subj, toCandidates(subj, normalized), params)
	if err != nil {
		return model.ValuationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	warnings = append(warnings, scored.Warnings...)

	weights := make(map[int]float64, len(scored.Weights))
	items := make([]aggregate.Item, 0, len(scored.Weights))
	for _, w := range scored.Weights {
		weights[w.Index] = w.Weight
		items = append(items, aggregate.Item{ID: w.ID, Price: normalized[w.Index].Price, Weight: w.Weight})
	}

	summary, err := aggregate.Aggregate(items, params.Aggregation)
	if err != nil {
		return model.ValuationResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if summary.LowConfidence && !lo.ContainsBy(warnings, func(w model.Warning) bool {
		return w.Code == model.WarnInsufficientComparables
	}) {
		warnings = append(warnings, model.Warning{
			Code:    model.WarnInsufficientComparables,
			Message: fmt.Sprintf("%d weighted comparables; at least %d expected", len(items), aggregate.LowConfidenceBelow),
		})
	}
	for _, w := range warnings {
		metrics.RecordWarning(string(w.Code))
	}

	res = model.ValuationResult{
		PointEstimate: summary.Estimate,
		Band:          summary.Band,
		Method:        params.Method,
		Aggregation:   lo.Ternary(params.Aggregation == "", model.AggregationMedian, params.Aggregation),
		Comparables:   report(subj, normalized, weights),
		Warnings:      lo.Ternary(warnings == nil, []model.Warning{}, warnings),
		LowConfidence: summary.LowConfidence,
		StaleExcluded: screened.StaleExcluded,
		ComputedAt:    s.now().UTC(),
	}
	s.logger.Debug(ctx, "valuation computed",
		logger.String("method", string(params.Method)),
		logger.Int("candidates", len(cands)),
		logger.Int("weighted", len(items)),
		logger.Float64("estimate", res.PointEstimate),
		logger.Int("warnings", len(res.Warnings)),
	)
	return res, nil
}

func validateRun(subj model.SubjectRef, rules model.NormalizeRules, params model.ScoreParams) error {
	var errs model.ValidationErrors
	for _, err := range []error{subj.Validate(), rules.Validate(), params.Validate()} {
		var many model.ValidationErrors
		var one *model.ValidationError
		switch {
		case errors.As(err, &many):
			errs = append(errs, many...)
		case errors.As(err, &one):
			errs = append(errs, one)
		}
	}
	if _, ok := subj.Point(); !ok && params.Method == model.MethodKNN {
		errs = append(errs, model.NewValidationError("subject.lat", "coordinates are required for KNN"))
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// collect reads every candidate from one store snapshot.
func (s *Service) collect(ctx context.Context, filters model.SearchFilters, subj *model.SubjectRef) ([]model.Comparable, error) {
	return s.store.SelectComparables(ctx, filters, subj)
}

func toCandidates(subj model.SubjectRef, normalized []normalize.Normalized) []scoring.Candidate {
	origin, hasPoint := subj.Point()
	out := make([]scoring.Candidate, len(normalized))
	for i, n := range normalized {
		out[i] = scoring.Candidate{Comparable: n.Comparable}
		if hasPoint {
			out[i].DistanceM = lo.ToPtr(geo.HaversineM(origin, n.Comparable.Point()))
		}
	}
	return out
}

// report lists every normalized comparable, heaviest first. Comparables the
// scorer left out are kept with weight 0.
func report(subj model.SubjectRef, normalized []normalize.Normalized, weights map[int]float64) []model.ScoredComparable {
	origin, hasPoint := subj.Point()
	out := make([]model.ScoredComparable, len(normalized))
	for i, n := range normalized {
		out[i] = model.ScoredComparable{
			Comparable:      n.Comparable,
			NormalizedPrice: n.Price,
			Weight:          weights[i],
			Breakdown:       n.Breakdown,
		}
		if hasPoint {
			out[i].DistanceM = lo.ToPtr(geo.HaversineM(origin, n.Comparable.Point()))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Comparable.ID < out[j].Comparable.ID
	})
	return out
}

func valuationOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, model.ErrValidation):
		return outcomeInvalid
	case errors.Is(err, model.ErrNoComparablesFound):
		return outcomeNoComparables
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeCanceled
	default:
		return outcomeError
	}
}

// ValidateCompRecency reports whether a comparable dated date is usable.
// warnMonths <= 0 uses the configured threshold.
func (s *Service) ValidateCompRecency(date time.Time, warnMonths int) recency.Result {
	s.mu.RLock()
	checker := s.checker
	s.mu.RUnlock()
	if checker == nil {
		checker = recency.New(recency.WithClock(s.now), recency.WithWarnMonths(s.cfg.WarnMonths))
	}
	return checker.Validate(date, warnMonths)
}

// QueryComparables returns one page of comparables matching filters.
func (s *Service) QueryComparables(ctx context.Context, filters model.SearchFilters, subj *model.SubjectRef) (types.Page[model.Comparable], error) {
	if err := s.running(); err != nil {
		return types.Page[model.Comparable]{}, err
	}
	return s.store.QueryComparables(ctx, filters, subj)
}

// GetComparable returns a stored comparable version by id.
func (s *Service) GetComparable(ctx context.Context, id string) (model.Comparable, error) {
	if err := s.running(); err != nil {
		return model.Comparable{}, err
	}
	return s.store.GetComparable(ctx, id)
}
