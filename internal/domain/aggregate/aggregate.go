// Package aggregate collapses weighted normalized prices into a point
// estimate and a confidence band.
package aggregate

import (
	"fmt"
	"math"
	"sort"

	"github.com/okian/comparo/internal/domain/model"
)

// LowConfidenceBelow flags pools smaller than this.
const LowConfidenceBelow = 3

// Item is one weighted normalized price.
type Item struct {
	ID     string
	Price  float64
	Weight float64
}

// Summary is the aggregate of a pool.
type Summary struct {
	Estimate      float64
	Band          model.Band
	LowConfidence bool
}

// Aggregate computes the estimate with method and the weighted interquartile
// band. Nothing is dropped; items with non-positive weight do not count.
// The band is widened to include the estimate, which a weighted mean can
// fall outside of.
func Aggregate(items []Item, method model.Aggregation) (Summary, error) {
	pool := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Weight > 0 {
			pool = append(pool, it)
		}
	}
	if len(pool) == 0 {
		return Summary{}, fmt.Errorf("aggregate: %w", model.ErrNoComparablesFound)
	}
	sort.Slice(pool, func(i, j int) bool {
		if pool[i].Price != pool[j].Price {
			return pool[i].Price < pool[j].Price
		}
		return pool[i].ID < pool[j].ID
	})

	var est float64
	switch method {
	case model.AggregationMean:
		est = WeightedMean(pool)
	case "", model.AggregationMedian:
		est = quantile(pool, 0.5)
	default:
		return Summary{}, fmt.Errorf("aggregate: %w", model.NewValidationError("params.aggregation", "must be MEDIAN or MEAN"))
	}

	band := model.Band{Low: quantile(pool, 0.25), High: quantile(pool, 0.75)}
	band.Low = math.Min(band.Low, est)
	band.High = math.Max(band.High, est)

	return Summary{
		Estimate:      est,
		Band:          band,
		LowConfidence: len(pool) < LowConfidenceBelow,
	}, nil
}

// WeightedMean returns Σ w·p / Σ w.
func WeightedMean(items []Item) float64 {
	var num, den float64
	for _, it := range items {
		num += it.Weight * it.Price
		den += it.Weight
	}
	return num / den
}

// WeightedMedian returns the weighted median of items.
func WeightedMedian(items []Item) float64 {
	sorted := append([]Item(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Price < sorted[j].Price })
	return quantile(sorted, 0.5)
}

// quantile walks the price-sorted pool until the cumulative weight reaches
// q of the total. Landing exactly on the target averages with the next item.
func quantile(sorted []Item, q float64) float64 {
	var total float64
	for _, it := range sorted {
		total += it.Weight
	}
	target := q * total
	eps := 1e-12 * total

	var cum float64
	for i, it := range sorted {
		cum += it.Weight
		if cum < target-eps {
			continue
		}
		if math.Abs(cum-target) <= eps && i+1 < len(sorted) {
			return (it.Price + sorted[i+1].Price) / 2
		}
		return it.Price
	}
	return sorted[len(sorted)-1].Price
}
