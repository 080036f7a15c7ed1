package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/okian/comparo/internal/domain/model"
)

// MinUsable is the fewest neighbours KNN considers a sound pool.
const MinUsable = 3

// KNN keeps the k candidates nearest to the subject in z-scored feature
// space, among those within the distance cap. Weight decays linearly by rank.
type KNN struct{}

type neighbour struct {
	index int
	id    string
	dist  float64
}

// Score implements Scorer.
func (KNN) Score(ctx context.Context, s model.SubjectRef, cands []Candidate, p model.ScoreParams) (Result, error) {
	if p.K < MinUsable {
		return Result{}, fmt.Errorf("knn: %w", model.NewValidationError("params.k", "must be >= 3 for KNN"))
	}
	if p.DistCapM <= 0 {
		return Result{}, fmt.Errorf("knn: %w", model.NewValidationError("params.distCapM", "must be > 0 for KNN"))
	}

	survivors := make([]int, 0, len(cands))
	for i, c := range cands {
		if c.DistanceM == nil {
			return Result{}, fmt.Errorf("knn: %w", model.NewValidationError("subject.lat", "coordinates are required for KNN"))
		}
		if *c.DistanceM <= p.DistCapM {
			survivors = append(survivors, i)
		}
	}

	var res Result
	if len(survivors) < MinUsable {
		res.Warnings = append(res.Warnings, model.Warning{
			Code:    model.WarnInsufficientComparables,
			Message: fmt.Sprintf("%d comparables within %.0fm; at least %d expected", len(survivors), p.DistCapM, MinUsable),
		})
	}
	if len(survivors) == 0 {
		return res, nil
	}

	// rows[0] is the subject, rows[1:] the survivors
	nf := len(model.Features)
	rows := make([][]float64, len(survivors)+1)
	rows[0] = make([]float64, nf)
	for j, f := range model.Features {
		rows[0][j] = subjectValue(f, s)
	}
	for i, idx := range survivors {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		rows[i+1] = make([]float64, nf)
		for j, f := range model.Features {
			rows[i+1][j] = featureValue(f, s, cands[idx], 1)
		}
	}
	zscore(rows)
	for j, f := range model.Features {
		w := p.Weight(f)
		for i := range rows {
			rows[i][j] *= w
		}
	}

	ns := make([]neighbour, len(survivors))
	for i, idx := range survivors {
		ns[i] = neighbour{index: idx, id: cands[idx].Comparable.ID, dist: euclidean(rows[0], rows[i+1])}
	}
	sort.Slice(ns, func(a, b int) bool {
		if ns[a].dist != ns[b].dist {
			return ns[a].dist < ns[b].dist
		}
		return ns[a].id < ns[b].id
	})

	keep := min(p.K, len(ns))
	res.Weights = make([]Weighted, keep)
	for rank := 0; rank < keep; rank++ {
		res.Weights[rank] = Weighted{
			Index:  ns[rank].index,
			ID:     ns[rank].id,
			Weight: float64(p.K-rank) / float64(p.K),
		}
	}
	return res, nil
}

// zscore standardizes each column in place. Constant columns become zero.
func zscore(rows [][]float64) {
	n := float64(len(rows))
	for j := range rows[0] {
		var mean float64
		for i := range rows {
			mean += rows[i][j]
		}
		mean /= n
		var variance float64
		for i := range rows {
			d := rows[i][j] - mean
			variance += d * d
		}
		std := math.Sqrt(variance / n)
		for i := range rows {
			if std == 0 {
				rows[i][j] = 0
				continue
			}
			rows[i][j] = (rows[i][j] - mean) / std
		}
	}
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
