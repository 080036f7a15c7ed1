package scoring

import (
	"context"
	"math"

	"github.com/okian/comparo/internal/domain/model"
)

// Cosine weighs candidates by the cosine of the angle between weighted
// feature vectors. Candidates with a zero vector or non-positive similarity
// are excluded.
type Cosine struct{}

// CosineSimilarity returns a·b / (|a||b|) and false when either is zero.
func CosineSimilarity(a, b []float64) (float64, bool) {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Min(1, sim), true
}

// Score implements Scorer.
func (Cosine) Score(ctx context.Context, s model.SubjectRef, cands []Candidate, p model.ScoreParams) (Result, error) {
	scale := p.DistCapM
	if scale <= 0 {
		scale = DefaultCosineDistCapM
	}

	sv := make([]float64, len(model.Features))
	for i, f := range model.Features {
		sv[i] = p.Weight(f) * subjectValue(f, s)
	}

	var res Result
	cv := make([]float64, len(model.Features))
	for idx, c := range cands {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		for i, f := range model.Features {
			cv[i] = p.Weight(f) * featureValue(f, s, c, scale)
		}
		sim, ok := CosineSimilarity(sv, cv)
		if !ok {
			res.Warnings = append(res.Warnings, model.Warning{
				Code:    model.WarnZeroMagnitude,
				CompID:  c.Comparable.ID,
				Message: "feature vector has zero magnitude; excluded",
			})
			continue
		}
		if sim <= 0 {
			continue
		}
		res.Weights = append(res.Weights, Weighted{Index: idx, ID: c.Comparable.ID, Weight: sim})
	}
	return res, nil
}
