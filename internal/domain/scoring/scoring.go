// Package scoring assigns each normalized candidate a relevance weight in
// (0, 1]. COSINE and KNN form a closed set dispatched by ForMethod.
package scoring

import (
	"context"
	"fmt"

	"github.com/okian/comparo/internal/domain/model"
)

// DefaultCosineDistCapM scales the distance feature when no cap is given.
const DefaultCosineDistCapM = 5000.0

// Candidate is one comparable entering the scorer.
type Candidate struct {
	Comparable model.Comparable
	// DistanceM from the subject; nil when the subject has no coordinates.
	DistanceM *float64
}

// Weighted is a kept candidate and its weight. Index points into the input slice.
type Weighted struct {
	Index  int
	ID     string
	Weight float64
}

// Result of a scoring pass.
type Result struct {
	Weights  []Weighted
	Warnings []model.Warning
}

// Scorer computes weights for candidates against a subject.
type Scorer interface {
	Score(ctx context.Context, subject model.SubjectRef, cands []Candidate, params model.ScoreParams) (Result, error)
}

// ForMethod returns the scorer implementing m.
func ForMethod(m model.Method) (Scorer, error) {
	switch m {
	case model.MethodCosine:
		return Cosine{}, nil
	case model.MethodKNN:
		return KNN{}, nil
	default:
		return nil, fmt.Errorf("scoring: %w", model.NewValidationError("params.method", "must be COSINE or KNN"))
	}
}

// featureValue extracts f for the comparable. Unknown attributes take the
// subject's value so they neither help nor hurt similarity.
func featureValue(f model.Feature, s model.SubjectRef, c Candidate, distScale float64) float64 {
	comp := c.Comparable
	switch f {
	case model.FeatureSqm:
		return comp.Sqm
	case model.FeatureRooms:
		return intOr(comp.Rooms, s.Rooms)
	case model.FeatureBaths:
		return intOr(comp.Baths, s.Baths)
	case model.FeatureFloor:
		return intOr(comp.Floor, s.Floor)
	case model.FeatureAge:
		if comp.BuildingAgeYears != nil {
			return *comp.BuildingAgeYears
		}
		return subjectValue(f, s)
	case model.FeatureTerrace:
		if comp.TerraceSqm != nil {
			return *comp.TerraceSqm
		}
		return 0
	case model.FeatureDistance:
		if c.DistanceM == nil {
			return 0
		}
		return *c.DistanceM / distScale
	}
	return 0
}

// subjectValue extracts f for the subject. Terrace and distance are zero by
// construction.
func subjectValue(f model.Feature, s model.SubjectRef) float64 {
	switch f {
	case model.FeatureSqm:
		return s.Sqm
	case model.FeatureRooms:
		return float64(s.Rooms)
	case model.FeatureBaths:
		return float64(s.Baths)
	case model.FeatureFloor:
		return float64(s.Floor)
	case model.FeatureAge:
		if s.BuildingAgeYears != nil {
			return *s.BuildingAgeYears
		}
	}
	return 0
}

func intOr(v *int, def int) float64 {
	if v == nil {
		return float64(def)
	}
	return float64(*v)
}
