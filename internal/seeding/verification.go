package seeding

import (
	"errors"
	"fmt"

	"github.com/okian/comparo/internal/domain/aggregate"
	"github.com/okian/comparo/internal/domain/model"
)

// ErrVerification is wrapped by every failed check.
var ErrVerification = errors.New("verification failed")

// Verify checks the invariants a valuation must hold for the params it ran
// with.
func Verify(res model.ValuationResult, params model.ScoreParams) error {
	if res.PointEstimate <= 0 {
		return fmt.Errorf("%w: estimate %.2f is not positive", ErrVerification, res.PointEstimate)
	}
	if res.Band.Low > res.PointEstimate || res.PointEstimate > res.Band.High {
		return fmt.Errorf("%w: estimate %.2f outside band [%.2f, %.2f]",
			ErrVerification, res.PointEstimate, res.Band.Low, res.Band.High)
	}
	if res.Method != params.Method {
		return fmt.Errorf("%w: method %s, want %s", ErrVerification, res.Method, params.Method)
	}

	weighted := 0
	for i, c := range res.Comparables {
		if i > 0 && c.Weight > res.Comparables[i-1].Weight {
			return fmt.Errorf("%w: comparables not sorted by weight at %d", ErrVerification, i)
		}
		if c.Weight <= 0 {
			continue
		}
		weighted++
		if c.Weight > 1 {
			return fmt.Errorf("%w: %s weight %.4f above 1", ErrVerification, c.Comparable.ID, c.Weight)
		}
		if params.Method == model.MethodKNN && c.DistanceM != nil && *c.DistanceM > params.DistCapM {
			return fmt.Errorf("%w: %s at %.0fm beyond cap %.0fm", ErrVerification, c.Comparable.ID, *c.DistanceM, params.DistCapM)
		}
	}
	if weighted == 0 {
		return fmt.Errorf("%w: no comparable carries weight", ErrVerification)
	}
	if params.Method == model.MethodKNN && weighted > params.K {
		return fmt.Errorf("%w: %d weighted neighbours, k is %d", ErrVerification, weighted, params.K)
	}
	if res.LowConfidence != (weighted < aggregate.LowConfidenceBelow) {
		return fmt.Errorf("%w: lowConfidence %t with %d weighted", ErrVerification, res.LowConfidence, weighted)
	}
	return nil
}
