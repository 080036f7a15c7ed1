// Package normalize adjusts comparable prices to what they would fetch with
// the subject's characteristics.
package normalize

import (
	"context"
	"fmt"
	"math"

	"github.com/samber/lo"

	"github.com/okian/comparo/internal/domain/geo"
	"github.com/okian/comparo/internal/domain/model"
)

// Step names, in application order.
const (
	StepSize      = "size"
	StepCondition = "condition"
	StepFloor     = "floor"
	StepElevator  = "elevator"
	StepTerrace   = "terrace"
	StepParking   = "parking"
	StepAge       = "age"
	StepMicroLoc  = "microLocation"
)

// Normalized is the adjusted price of one comparable with its audit trail.
type Normalized struct {
	Comparable model.Comparable
	Price      float64
	Breakdown  []model.Adjustment
}

// Normalizer applies one rule set.
type Normalizer struct {
	rules model.NormalizeRules
}

// New returns a Normalizer for rules. Rules are expected to be validated.
func New(rules model.NormalizeRules) *Normalizer {
	return &Normalizer{rules: rules}
}

// run accumulates the running price and the breakdown.
type run struct {
	price     float64
	breakdown []model.Adjustment
	warnings  []model.Warning
	compID    string
}

func (r *run) factor(step string, f float64) {
	before := r.price
	r.price *= f
	r.breakdown = append(r.breakdown, model.Adjustment{Step: step, Factor: lo.ToPtr(f), Before: before, After: r.price})
}

func (r *run) delta(step string, d float64) {
	before := r.price
	r.price += d
	r.breakdown = append(r.breakdown, model.Adjustment{Step: step, Delta: lo.ToPtr(d), Before: before, After: r.price})
}

func (r *run) missing(global bool, format string, args ...any) {
	w := model.Warning{Code: model.WarnMissingRuleParameter, Message: fmt.Sprintf(format, args...)}
	if !global {
		w.CompID = r.compID
	}
	r.warnings = append(r.warnings, w)
}

// Normalize adjusts one comparable. Missing rule parameters degrade to a
// neutral adjustment and a warning. Comparable attributes that are unknown
// are treated as equal to the subject.
func (n *Normalizer) Normalize(subject model.SubjectRef, c model.Comparable) (Normalized, []model.Warning) {
	r := &run{price: c.Price, compID: c.ID, breakdown: make([]model.Adjustment, 0, 8)}

	n.size(r, subject, c)
	n.condition(r, subject, c)

	floorDelta := 0.0
	if c.Floor != nil {
		floorDelta = n.rules.FloorBonus * float64(subject.Floor-*c.Floor)
	}
	r.delta(StepFloor, floorDelta)

	n.elevator(r, subject, c)

	terraceDelta := 0.0
	if c.TerraceSqm != nil {
		terraceDelta = -n.rules.TerracePpsqm * *c.TerraceSqm
	}
	r.delta(StepTerrace, terraceDelta)

	// the subject is taken as having no parking space
	parkingDelta := 0.0
	if c.Parking != nil && *c.Parking {
		parkingDelta = -n.rules.ParkingValue
	}
	r.delta(StepParking, parkingDelta)

	n.age(r, subject, c)
	n.microLocation(r, subject, c)

	return Normalized{Comparable: c, Price: r.price, Breakdown: r.breakdown}, r.warnings
}

func (n *Normalizer) size(r *run, s model.SubjectRef, c model.Comparable) {
	ratio := s.Sqm / c.Sqm
	switch n.rules.SqmRule {
	case model.SqmLinear:
		r.factor(StepSize, ratio)
	case model.SqmSqrt:
		r.factor(StepSize, math.Sqrt(ratio))
	default:
		r.missing(true, "sqmRule is not set; size adjustment skipped")
		r.factor(StepSize, 1)
	}
}

func (n *Normalizer) condition(r *run, s model.SubjectRef, c model.Comparable) {
	if c.Condition == nil || s.Condition == "" || *c.Condition == s.Condition {
		r.factor(StepCondition, 1)
		return
	}
	lookup := func(cond model.Condition) float64 {
		f, ok := n.rules.StateFactor(cond)
		if !ok {
			r.missing(false, "no state factor for condition %s; using 1", cond)
			return 1
		}
		return f
	}
	subjectF := lookup(s.Condition)
	compF := lookup(*c.Condition)
	r.factor(StepCondition, subjectF/compF)
}

func (n *Normalizer) elevator(r *run, s model.SubjectRef, c model.Comparable) {
	if c.Elevator == nil || *c.Elevator == s.Elevator {
		r.factor(StepElevator, 1)
		return
	}
	ef := n.rules.ElevatorFactor
	if ef <= 0 {
		r.missing(false, "elevatorFactor is not set; elevator adjustment skipped")
		r.factor(StepElevator, 1)
		return
	}
	if s.Elevator {
		r.factor(StepElevator, ef)
	} else {
		r.factor(StepElevator, 1/ef)
	}
}

// age depreciates by the building age gap: a comparable newer than the
// subject loses value, an older one gains.
func (n *Normalizer) age(r *run, s model.SubjectRef, c model.Comparable) {
	if s.BuildingAgeYears == nil || c.BuildingAgeYears == nil || n.rules.AgeDepreciationPct == 0 {
		r.factor(StepAge, 1)
		return
	}
	gap := *s.BuildingAgeYears - *c.BuildingAgeYears
	base := 1 - n.rules.AgeDepreciationPct/100
	if base <= 0 && gap < 0 {
		r.missing(false, "ageDepreciationPct of 100 cannot value an older comparable; age adjustment skipped")
		r.factor(StepAge, 1)
		return
	}
	if gap == 0 {
		r.factor(StepAge, 1)
		return
	}
	r.factor(StepAge, math.Pow(base, gap))
}

func (n *Normalizer) microLocation(r *run, s model.SubjectRef, c model.Comparable) {
	radius := n.rules.MicroLocBonusM
	if radius <= 0 || len(s.POIs) == 0 {
		r.factor(StepMicroLoc, 1)
		return
	}
	near := lo.ContainsBy(s.POIs, func(p model.GeoPoint) bool {
		return geo.HaversineM(p, c.Point()) <= radius
	})
	if !near {
		r.factor(StepMicroLoc, 1)
		return
	}
	r.factor(StepMicroLoc, 1+n.rules.MicroLocPct()/100)
}

// NormalizeAll adjusts every comparable, checking ctx between candidates.
// Rule level warnings are reported once.
func (n *Normalizer) NormalizeAll(ctx context.Context, subject model.SubjectRef, comps []model.Comparable) ([]Normalized, []model.Warning, error) {
	out := make([]Normalized, 0, len(comps))
	var warnings []model.Warning
	for _, c := range comps {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		norm, w := n.Normalize(subject, c)
		out = append(out, norm)
		warnings = append(warnings, w...)
	}
	warnings = lo.UniqBy(warnings, func(w model.Warning) string {
		return string(w.Code) + "|" + w.CompID + "|" + w.Message
	})
	return out, warnings, nil
}
