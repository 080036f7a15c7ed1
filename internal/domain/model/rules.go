package model

import "strings"

// DefaultMicroLocBonusPct applies when rules leave the premium unset.
const DefaultMicroLocBonusPct = 2.0

// NormalizeRules is a versioned adjustment configuration referenced by id.
type NormalizeRules struct {
	ID                 string                `json:"id,omitempty" koanf:"id"`
	Version            int                   `json:"version,omitempty" koanf:"version"`
	SqmRule            SqmRule               `json:"sqmRule,omitempty" koanf:"sqm_rule"`
	StateFactors       map[Condition]float64 `json:"stateFactors,omitempty" koanf:"state_factors"`
	FloorBonus         float64               `json:"floorBonus,omitempty" koanf:"floor_bonus"`
	ElevatorFactor     float64               `json:"elevatorFactor,omitempty" koanf:"elevator_factor"`
	TerracePpsqm       float64               `json:"terracePpsqm,omitempty" koanf:"terrace_ppsqm"`
	ParkingValue       float64               `json:"parkingValue,omitempty" koanf:"parking_value"`
	AgeDepreciationPct float64               `json:"ageDepreciationPct,omitempty" koanf:"age_depreciation_pct"`
	MicroLocBonusM     float64               `json:"microLocBonusM,omitempty" koanf:"micro_loc_bonus_m"`
	MicroLocBonusPct   *float64              `json:"microLocBonusPct,omitempty" koanf:"micro_loc_bonus_pct"`
}

// MicroLocPct returns the configured premium or the default.
func (r NormalizeRules) MicroLocPct() float64 {
	if r.MicroLocBonusPct == nil {
		return DefaultMicroLocBonusPct
	}
	return *r.MicroLocBonusPct
}

// StateFactor looks up the factor of c. Keys are matched case-insensitively
// because configuration loaders may lowercase map keys.
func (r NormalizeRules) StateFactor(c Condition) (float64, bool) {
	if f, ok := r.StateFactors[c]; ok {
		return f, true
	}
	for k, f := range r.StateFactors {
		if strings.EqualFold(string(k), string(c)) {
			return f, true
		}
	}
	return 0, false
}

// Validate checks the rule invariants. An empty SqmRule or a zero
// ElevatorFactor is allowed and handled as a missing parameter downstream.
func (r NormalizeRules) Validate() error {
	var errs ValidationErrors
	switch r.SqmRule {
	case "", SqmLinear, SqmSqrt:
	default:
		errs = append(errs, NewValidationError("rules.sqmRule", "must be LINEAR or SQRT"))
	}
	for c, f := range r.StateFactors {
		if !Condition(strings.ToUpper(string(c))).Valid() {
			errs = append(errs, NewValidationError("rules.stateFactors", "unknown condition "+string(c)))
			continue
		}
		if f <= 0 {
			errs = append(errs, NewValidationError("rules.stateFactors."+string(c), "must be > 0"))
		}
	}
	if r.ElevatorFactor < 0 {
		errs = append(errs, NewValidationError("rules.elevatorFactor", "must be > 0"))
	}
	if r.TerracePpsqm < 0 {
		errs = append(errs, NewValidationError("rules.terracePpsqm", "must be >= 0"))
	}
	if r.ParkingValue < 0 {
		errs = append(errs, NewValidationError("rules.parkingValue", "must be >= 0"))
	}
	if r.AgeDepreciationPct < 0 || r.AgeDepreciationPct > 100 {
		errs = append(errs, NewValidationError("rules.ageDepreciationPct", "must be within [0, 100]"))
	}
	if r.MicroLocBonusM < 0 {
		errs = append(errs, NewValidationError("rules.microLocBonusM", "must be >= 0"))
	}
	if p := r.MicroLocBonusPct; p != nil && (*p < 0 || *p > 100) {
		errs = append(errs, NewValidationError("rules.microLocBonusPct", "must be within [0, 100]"))
	}
	return errs.errOrNil()
}

// ScoreParams selects and tunes the similarity scorer.
type ScoreParams struct {
	Method      Method              `json:"method" koanf:"method"`
	K           int                 `json:"k,omitempty" koanf:"k"`
	DistCapM    float64             `json:"distCapM,omitempty" koanf:"dist_cap_m"`
	Weights     map[Feature]float64 `json:"weights,omitempty" koanf:"weights"`
	Aggregation Aggregation         `json:"aggregation,omitempty" koanf:"aggregation"`
}

// Weight returns the configured weight of f, defaulting to 1.
func (p ScoreParams) Weight(f Feature) float64 {
	if w, ok := p.Weights[f]; ok {
		return w
	}
	return 1
}

// Validate checks the scoring invariants.
func (p ScoreParams) Validate() error {
	var errs ValidationErrors
	switch p.Method {
	case MethodCosine:
	case MethodKNN:
		if p.K < 3 {
			errs = append(errs, NewValidationError("params.k", "must be >= 3 for KNN"))
		}
		if p.DistCapM <= 0 {
			errs = append(errs, NewValidationError("params.distCapM", "must be > 0 for KNN"))
		}
	default:
		errs = append(errs, NewValidationError("params.method", "must be COSINE or KNN"))
	}
	if p.DistCapM < 0 {
		errs = append(errs, NewValidationError("params.distCapM", "must be > 0"))
	}
	for f, w := range p.Weights {
		if !f.Valid() {
			errs = append(errs, NewValidationError("params.weights", "unknown feature "+string(f)))
			continue
		}
		if w < 0 || w > 1 {
			errs = append(errs, NewValidationError("params.weights."+string(f), "must be within [0, 1]"))
		}
	}
	switch p.Aggregation {
	case "", AggregationMedian, AggregationMean:
	default:
		errs = append(errs, NewValidationError("params.aggregation", "must be MEDIAN or MEAN"))
	}
	return errs.errOrNil()
}
