package model

import "time"

// WarningCode classifies a non-fatal valuation finding.
type WarningCode string

const (
	WarnRecency                 WarningCode = "RECENCY"
	WarnInvalidComparable       WarningCode = "INVALID_COMPARABLE"
	WarnMissingRuleParameter    WarningCode = "MISSING_RULE_PARAMETER"
	WarnInsufficientComparables WarningCode = "INSUFFICIENT_COMPARABLES"
	WarnZeroMagnitude           WarningCode = "ZERO_MAGNITUDE"
)

// Warning is a non-fatal finding attached to a valuation.
type Warning struct {
	Code    WarningCode `json:"code"`
	CompID  string      `json:"compId,omitempty"`
	Message string      `json:"message"`
}

// Adjustment is one normalization step. Exactly one of Factor or Delta is set.
type Adjustment struct {
	Step   string   `json:"step"`
	Factor *float64 `json:"factor,omitempty"`
	Delta  *float64 `json:"delta,omitempty"`
	Before float64  `json:"before"`
	After  float64  `json:"after"`
}

// Band is the confidence interval around the estimate.
type Band struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// ScoredComparable is a candidate after normalization and scoring.
type ScoredComparable struct {
	Comparable      Comparable   `json:"comparable"`
	NormalizedPrice float64      `json:"normalizedPrice"`
	Weight          float64      `json:"weight"`
	DistanceM       *float64     `json:"distanceM,omitempty"`
	Breakdown       []Adjustment `json:"breakdown"`
}

// ValuationResult is derived per run and never stored by the core.
type ValuationResult struct {
	PointEstimate float64            `json:"pointEstimate"`
	Band          Band               `json:"band"`
	Method        Method             `json:"method"`
	Aggregation   Aggregation        `json:"aggregation"`
	Comparables   []ScoredComparable `json:"comparables"`
	Warnings      []Warning          `json:"warnings"`
	LowConfidence bool               `json:"lowConfidence"`
	StaleExcluded int                `json:"staleExcluded"`
	ComputedAt    time.Time          `json:"computedAt"`
}
