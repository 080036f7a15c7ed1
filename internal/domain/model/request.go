package model

// ValuationRequest is a valuation as submitted by a client. Subject and
// PropertyID are alternatives; Rules overrides RulesID; nil Params use the
// configured defaults. WarnMonths <= 0 uses the configured threshold.
type ValuationRequest struct {
	PropertyID string          `json:"propertyId,omitempty"`
	Subject    *SubjectRef     `json:"subject,omitempty"`
	Filters    SearchFilters   `json:"filters"`
	RulesID    string          `json:"rulesId,omitempty"`
	Rules      *NormalizeRules `json:"rules,omitempty"`
	Params     *ScoreParams    `json:"params,omitempty"`
	WarnMonths int             `json:"warnMonths,omitempty"`
}
