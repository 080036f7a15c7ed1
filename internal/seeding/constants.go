package seeding

import "time"

// Generation ranges.
const (
	metersPerDegree = 111_320.0
	maxAgeDays      = 540
	sqmMin          = 45.0
	sqmRange        = 110.0
	ppsqmMin        = 3_200.0
	ppsqmRange      = 2_400.0
	maxFloor        = 12
)

// Runner configuration constants.
const (
	statsPollInterval = 250 * time.Millisecond
	backpressureWait  = time.Second
	maxBatchRetries   = 20
)
