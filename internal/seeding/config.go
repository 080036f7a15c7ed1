package seeding

import "time"

// Config holds configuration for a seeding run.
type Config struct {
	BaseURL   string        // Base URL of the service
	NumComps  int           // Number of comparables to generate
	Workers   int           // Concurrent submitters
	BatchSize int           // Records per batch request; 0 imports one by one
	Timeout   time.Duration // HTTP request timeout
	Settle    time.Duration // How long to wait for queued imports to land

	CenterLat float64
	CenterLng float64
	RadiusKm  float64
	K         int    // Neighbours requested from the KNN valuation
	Seed      uint64 // Generator seed; equal seeds give equal records

	OutputFile string // Where generated records are written; empty skips
	Verbose    bool

	Now func() time.Time // Clock for record dates; nil means time.Now
}

// Stats holds run statistics.
type Stats struct {
	Generated int
	Submitted int
	Imported  int
	Duplicate int
	Rejected  int
	Failed    int
	Weighted  int
	StartTime time.Time
	Duration  time.Duration
}
