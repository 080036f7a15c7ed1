// Package config defines service configuration and its loading.
//
// Precedence (low -> high): defaults from New, optional YAML file named by
// COMPARO_CONFIG, a .env file, then COMPARO_* environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/samber/lo"

	"github.com/okian/comparo/internal/domain/model"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text, json or console.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`
	// ShutdownTimeoutMS bounds graceful shutdown.
	ShutdownTimeoutMS int `koanf:"shutdown_timeout_ms"`

	// StorageDriver selects the comparable and comp set backend.
	StorageDriver string `koanf:"storage_driver"`
	DatabaseURL   string `koanf:"database_url"`

	IngestQueueSize int `koanf:"ingest_queue_size"`
	IngestWorkers   int `koanf:"ingest_workers"`
	DedupeSize      int `koanf:"dedupe_size"`

	// WarnMonths is the default recency warning threshold.
	WarnMonths int `koanf:"warn_months"`

	SubjectServiceURL string `koanf:"subject_service_url"`
	SubjectTimeoutMS  int    `koanf:"subject_timeout_ms"`

	AMQPEnabled bool   `koanf:"amqp_enabled"`
	AMQPURL     string `koanf:"amqp_url"`
	AMQPQueue   string `koanf:"amqp_queue"`

	// DefaultRules applies when a request names neither rulesId nor rules.
	DefaultRules model.NormalizeRules `koanf:"default_rules"`
	// Rules are named rule sets referenced by rulesId.
	Rules map[string]model.NormalizeRules `koanf:"rules"`
	// DefaultScore applies when a request omits params.
	DefaultScore model.ScoreParams `koanf:"default_score"`
}

// New returns a Config with defaults. The context is reserved for loaders.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		ShutdownTimeoutMS: 10_000,
		StorageDriver:     StorageMemory,
		IngestQueueSize:   10_000,
		IngestWorkers:     runtime.NumCPU() * 2,
		DedupeSize:        200_000,
		WarnMonths:        12,
		SubjectTimeoutMS:  2_000,
		AMQPQueue:         "comparables.import",
		DefaultRules:      DefaultRules(),
		Rules:             map[string]model.NormalizeRules{},
		DefaultScore: model.ScoreParams{
			Method:      model.MethodCosine,
			K:           10,
			DistCapM:    2_000,
			Aggregation: model.AggregationMedian,
		},
	}
}

// DefaultRules is the built-in adjustment rule set.
func DefaultRules() model.NormalizeRules {
	return model.NormalizeRules{
		ID:      "default",
		Version: 1,
		SqmRule: model.SqmLinear,
		StateFactors: map[model.Condition]float64{
			model.ConditionNew:         1.10,
			model.ConditionExcellent:   1.05,
			model.ConditionGood:        1.00,
			model.ConditionFair:        0.95,
			model.ConditionNeedsReform: 0.85,
		},
		FloorBonus:         0.01,
		ElevatorFactor:     1.03,
		TerracePpsqm:       1_500,
		ParkingValue:       15_000,
		AgeDepreciationPct: 0.5,
		MicroLocBonusM:     300,
		MicroLocBonusPct:   lo.ToPtr(model.DefaultMicroLocBonusPct),
	}
}

// RulesByID returns the named rule set; "" and "default" name DefaultRules.
func (c *Config) RulesByID(id string) (model.NormalizeRules, bool) {
	id = strings.TrimSpace(id)
	if id == "" || id == c.DefaultRules.ID {
		return c.DefaultRules, true
	}
	r, ok := c.Rules[id]
	if !ok {
		// koanf may lowercase keys
		r, ok = c.Rules[strings.ToLower(id)]
	}
	if ok && r.ID == "" {
		r.ID = id
	}
	return r, ok
}

// Validate checks ranges and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Addr == "" {
		bad("addr must not be empty")
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json", "console":
	default:
		bad("log_format %q must be text, json or console", c.LogFormat)
	}
	switch c.StorageDriver {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			bad("database_url is required for the postgres driver")
		}
	default:
		bad("storage_driver %q must be memory or postgres", c.StorageDriver)
	}
	if c.IngestQueueSize < 1 {
		bad("ingest_queue_size must be >= 1")
	}
	if c.IngestWorkers < 1 {
		bad("ingest_workers must be >= 1")
	}
	if c.WarnMonths < 1 {
		bad("warn_months must be >= 1")
	}
	if c.AMQPEnabled && c.AMQPURL == "" {
		bad("amqp_url is required when amqp_enabled")
	}
	if err := c.DefaultRules.Validate(); err != nil {
		bad("default_rules: %v", err)
	}
	for id, r := range c.Rules {
		if err := r.Validate(); err != nil {
			bad("rules.%s: %v", id, err)
		}
	}
	if err := c.DefaultScore.Validate(); err != nil {
		bad("default_score: %v", err)
	}
	return errors.Join(errs...)
}
