package seeding

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/comparo/pkg/logger"
)

const logFilePermission = 0o600

// SetupLogging initializes the logger, teeing to logFile when given.
func SetupLogging(logFile string, verbose bool) error {
	var w io.Writer = os.Stdout
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, f)
	}
	if err := logger.Init(logger.WithWriter(w)); err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	if verbose {
		return logger.SetLevelString("debug")
	}
	return nil
}

// ShowHelp prints usage information for the seeding tool.
func ShowHelp() {
	os.Stdout.WriteString(`comparo seed tool
=================

Generates synthetic comparables around a center, imports them into a running
comparo service, then values a subject at the center with KNN and checks the
result.

Usage:
  go run ./cmd/seed-comps [options]

Options:
  -url string         Base URL of the service (default "http://localhost:9080")
  -comps int          Comparables to generate (default 500)
  -workers int        Concurrent importers (default CPU cores * 2)
  -batch int          Records per batch request; 0 imports one by one (default 0)
  -lat float          Center latitude (default 40.4168)
  -lng float          Center longitude (default -3.7038)
  -radius float       Radius in km (default 2)
  -k int              KNN neighbours (default 10)
  -seed uint          Generator seed (default 1)
  -settle duration    Wait for queued imports (default 30s)
  -timeout duration   HTTP request timeout (default 30s)
  -output string      Write generated records to this JSON file
  -log string         Also write logs to this file
  -verbose            Debug logging
  -help               Show this help message

Examples:
  go run ./cmd/seed-comps -comps 2000 -batch 200
  go run ./cmd/seed-comps -seed 7 -output comps.json
`)
}
