package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/comparo/internal/seeding"
)

// Default configuration constants.
const (
	defaultComps       = 500
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultLat         = 40.4168
	defaultLng         = -3.7038
	defaultRadiusKm    = 2.0
	defaultK           = 10
	defaultTimeout     = 30 * time.Second
	defaultSettle      = 30 * time.Second
	defaultRunDeadline = 10 * time.Minute
)

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:9080", "Base URL of the service")
		comps   = flag.Int("comps", defaultComps, "Comparables to generate")
		workers = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Concurrent importers")
		batch   = flag.Int("batch", 0, "Records per batch request; 0 imports one by one")
		lat     = flag.Float64("lat", defaultLat, "Center latitude")
		lng     = flag.Float64("lng", defaultLng, "Center longitude")
		radius  = flag.Float64("radius", defaultRadiusKm, "Radius in km")
		k       = flag.Int("k", defaultK, "KNN neighbours")
		seed    = flag.Uint64("seed", 1, "Generator seed")
		settle  = flag.Duration("settle", defaultSettle, "Wait for queued imports")
		timeout = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		output  = flag.String("output", "", "Write generated records to this JSON file")
		logFile = flag.String("log", "", "Also write logs to this file")
		verbose = flag.Bool("verbose", false, "Debug logging")
		help    = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		seeding.ShowHelp()
		return
	}

	if err := seeding.SetupLogging(*logFile, *verbose); err != nil {
		os.Stderr.WriteString("failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunDeadline)
	defer cancel()

	cfg := &seeding.Config{
		BaseURL:    *baseURL,
		NumComps:   *comps,
		Workers:    max(*workers, 1),
		BatchSize:  *batch,
		Timeout:    *timeout,
		Settle:     *settle,
		CenterLat:  *lat,
		CenterLng:  *lng,
		RadiusKm:   *radius,
		K:          *k,
		Seed:       *seed,
		OutputFile: *output,
		Verbose:    *verbose,
	}

	if _, err := seeding.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("seeding failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
