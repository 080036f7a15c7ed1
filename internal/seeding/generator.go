package seeding

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/okian/comparo/internal/domain/model"
)

var (
	conditions = []model.Condition{
		model.ConditionNew, model.ConditionExcellent, model.ConditionGood,
		model.ConditionGood, model.ConditionFair, model.ConditionNeedsReform,
	}
	sources = []model.Source{model.SourcePortal, model.SourceRegistro, model.SourceNotaria}
)

// Generator produces synthetic comparables scattered inside a disc.
type Generator struct {
	rng     *rand.Rand
	seed    uint64
	n       int
	center  model.GeoPoint
	radiusM float64
	now     time.Time
}

// NewGenerator returns a Generator seeded for reproducible output.
func NewGenerator(cfg *Config, now time.Time) *Generator {
	return &Generator{
		rng:     rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		seed:    cfg.Seed,
		center:  model.GeoPoint{Lat: cfg.CenterLat, Lng: cfg.CenterLng},
		radiusM: cfg.RadiusKm * 1000,
		now:     now.UTC(),
	}
}

// Generate returns n records.
func (g *Generator) Generate(n int) []model.ComparableRecord {
	return lo.Times(n, func(int) model.ComparableRecord { return g.record() })
}

// point draws a location uniformly over the disc.
func (g *Generator) point() model.GeoPoint {
	d := g.radiusM * math.Sqrt(g.rng.Float64())
	bearing := 2 * math.Pi * g.rng.Float64()
	dLat := d * math.Cos(bearing) / metersPerDegree
	dLng := d * math.Sin(bearing) / (metersPerDegree * math.Cos(g.center.Lat*math.Pi/180))
	return model.GeoPoint{Lat: g.center.Lat + dLat, Lng: g.center.Lng + dLng}
}

func (g *Generator) record() model.ComparableRecord {
	p := g.point()
	sqm := math.Round(sqmMin + g.rng.Float64()*sqmRange)
	ppsqm := ppsqmMin + g.rng.Float64()*ppsqmRange
	rooms := 1 + int(sqm/35)
	baths := 1 + g.rng.IntN(2)
	floor := g.rng.IntN(maxFloor + 1)
	elevator := floor > 2 || g.rng.IntN(2) == 0
	parking := g.rng.IntN(3) == 0
	terrace := 0.0
	if g.rng.IntN(4) == 0 {
		terrace = math.Round(4 + g.rng.Float64()*16)
	}
	age := math.Round(g.rng.Float64() * 80)
	cond := conditions[g.rng.IntN(len(conditions))]
	src := sources[g.rng.IntN(len(sources))]
	// Refs derive from seed and position so reruns hit the deduper.
	ref := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("comparo-seed/%d/%d", g.seed, g.n))).String()
	g.n++

	return model.ComparableRecord{
		Ref:              &ref,
		Date:             g.now.AddDate(0, 0, -g.rng.IntN(maxAgeDays)).Truncate(24 * time.Hour),
		Lat:              p.Lat,
		Lng:              p.Lng,
		Type:             model.TypeApartment,
		Price:            math.Round(sqm*ppsqm/100) * 100,
		Sqm:              sqm,
		Rooms:            &rooms,
		Baths:            &baths,
		Floor:            &floor,
		Elevator:         &elevator,
		TerraceSqm:       &terrace,
		Parking:          &parking,
		Condition:        &cond,
		BuildingAgeYears: &age,
		Source:           &src,
	}
}

// Subject returns a typical subject at the center of the disc.
func (g *Generator) Subject() model.SubjectRef {
	lat, lng := g.center.Lat, g.center.Lng
	age := 30.0
	return model.SubjectRef{
		Lat:              &lat,
		Lng:              &lng,
		Type:             model.TypeApartment,
		Sqm:              90,
		Rooms:            3,
		Baths:            2,
		Floor:            3,
		Elevator:         true,
		Condition:        model.ConditionGood,
		BuildingAgeYears: &age,
	}
}
