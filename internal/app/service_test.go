package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/comparo/internal/adapters/mq/queue"
	"github.com/okian/comparo/internal/adapters/subject"
	service "github.com/okian/comparo/internal/app"
	"github.com/okian/comparo/internal/domain/compset"
	"github.com/okian/comparo/internal/domain/dedupe"
	"github.com/okian/comparo/internal/domain/model"
	"github.com/okian/comparo/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var (
	now     = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	soldOn  = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	madrid  = model.GeoPoint{Lat: 40.4168, Lng: -3.7038}
	good    = model.ConditionGood
	example = model.NormalizeRules{
		SqmRule:        model.SqmLinear,
		StateFactors:   map[model.Condition]float64{model.ConditionGood: 1},
		FloorBonus:     2000,
		ElevatorFactor: 1.05,
	}
	// only size counts, so every comparable gets the same weight
	sizeOnly = model.ScoreParams{
		Method: model.MethodCosine,
		Weights: map[model.Feature]float64{
			model.FeatureRooms: 0, model.FeatureBaths: 0, model.FeatureFloor: 0,
			model.FeatureAge: 0, model.FeatureTerrace: 0, model.FeatureDistance: 0,
		},
		Aggregation: model.AggregationMean,
	}
)

func newService(opts ...service.Option) *service.Service {
	opts = append([]service.Option{
		service.WithClock(func() time.Time { return now }),
		service.WithWorkerCount(2),
		service.WithQueueSize(100),
	}, opts...)
	svc := service.New(opts...)
	So(svc.Start(context.Background()), ShouldBeNil)
	return svc
}

func subjectAt(p model.GeoPoint) model.SubjectRef {
	return model.SubjectRef{
		Lat: lo.ToPtr(p.Lat), Lng: lo.ToPtr(p.Lng),
		Sqm: 90, Floor: 2, Elevator: true, Condition: model.ConditionGood,
	}
}

func comp(dLat, price, sqm float64, floor int, elevator bool, date time.Time) model.ComparableRecord {
	return model.ComparableRecord{
		Date:      date,
		Lat:       madrid.Lat + dLat,
		Lng:       madrid.Lng,
		Price:     price,
		Sqm:       sqm,
		Floor:     lo.ToPtr(floor),
		Elevator:  lo.ToPtr(elevator),
		Condition: &good,
	}
}

func mustImport(svc *service.Service, rec model.ComparableRecord) model.Comparable {
	c, err := svc.ImportComparable(context.Background(), rec)
	So(err, ShouldBeNil)
	return c
}

func nearby() model.SearchFilters {
	return model.SearchFilters{RadiusKm: 2}
}

func TestServiceLifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(service.WithWorkerCount(3), service.WithQueueSize(50))

		Convey("Before Start operations are refused", func() {
			So(svc.GetStats()["started"], ShouldEqual, false)
			_, err := svc.GetComparable(context.Background(), "c-1")
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})

		Convey("When started and stopped", func() {
			So(svc.Start(context.Background()), ShouldBeNil)
			So(svc.Start(context.Background()), ShouldBeNil)

			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, true)
			So(stats["workerCount"], ShouldEqual, 3)
			So(stats["totalComparables"], ShouldEqual, 0)

			svc.Stop()
			svc.Stop()
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})
}

func TestStopSettlesQueuedImports(t *testing.T) {
	Convey("Given a service started on a context that is cancelled", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		svc := service.New(
			service.WithClock(func() time.Time { return now }),
			service.WithWorkerCount(2),
			service.WithQueueSize(100),
		)
		So(svc.Start(ctx), ShouldBeNil)
		cancel()

		var mu sync.Mutex
		var settled []error
		for i := range 5 {
			body, err := json.Marshal(comp(float64(i)*0.001, 200000+float64(i)*1000, 80, 1, true, soldOn))
			So(err, ShouldBeNil)
			ok := svc.Enqueue(context.Background(), queue.Job{
				ID:         "job-" + strconv.Itoa(i),
				Body:       body,
				Origin:     "amqp",
				ReceivedAt: now,
				Done: func(err error) {
					mu.Lock()
					defer mu.Unlock()
					settled = append(settled, err)
				},
			})
			So(ok, ShouldBeTrue)
		}

		Convey("When stopped", func() {
			begin := time.Now()
			svc.Stop()
			elapsed := time.Since(begin)

			Convey("Then the drain does not wait out the stop timeout", func() {
				So(elapsed, ShouldBeLessThan, 5*time.Second)
			})

			Convey("Then every queued job was imported and settled", func() {
				mu.Lock()
				defer mu.Unlock()
				So(settled, ShouldHaveLength, 5)
				for _, err := range settled {
					So(err, ShouldBeNil)
				}
			})
		})
	})
}

func TestScoreComparablesExample(t *testing.T) {
	Convey("Given the two comparable worked example", t, func() {
		svc := newService()
		defer svc.Stop()

		a := mustImport(svc, comp(0.001, 200000, 80, 1, true, soldOn))
		b := mustImport(svc, comp(-0.001, 260000, 100, 4, false, soldOn))

		Convey("When valued with equal weights", func() {
			res, err := svc.ScoreComparables(context.Background(), subjectAt(madrid), nearby(), example, sizeOnly)
			So(err, ShouldBeNil)

			Convey("Then each comparable is normalized to the subject", func() {
				prices := lo.SliceToMap(res.Comparables, func(sc model.ScoredComparable) (string, float64) {
					return sc.Comparable.ID, sc.NormalizedPrice
				})
				So(prices[a.ID], ShouldAlmostEqual, 227000, 1e-6)
				So(prices[b.ID], ShouldAlmostEqual, 241500, 1e-6)
				for _, sc := range res.Comparables {
					So(sc.Weight, ShouldAlmostEqual, 1, 1e-9)
					So(sc.Breakdown, ShouldHaveLength, 8)
				}
			})

			Convey("And the estimate is their mean", func() {
				So(res.PointEstimate, ShouldAlmostEqual, 234250, 1e-6)
				So(res.Band.Low, ShouldBeLessThanOrEqualTo, res.PointEstimate)
				So(res.Band.High, ShouldBeGreaterThanOrEqualTo, res.PointEstimate)
				So(res.Method, ShouldEqual, model.MethodCosine)
				So(res.Aggregation, ShouldEqual, model.AggregationMean)
				So(res.LowConfidence, ShouldBeTrue)
				So(res.ComputedAt, ShouldEqual, now)
			})
		})

		Convey("When aggregated with the weighted median", func() {
			params := sizeOnly
			params.Aggregation = model.AggregationMedian
			res, err := svc.ScoreComparables(context.Background(), subjectAt(madrid), nearby(), example, params)

			Convey("Then two equal weights meet in the middle", func() {
				So(err, ShouldBeNil)
				So(res.PointEstimate, ShouldAlmostEqual, 234250, 1e-6)
			})
		})
	})
}

func TestScoreComparablesPipeline(t *testing.T) {
	Convey("Given a service", t, func() {
		svc := newService()
		defer svc.Stop()
		ctx := context.Background()

		Convey("An empty pool is fatal", func() {
			_, err := svc.ScoreComparables(ctx, subjectAt(madrid), nearby(), example, sizeOnly)
			So(errors.Is(err, model.ErrNoComparablesFound), ShouldBeTrue)
		})

		Convey("Invalid input aborts before querying", func() {
			_, err := svc.ScoreComparables(ctx, subjectAt(madrid), model.SearchFilters{RadiusKm: 6}, example, sizeOnly)
			So(errors.Is(err, model.ErrInvalidFilter), ShouldBeTrue)

			noCoords := subjectAt(madrid)
			noCoords.Lat, noCoords.Lng = nil, nil
			_, err = svc.ScoreComparables(ctx, noCoords, model.SearchFilters{}, example,
				model.ScoreParams{Method: model.MethodKNN, K: 3, DistCapM: 1000})
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)

			_, err = svc.ScoreComparables(ctx, subjectAt(madrid), nearby(), example, model.ScoreParams{Method: "LASSO"})
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		})

		Convey("Stale comparables are dropped and counted", func() {
			mustImport(svc, comp(0.001, 200000, 80, 1, true, soldOn))
			mustImport(svc, comp(0.002, 210000, 85, 1, true, now.AddDate(0, -13, 0)))
			mustImport(svc, comp(0.003, 220000, 90, 1, true, now.AddDate(0, -25, 0)))

			res, err := svc.ScoreComparables(ctx, subjectAt(madrid), nearby(), example, sizeOnly)
			So(err, ShouldBeNil)
			So(res.StaleExcluded, ShouldEqual, 1)
			So(res.Comparables, ShouldHaveLength, 2)
			So(lo.ContainsBy(res.Warnings, func(w model.Warning) bool { return w.Code == model.WarnRecency }), ShouldBeTrue)
		})

		Convey("Only stale comparables leave nothing to value", func() {
			mustImport(svc, comp(0.001, 200000, 80, 1, true, now.AddDate(0, -30, 0)))
			_, err := svc.ScoreComparables(ctx, subjectAt(madrid), nearby(), example, sizeOnly)
			So(errors.Is(err, model.ErrNoComparablesFound), ShouldBeTrue)
		})

		Convey("A single comparable is the estimate with low confidence", func() {
			mustImport(svc, comp(0.001, 300000, 90, 2, true, soldOn))
			res, err := svc.ScoreComparables(ctx, subjectAt(madrid), nearby(), example, sizeOnly)
			So(err, ShouldBeNil)
			So(res.PointEstimate, ShouldAlmostEqual, res.Comparables[0].NormalizedPrice, 1e-9)
			So(res.PointEstimate, ShouldAlmostEqual, 300000, 1e-9)
			So(res.LowConfidence, ShouldBeTrue)
			So(lo.ContainsBy(res.Warnings, func(w model.Warning) bool {
				return w.Code == model.WarnInsufficientComparables
			}), ShouldBeTrue)
		})

		Convey("KNN keeps at most k comparables inside the cap", func() {
			for i := 1; i <= 6; i++ {
				// roughly 111 m per step north
				mustImport(svc, comp(float64(i)*0.001, 200000+float64(i)*1000, 80+float64(i), 1, true, soldOn))
			}
			params := model.ScoreParams{Method: model.MethodKNN, K: 3, DistCapM: 600}
			res, err := svc.ScoreComparables(ctx, subjectAt(madrid), nearby(), example, params)
			So(err, ShouldBeNil)

			weighted := lo.Filter(res.Comparables, func(sc model.ScoredComparable, _ int) bool { return sc.Weight > 0 })
			So(len(weighted), ShouldBeLessThanOrEqualTo, 3)
			for _, sc := range weighted {
				So(*sc.DistanceM, ShouldBeLessThanOrEqualTo, 600)
			}
			So(res.Comparables, ShouldHaveLength, 6)
		})

		Convey("Cancellation stops the run", func() {
			mustImport(svc, comp(0.001, 200000, 80, 1, true, soldOn))
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := svc.ScoreComparables(cctx, subjectAt(madrid), nearby(), example, sizeOnly)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}

func TestValuate(t *testing.T) {
	Convey("Given a service with a subject lookup", t, func() {
		resolver := subject.NewMemoryResolver()
		resolver.Put("prop-1", subjectAt(madrid))
		svc := newService(service.WithSubjectResolver(resolver))
		defer svc.Stop()
		ctx := context.Background()

		mustImport(svc, comp(0.001, 200000, 80, 1, true, soldOn))
		mustImport(svc, comp(-0.001, 260000, 100, 4, false, soldOn))

		Convey("A property id is resolved to its subject", func() {
			res, err := svc.Valuate(ctx, model.ValuationRequest{
				PropertyID: "prop-1", Filters: nearby(), Rules: &example, Params: &sizeOnly,
			})
			So(err, ShouldBeNil)
			So(res.PointEstimate, ShouldAlmostEqual, 234250, 1e-6)
		})

		Convey("Configured defaults apply when rules and params are omitted", func() {
			subj := subjectAt(madrid)
			res, err := svc.Valuate(ctx, model.ValuationRequest{Subject: &subj, Filters: nearby()})
			So(err, ShouldBeNil)
			So(res.Method, ShouldEqual, model.MethodCosine)
			So(res.Aggregation, ShouldEqual, model.AggregationMedian)
		})

		Convey("Unknown property, rule set or a missing subject are rejected", func() {
			_, err := svc.Valuate(ctx, model.ValuationRequest{PropertyID: "nope", Filters: nearby()})
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)

			_, err = svc.Valuate(ctx, model.ValuationRequest{PropertyID: "prop-1", RulesID: "barrio"})
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)

			_, err = svc.Valuate(ctx, model.ValuationRequest{Filters: nearby()})
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		})
	})
}

func TestValidateCompRecency(t *testing.T) {
	Convey("Given a service clock", t, func() {
		svc := service.New(service.WithClock(func() time.Time { return now }))

		Convey("13 months with a 12 month threshold is valid with a warning", func() {
			res := svc.ValidateCompRecency(now.AddDate(0, -13, 0), 12)
			So(res.Valid, ShouldBeTrue)
			So(res.Warning, ShouldNotBeNil)
		})

		Convey("25 months is invalid", func() {
			res := svc.ValidateCompRecency(now.AddDate(0, -25, 0), 0)
			So(res.Valid, ShouldBeFalse)
		})

		Convey("A recent date has no annotation", func() {
			res := svc.ValidateCompRecency(soldOn, 0)
			So(res.Valid, ShouldBeTrue)
			So(res.Warning, ShouldBeNil)
		})
	})
}

func TestImports(t *testing.T) {
	Convey("Given a service", t, func() {
		svc := newService()
		defer svc.Stop()
		ctx := context.Background()

		Convey("A repeated record is a duplicate", func() {
			rec := comp(0.001, 200000, 80, 1, true, soldOn)
			mustImport(svc, rec)
			_, err := svc.ImportComparable(ctx, rec)
			So(errors.Is(err, dedupe.ErrDuplicate), ShouldBeTrue)
		})

		Convey("A correction of a ref is stored as its next version", func() {
			rec := comp(0.001, 200000, 80, 1, true, soldOn)
			rec.Ref = lo.ToPtr("R-1")
			first := mustImport(svc, rec)
			So(first.Version, ShouldEqual, 1)

			_, err := svc.ImportComparable(ctx, rec)
			So(errors.Is(err, dedupe.ErrDuplicate), ShouldBeTrue)

			fixed := rec
			fixed.Condition = lo.ToPtr(model.ConditionNeedsReform)
			fixed.Floor = lo.ToPtr(5)
			second := mustImport(svc, fixed)
			So(second.Version, ShouldEqual, 2)
			So(*second.Condition, ShouldEqual, model.ConditionNeedsReform)

			page, err := svc.QueryComparables(ctx, model.SearchFilters{Q: "R-1"}, nil)
			So(err, ShouldBeNil)
			So(page.Items, ShouldHaveLength, 1)
			So(page.Items[0].ID, ShouldEqual, second.ID)
		})

		Convey("An invalid record is rejected and can be fixed", func() {
			rec := comp(0.001, 0, 80, 1, true, soldOn)
			_, err := svc.ImportComparable(ctx, rec)
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)

			rec.Price = 180000
			mustImport(svc, rec)
		})

		Convey("Raw records are checked against the contract", func() {
			_, err := svc.ImportRaw(ctx, []byte(`{"date":"2025-05-01T00:00:00Z","lat":40.4,"lng":-3.7,"sqm":80}`))
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)

			c, err := svc.ImportRaw(ctx, []byte(`{"date":"2025-05-01T00:00:00Z","lat":40.4,"lng":-3.7,"price":150000,"sqm":80}`))
			So(err, ShouldBeNil)
			So(c.Source, ShouldEqual, model.SourceInterno)
		})

		Convey("A batch is imported asynchronously", func() {
			body := []byte(`[
				{"date":"2025-05-01T00:00:00Z","lat":40.41,"lng":-3.70,"price":150000,"sqm":80},
				{"date":"2025-05-02T00:00:00Z","lat":40.42,"lng":-3.70,"price":160000,"sqm":85},
				{"date":"2025-05-03T00:00:00Z","lat":40.43,"lng":-3.70,"price":170000,"sqm":90}
			]`)
			receipt, err := svc.EnqueueBatch(ctx, body, "http")
			So(err, ShouldBeNil)
			So(receipt.Accepted, ShouldEqual, 3)
			So(receipt.JobIDs, ShouldHaveLength, 3)

			deadline := time.Now().Add(5 * time.Second)
			for svc.GetStats()["totalComparables"] != 3 && time.Now().Before(deadline) {
				time.Sleep(10 * time.Millisecond)
			}
			So(svc.GetStats()["totalComparables"], ShouldEqual, 3)
		})

		Convey("A batch that is not an array is rejected", func() {
			_, err := svc.EnqueueBatch(ctx, []byte(`{"price":1}`), "http")
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)

			_, err = svc.EnqueueBatch(ctx, []byte(`[]`), "http")
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		})
	})
}

func TestCompSets(t *testing.T) {
	Convey("Given imported comparables", t, func() {
		svc := newService()
		defer svc.Stop()
		ctx := context.Background()

		a := mustImport(svc, comp(0.001, 200000, 80, 1, true, soldOn))
		b := mustImport(svc, comp(0.002, 260000, 100, 4, false, soldOn))
		client := "acme"

		Convey("SaveCompSet returns the new id", func() {
			id, err := svc.SaveCompSet(ctx, compset.Input{Name: "centro", CompIDs: []string{a.ID, b.ID}, Client: &client})
			So(err, ShouldBeNil)
			So(id, ShouldNotBeEmpty)

			cs, err := svc.GetCompSet(ctx, id)
			So(err, ShouldBeNil)
			So(cs.Version, ShouldEqual, 1)

			sets, err := svc.ListCompSets(ctx, client)
			So(err, ShouldBeNil)
			So(sets, ShouldHaveLength, 1)

			Convey("A write against an old version conflicts", func() {
				_, err := svc.UpdateCompSet(ctx, id, 1, compset.Input{Name: "centro v2", CompIDs: []string{a.ID}})
				So(err, ShouldBeNil)
				_, err = svc.UpdateCompSet(ctx, id, 1, compset.Input{Name: "stale", CompIDs: []string{b.ID}})
				So(errors.Is(err, model.ErrConflict), ShouldBeTrue)
				So(errors.Is(svc.DeleteCompSet(ctx, id, 1), model.ErrConflict), ShouldBeTrue)
				So(svc.DeleteCompSet(ctx, id, 2), ShouldBeNil)
			})
		})

		Convey("Unknown comparable ids are rejected", func() {
			_, err := svc.SaveCompSet(ctx, compset.Input{Name: "x", CompIDs: []string{a.ID, "missing"}})
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "missing")
		})
	})
}
