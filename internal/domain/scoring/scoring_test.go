package scoring

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/samber/lo"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/comparo/internal/domain/model"
)

func subject() model.SubjectRef {
	return model.SubjectRef{Sqm: 90, Rooms: 3, Baths: 2, Floor: 2, BuildingAgeYears: lo.ToPtr(20.0)}
}

// ring builds n candidates whose size and distance grow with the index.
func ring(n int) []Candidate {
	out := make([]Candidate, n)
	for i := range out {
		out[i] = Candidate{
			Comparable: model.Comparable{
				ID:    fmt.Sprintf("c-%02d", i),
				Sqm:   90 + float64(i)*4,
				Rooms: lo.ToPtr(3),
				Baths: lo.ToPtr(2),
				Floor: lo.ToPtr(2 + i%3),
			},
			DistanceM: lo.ToPtr(100 + float64(i)*150),
		}
	}
	return out
}

func TestForMethod(t *testing.T) {
	Convey("Given the scoring dispatch", t, func() {
		c, err := ForMethod(model.MethodCosine)
		So(err, ShouldBeNil)
		So(c, ShouldHaveSameTypeAs, Cosine{})
		k, err := ForMethod(model.MethodKNN)
		So(err, ShouldBeNil)
		So(k, ShouldHaveSameTypeAs, KNN{})
		_, err = ForMethod("RANDOM_FOREST")
		So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
	})
}

func TestCosine(t *testing.T) {
	Convey("Given cosine similarity", t, func() {
		Convey("It is scale invariant", func() {
			a := []float64{90, 3, 2, 2, 20, 0, 0}
			b := []float64{110, 4, 1, 5, 35, 8, 0.3}
			base, ok := CosineSimilarity(a, b)
			So(ok, ShouldBeTrue)
			for _, k := range []float64{0.01, 3, 1000} {
				sa := lo.Map(a, func(v float64, _ int) float64 { return v * k })
				sb := lo.Map(b, func(v float64, _ int) float64 { return v * k })
				scaled, _ := CosineSimilarity(sa, sb)
				So(scaled, ShouldAlmostEqual, base, 1e-12)
			}
		})

		Convey("Zero vectors are reported as unusable", func() {
			_, ok := CosineSimilarity([]float64{0, 0}, []float64{1, 2})
			So(ok, ShouldBeFalse)
		})

		Convey("The scorer is scale invariant on raw features", func() {
			s := model.SubjectRef{Sqm: 90, Rooms: 3, Baths: 2, Floor: 2}
			c := Candidate{Comparable: model.Comparable{ID: "a", Sqm: 70, Rooms: lo.ToPtr(2), Baths: lo.ToPtr(1), Floor: lo.ToPtr(5)}}
			r1, err := Cosine{}.Score(context.Background(), s, []Candidate{c}, model.ScoreParams{Method: model.MethodCosine})
			So(err, ShouldBeNil)

			s2 := model.SubjectRef{Sqm: 180, Rooms: 6, Baths: 4, Floor: 4}
			c2 := Candidate{Comparable: model.Comparable{ID: "a", Sqm: 140, Rooms: lo.ToPtr(4), Baths: lo.ToPtr(2), Floor: lo.ToPtr(10)}}
			r2, _ := Cosine{}.Score(context.Background(), s2, []Candidate{c2}, model.ScoreParams{Method: model.MethodCosine})
			So(r2.Weights[0].Weight, ShouldAlmostEqual, r1.Weights[0].Weight, 1e-12)
		})

		Convey("Weights lie in (0, 1] and the identical candidate scores 1", func() {
			s := subject()
			cands := ring(6)
			cands[0].DistanceM = lo.ToPtr(0.0)
			cands[0].Comparable.BuildingAgeYears = lo.ToPtr(20.0)
			res, err := Cosine{}.Score(context.Background(), s, cands, model.ScoreParams{Method: model.MethodCosine, DistCapM: 1000})
			So(err, ShouldBeNil)
			So(len(res.Weights), ShouldEqual, 6)
			So(res.Weights[0].Weight, ShouldAlmostEqual, 1, 1e-12)
			for _, w := range res.Weights {
				So(w.Weight, ShouldBeGreaterThan, 0)
				So(w.Weight, ShouldBeLessThanOrEqualTo, 1)
			}
		})

		Convey("A zero weighted vector is excluded with a warning", func() {
			s := model.SubjectRef{Sqm: 50}
			zero := map[model.Feature]float64{}
			for _, f := range model.Features {
				zero[f] = 0
			}
			res, err := Cosine{}.Score(context.Background(), s, ring(2), model.ScoreParams{Method: model.MethodCosine, Weights: zero})
			So(err, ShouldBeNil)
			So(res.Weights, ShouldBeEmpty)
			So(len(res.Warnings), ShouldEqual, 2)
			So(res.Warnings[0].Code, ShouldEqual, model.WarnZeroMagnitude)
		})
	})
}

func TestKNN(t *testing.T) {
	Convey("Given KNN params", t, func() {
		params := model.ScoreParams{Method: model.MethodKNN, K: 4, DistCapM: 1000}

		Convey("It never returns more than k and never one beyond the cap", func() {
			cands := ring(12)
			res, err := KNN{}.Score(context.Background(), subject(), cands, params)
			So(err, ShouldBeNil)
			So(len(res.Weights), ShouldBeLessThanOrEqualTo, params.K)
			for _, w := range res.Weights {
				So(*cands[w.Index].DistanceM, ShouldBeLessThanOrEqualTo, params.DistCapM)
			}
			So(res.Warnings, ShouldBeEmpty)
		})

		Convey("Weights decay by rank from 1", func() {
			res, _ := KNN{}.Score(context.Background(), subject(), ring(12), params)
			So(lo.Map(res.Weights, func(w Weighted, _ int) float64 { return w.Weight }),
				ShouldResemble, []float64{1, 0.75, 0.5, 0.25})
			So(res.Weights[0].ID, ShouldEqual, "c-00")
		})

		Convey("Fewer than 3 survivors proceed with a warning", func() {
			params.DistCapM = 300
			res, err := KNN{}.Score(context.Background(), subject(), ring(12), params)
			So(err, ShouldBeNil)
			So(len(res.Weights), ShouldEqual, 2)
			So(res.Warnings[0].Code, ShouldEqual, model.WarnInsufficientComparables)
		})

		Convey("Ties break by id", func() {
			cands := ring(4)
			for i := range cands {
				cands[i].Comparable.Sqm = 90
				cands[i].Comparable.Floor = lo.ToPtr(2)
				cands[i].DistanceM = lo.ToPtr(200.0)
			}
			cands[0].Comparable.ID, cands[3].Comparable.ID = "z", "a"
			res, _ := KNN{}.Score(context.Background(), subject(), cands, params)
			So(res.Weights[0].ID, ShouldEqual, "a")
		})

		Convey("Candidates without distance are rejected", func() {
			cands := ring(3)
			cands[1].DistanceM = nil
			_, err := KNN{}.Score(context.Background(), subject(), cands, params)
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		})

		Convey("k below 3 is rejected", func() {
			params.K = 2
			_, err := KNN{}.Score(context.Background(), subject(), ring(5), params)
			So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
		})
	})
}
