package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithLatencyBuckets([]float64{1, 10}),
				WithCandidateBuckets([]float64{5, 50}),
				WithRegisterer(registry),
			)

			Convey("Then collectors are registered under the namespace", func() {
				So(m, ShouldNotBeNil)
				m.valuations.WithLabelValues("KNN", "ok").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				var names []string
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_unit_valuations_total")
			})
		})

		Convey("When registering twice on the same registry", func() {
			NewManager(WithRegisterer(registry))

			Convey("Then the duplicate registration panics", func() {
				So(func() { NewManager(WithRegisterer(registry)) }, ShouldPanic)
			})
		})
	})
}

func gatheredNames() map[string]bool {
	families, err := GetRegistry().Gather()
	So(err, ShouldBeNil)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestGlobalRecorders(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording valuation metrics", func() {
			RecordValuation("COSINE", "ok")
			RecordValuationLatency(3.5)
			RecordCandidates(42)
			RecordWarning("StaleComparable")
			RecordStaleExcluded(0)
			RecordStaleExcluded(2)

			Convey("Then the families are exported by the registry", func() {
				names := gatheredNames()
				So(names["comparo_avm_valuations_total"], ShouldBeTrue)
				So(names["comparo_avm_valuation_latency_milliseconds"], ShouldBeTrue)
				So(names["comparo_avm_warnings_total"], ShouldBeTrue)
				So(names["comparo_avm_stale_excluded_total"], ShouldBeTrue)
			})
		})

		Convey("When the remaining helpers are called", func() {
			So(func() {
				UpdateComparablesTotal(7)
				UpdateQueueSize(3)
				UpdateQueueCapacity(10)
				UpdateWorkerCount(4)
				RecordImport("accepted")
				RecordCompSetConflict()
				RecordRepositoryQueryLatency(1)
				RecordRepositoryImportLatency(1)
				RecordQueueEnqueue()
				RecordQueueRejected()
				RecordWorkerProcessingLatency(2)
				RecordWorkerError()
				RecordHTTPRequest("/v1/valuations", "POST", "200")
				RecordHTTPRequestDuration("/v1/valuations", "POST", "200", 12)
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(8)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
			So(gatheredNames()["comparo_avm_comparables_total"], ShouldBeTrue)
		})
	})
}
