package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	. "github.com/smartystreets/goconvey/convey"
)

// value sums every sample of the named family: counter and gauge values,
// histogram sample counts.
func value(m *Manager, name string) float64 {
	families, err := m.Registry().Gather()
	if err != nil {
		return -1
	}
	total := 0.0
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			total += sample(metric)
		}
	}
	return total
}

func sample(m *dto.Metric) float64 {
	switch {
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	case m.GetHistogram() != nil:
		return float64(m.GetHistogram().GetSampleCount())
	}
	return 0
}

func labelled(m *Manager, name, label, want string) float64 {
	families, _ := m.Registry().Gather()
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == want {
					return sample(metric)
				}
			}
		}
	}
	return 0
}

func TestManager(t *testing.T) {
	Convey("Given a manager on its own registry", t, func() {
		m := NewManager(WithNamespace("test"), WithSubsystem("poster"))

		Convey("Counters and gauges record", func() {
			m.RecordFieldUpdates(3)
			m.RecordFieldUpdates(0)
			m.RecordAvatarIngested()
			m.RecordAvatarRejected("too_large")
			m.RecordPreviewRebuild()
			m.SetActiveSessions(2)

			So(value(m, "test_poster_field_updates_total"), ShouldEqual, 3)
			So(value(m, "test_poster_avatars_ingested_total"), ShouldEqual, 1)
			So(labelled(m, "test_poster_avatars_rejected_total", "reason", "too_large"), ShouldEqual, 1)
			So(value(m, "test_poster_preview_rebuilds_total"), ShouldEqual, 1)
			So(value(m, "test_poster_active_sessions"), ShouldEqual, 2)
		})

		Convey("Exports are split by result and failing stage", func() {
			m.RecordExport(10*time.Millisecond, 2048, "")
			m.RecordExport(5*time.Millisecond, 0, "encode")
			m.RecordRasterize(time.Millisecond)

			So(labelled(m, "test_poster_exports_total", "result", ResultOK), ShouldEqual, 1)
			So(labelled(m, "test_poster_exports_total", "result", ResultFailed), ShouldEqual, 1)
			So(labelled(m, "test_poster_export_failures_total", "stage", "encode"), ShouldEqual, 1)
			So(value(m, "test_poster_export_duration_seconds"), ShouldEqual, 2)
			So(value(m, "test_poster_export_size_bytes"), ShouldEqual, 1)
			So(value(m, "test_poster_rasterize_duration_seconds"), ShouldEqual, 1)
		})

		Convey("The handler exposes the text format", func() {
			m.RecordPreviewRebuild()
			rec := httptest.NewRecorder()
			m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
			body, _ := io.ReadAll(rec.Body)
			So(rec.Code, ShouldEqual, 200)
			So(string(body), ShouldContainSubstring, "test_poster_preview_rebuilds_total 1")
		})
	})

	Convey("A nil manager records nothing and does not panic", t, func() {
		var m *Manager
		So(func() {
			m.RecordFieldUpdates(1)
			m.RecordAvatarIngested()
			m.RecordAvatarRejected("x")
			m.RecordPreviewRebuild()
			m.SetActiveSessions(1)
			m.RecordRasterize(time.Second)
			m.RecordExport(time.Second, 1, "")
		}, ShouldNotPanic)
		So(m.Registry(), ShouldBeNil)
	})
}
