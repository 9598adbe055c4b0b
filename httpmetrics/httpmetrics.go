// Package httpmetrics wraps an http.Handler with opencensus request counters
// and latency distributions.
package httpmetrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/golang/glog"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	pathKey   = tag.MustNewKey("path")
	statusKey = tag.MustNewKey("status")
)

type Wrapper struct {
	requestCount       *stats.Int64Measure
	requestLatency     *stats.Float64Measure
	requestCountView   *view.View
	requestLatencyView *view.View

	inner http.Handler
}

// New wraps inner.  name prefixes the measure and view names so several
// wrappers can coexist in one process.
func New(name string, inner http.Handler) *Wrapper {
	r := &Wrapper{}

	r.requestCount = stats.Int64(name+"/requests", "Requests served", stats.UnitDimensionless)
	r.requestCountView = &view.View{
		Name:        name + "/requests",
		Description: "Counter of requests that have been handled",

		TagKeys: []tag.Key{pathKey, statusKey},

		Measure:     r.requestCount,
		Aggregation: view.Count(),
	}

	r.requestLatency = stats.Float64(name+"/latency", "Time to serve a request", stats.UnitMilliseconds)
	r.requestLatencyView = &view.View{
		Name:        name + "/latency",
		Description: "Distribution of request latencies",

		TagKeys: []tag.Key{pathKey},

		Measure:     r.requestLatency,
		Aggregation: view.Distribution(1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000),
	}

	r.inner = inner

	return r
}

func (h *Wrapper) RegisterMetrics() error {
	return view.Register(h.requestCountView, h.requestLatencyView)
}

func (h *Wrapper) UnregisterMetrics() {
	view.Unregister(h.requestCountView, h.requestLatencyView)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Wrapper) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	h.inner.ServeHTTP(rec, r)

	elapsed := time.Since(start)
	glog.V(1).Infof("Served path=%q status=%d elapsed=%v remoteaddr=%q", r.URL.Path, rec.status, elapsed, r.RemoteAddr)

	err := stats.RecordWithOptions(
		r.Context(),
		stats.WithTags(
			tag.Insert(pathKey, r.URL.Path),
			tag.Insert(statusKey, strconv.Itoa(rec.status)),
		),
		stats.WithMeasurements(
			h.requestCount.M(1),
			h.requestLatency.M(float64(elapsed.Microseconds())/1000),
		))
	if err != nil {
		glog.Errorf("Error recording request metrics: %v", err)
	}
}
