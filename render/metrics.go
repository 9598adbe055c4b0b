package render

import (
	"context"
	"fmt"

	"github.com/golang/glog"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	kindKey = tag.MustNewKey("kind")

	raysCast      = stats.Int64("pinhole/render/rays", "Rays cast while rendering", stats.UnitDimensionless)
	renderLatency = stats.Float64("pinhole/render/latency", "Wall time of a full render", stats.UnitMilliseconds)

	RaysView = &view.View{
		Name:        "pinhole/render/rays",
		Description: "Rays cast, by kind",
		TagKeys:     []tag.Key{kindKey},
		Measure:     raysCast,
		Aggregation: view.Sum(),
	}

	LatencyView = &view.View{
		Name:        "pinhole/render/latency",
		Description: "Distribution of render wall times",
		Measure:     renderLatency,
		Aggregation: view.Distribution(10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000),
	}
)

// RegisterViews registers the render views with opencensus.  Without it the
// measures are recorded but never exported.
func RegisterViews() error {
	if err := view.Register(RaysView, LatencyView); err != nil {
		return fmt.Errorf("while registering render views: %w", err)
	}
	return nil
}

func recordStats(ctx context.Context, s Stats) {
	for _, kc := range []struct {
		kind  string
		count int64
	}{
		{"primary", s.Primary},
		{"reflected", s.Reflected},
		{"refracted", s.Refracted},
		{"shadow", s.Shadow},
	} {
		err := stats.RecordWithOptions(
			ctx,
			stats.WithTags(tag.Upsert(kindKey, kc.kind)),
			stats.WithMeasurements(raysCast.M(kc.count)))
		if err != nil {
			glog.Errorf("Error recording %s ray count: %v", kc.kind, err)
		}
	}

	stats.Record(ctx, renderLatency.M(float64(s.Elapsed.Microseconds())/1000))
}
