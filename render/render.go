// Package render turns a scene into pixels: one primary ray per pixel, local
// Phong-style shading with hard shadows, and bounded recursion for reflection
// and refraction.
package render

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"pinhole/contact"
	"pinhole/geometry"
	"pinhole/ray"
	"pinhole/rgb"
	"pinhole/scene"
	"pinhole/vmath/vec3"

	"github.com/golang/glog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ErrEmptyImage is returned by Render for sinks with no pixels.
var ErrEmptyImage = errors.New("image has no pixels")

// DefaultEpsilon is how far secondary rays are pushed off the surface they
// start on.
const DefaultEpsilon = 1e-4

// Sink receives rendered pixels.  Row 0 is the bottom of the viewport.  Each
// pixel is written exactly once, possibly from several goroutines at a time,
// but never two goroutines for the same row.
type Sink interface {
	Size() (w, h int)
	Set(x, y int, c rgb.Color)
}

// ProgressFunction is called after each finished row with the number of rows
// done so far and the total.
type ProgressFunction func(done, total int)

type Options struct {
	// Workers is the number of rows rendered concurrently.  Zero means one
	// per CPU; one renders rows in order on a single goroutine.
	Workers int

	// Epsilon defaults to DefaultEpsilon.
	Epsilon float64

	Progress ProgressFunction
}

// Stats describes the rays spent on one render.
type Stats struct {
	Primary   int64
	Reflected int64
	Refracted int64
	Shadow    int64

	// Depth is the deepest recursion level any ray reached.
	Depth int

	Elapsed time.Duration
}

func (s Stats) Total() int64 {
	return s.Primary + s.Reflected + s.Refracted + s.Shadow
}

func (s *Stats) merge(o *Stats) {
	s.Primary += o.Primary
	s.Reflected += o.Reflected
	s.Refracted += o.Refracted
	s.Shadow += o.Shadow
	if o.Depth > s.Depth {
		s.Depth = o.Depth
	}
}

type Renderer struct {
	scene    *scene.Scene
	workers  int
	eps      float64
	progress ProgressFunction
}

func New(s *scene.Scene, opts *Options) *Renderer {
	r := &Renderer{
		scene:   s,
		workers: runtime.NumCPU(),
		eps:     DefaultEpsilon,
	}
	if opts != nil {
		if opts.Workers > 0 {
			r.workers = opts.Workers
		}
		if opts.Epsilon > 0 {
			r.eps = opts.Epsilon
		}
		r.progress = opts.Progress
	}
	return r
}

func (r *Renderer) Scene() *scene.Scene {
	return r.scene
}

// Render traces every pixel of sink.  It stops scheduling rows once ctx is
// done and returns ctx.Err(); rows already started finish.
func (r *Renderer) Render(ctx context.Context, sink Sink) (Stats, error) {
	tracer := otel.Tracer("pinhole/render")
	var span trace.Span
	ctx, span = tracer.Start(ctx, "Renderer.Render")
	defer span.End()

	start := time.Now()

	w, h := sink.Size()
	span.SetAttributes(
		attribute.Int("width", w),
		attribute.Int("height", h),
		attribute.Int("workers", r.workers),
		attribute.Int("maxDepth", r.scene.MaxDepth()),
	)
	if w <= 0 || h <= 0 {
		err := fmt.Errorf("%w: %dx%d", ErrEmptyImage, w, h)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Stats{}, err
	}

	total := Stats{}
	done := 0
	// mu guards total and done.
	mu := sync.Mutex{}

	eg, egCtx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(r.workers))

	var schedErr error
	for y := 0; y < h; y++ {
		y := y

		if err := sem.Acquire(egCtx, 1); err != nil {
			schedErr = fmt.Errorf("while acquiring row semaphore: %w", err)
			break
		}

		eg.Go(func() error {
			defer sem.Release(1)
			if err := egCtx.Err(); err != nil {
				return err
			}

			rowStats := Stats{}
			r.renderRow(sink, y, w, h, &rowStats)

			mu.Lock()
			defer mu.Unlock()
			total.merge(&rowStats)
			done++
			if r.progress != nil {
				r.progress(done, h)
			}
			return nil
		})
	}

	waitErr := eg.Wait()
	total.Elapsed = time.Since(start)
	recordStats(ctx, total)

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return total, err
	}
	if waitErr != nil {
		err := fmt.Errorf("while waiting for completion of errgroup: %w", waitErr)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return total, err
	}
	if schedErr != nil {
		span.RecordError(schedErr)
		span.SetStatus(codes.Error, schedErr.Error())
		return total, schedErr
	}

	span.SetAttributes(attribute.Int64("rays", total.Total()))
	glog.V(1).Infof("Rendered %dx%d in %v: primary=%d reflected=%d refracted=%d shadow=%d depth=%d",
		w, h, total.Elapsed, total.Primary, total.Reflected, total.Refracted, total.Shadow, total.Depth)

	return total, nil
}

func (r *Renderer) renderRow(sink Sink, y, w, h int, st *Stats) {
	cam := r.scene.Camera()
	v := (float64(y) + 0.5) / float64(h)
	for x := 0; x < w; x++ {
		u := (float64(x) + 0.5) / float64(w)
		st.Primary++
		sink.Set(x, y, r.trace(cam.GetRay(u, v), 0, st))
	}
}

// TraceRay returns the color seen along q.  depth is the recursion level of
// q; primary rays are depth 0.
func (r *Renderer) TraceRay(q ray.Ray, depth int) rgb.Color {
	return r.trace(q, depth, &Stats{})
}

// Nearest returns the closest hit along q at t > 0.  Candidates are tested in
// scene order and the first one wins ties.
func (r *Renderer) Nearest(q ray.Ray) contact.Contact {
	hit := contact.ContactNaN()
	best := geometry.NoHit
	for i := 0; i < r.scene.NumCandidates(); i++ {
		t := r.scene.Candidate(i).Intersect(q)
		if t > 0 && t < best {
			best = t
			hit.T = t
			hit.Shape = i
		}
	}
	if hit.IsNaN() {
		return hit
	}

	hit.R = q
	hit.P = q.At(hit.T)
	hit.N = r.scene.Candidate(hit.Shape).NormalAt(hit.P)
	hit.Facing = hit.N
	if !hit.Entering() {
		hit.Facing = vec3.Neg(hit.N)
	}
	return hit
}

func (r *Renderer) trace(q ray.Ray, depth int, st *Stats) rgb.Color {
	if depth > st.Depth {
		st.Depth = depth
	}

	hit := r.Nearest(q)
	if hit.IsNaN() {
		return r.scene.Background()
	}

	m := r.scene.Candidate(hit.Shape).Material()

	st.Shadow++
	var c rgb.Color
	if r.Shadowed(hit) {
		c = r.scene.ShadowColor()
	} else {
		c = r.shade(hit)
	}

	if depth >= r.scene.MaxDepth() {
		return c
	}

	dir := vec3.Normalize(q.Direction)

	if m.Reflection > 0 {
		st.Reflected++
		refl := ray.Ray{
			Origin:    vec3.AddScaledVV(hit.P, r.eps, hit.Facing),
			Direction: vec3.Reflect(dir, hit.Facing),
		}
		c = rgb.Blend(c, r.trace(refl, depth+1, st), m.Reflection)
	}

	if m.Refraction > 0 {
		st.Refracted++
		eta := 1 / m.IOR()
		if !hit.Entering() {
			eta = m.IOR()
		}
		var refr ray.Ray
		if out, ok := vec3.Refract(dir, hit.Facing, eta); ok {
			refr = ray.Ray{
				Origin:    vec3.AddScaledVV(hit.P, -r.eps, hit.Facing),
				Direction: out,
			}
		} else {
			// Total internal reflection.
			refr = ray.Ray{
				Origin:    vec3.AddScaledVV(hit.P, r.eps, hit.Facing),
				Direction: vec3.Reflect(dir, hit.Facing),
			}
		}
		c = rgb.Blend(c, r.trace(refr, depth+1, st), m.Refraction)
	}

	return c
}

// Shadowed reports whether any candidate other than the one hit blocks the
// segment from hit toward the light.
func (r *Renderer) Shadowed(hit contact.Contact) bool {
	lp := r.scene.Light().Position
	if vec3.SubVV(lp, hit.P).Norm() <= r.eps {
		return false
	}

	seg := ray.Toward(hit.P, lp, r.eps)
	for i := 0; i < r.scene.NumCandidates(); i++ {
		if i == hit.Shape {
			continue
		}
		if seg.TheSegment.Contains(r.scene.Candidate(i).Intersect(seg.TheRay)) {
			return true
		}
	}
	return false
}

func (r *Renderer) shade(hit contact.Contact) rgb.Color {
	opts := r.scene.Options()
	lt := r.scene.Light()
	m := r.scene.Candidate(hit.Shape).Material()
	n := hit.Facing

	toLight := vec3.SubVV(lt.Position, hit.P)
	dist := toLight.Norm()
	l := vec3.DivVS(toLight, dist)

	c := rgb.Scale(m.Color, opts.Ambient)

	nl := vec3.IProd(n, l)
	if nl > 0 {
		c = rgb.Add(c, rgb.Scale(m.Color, nl))

		view := vec3.Normalize(vec3.SubVV(hit.R.Origin, hit.P))
		refl := vec3.Reflect(vec3.Neg(l), n)
		hl := math.Pow(math.Max(0, vec3.IProd(view, refl)), m.Shininess) * 255 * m.Specular
		c = rgb.Add(c, rgb.FromFloats(hl, hl, hl))
	}

	if opts.Falloff {
		c = rgb.Scale(c, lt.Falloff(dist, opts.FalloffGain))
	}
	if opts.Occlusion > 0 {
		c = rgb.Scale(c, 1-opts.Occlusion)
	}
	return c
}
