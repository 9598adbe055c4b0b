// Package renderserver renders scenes to PNG over HTTP.
package renderserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"pinhole/rasterimage"
	"pinhole/render"
	"pinhole/rendercache"
	"pinhole/scenepack"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

const (
	defaultMaxPixels  = 4096 * 4096
	defaultRenderRate = 2.0
	defaultQueueWait  = 10 * time.Second
	defaultDepthLimit = 16
)

type Config struct {
	// RendersPerSecond and Burst bound how often renders start.
	RendersPerSecond float64
	Burst            int

	// QueueWait is how long a request may wait for the limiter before it is
	// turned away with 429.
	QueueWait time.Duration

	// MaxPixels caps width*height.  It is itself capped at
	// rasterimage.MaxPixels.
	MaxPixels int

	// MaxDepthLimit caps the recursion depth a request may ask for,
	// including a scene's own default.  Zero means 16.
	MaxDepthLimit int

	Workers int

	// Cache is optional.
	Cache *rendercache.Cache

	// Scenes are served in addition to the built-ins, replacing any built-in
	// of the same name.
	Scenes []*scenepack.Pack
}

type Handler struct {
	limiter   *rate.Limiter
	queueWait time.Duration
	maxPixels int
	maxDepth  int
	workers   int
	cache     *rendercache.Cache

	packs map[string]*scenepack.Pack
}

func NewHandler(cfg Config) (*Handler, error) {
	h := &Handler{
		queueWait: cfg.QueueWait,
		maxPixels: cfg.MaxPixels,
		maxDepth:  cfg.MaxDepthLimit,
		workers:   cfg.Workers,
		cache:     cfg.Cache,
		packs:     map[string]*scenepack.Pack{},
	}
	if h.queueWait <= 0 {
		h.queueWait = defaultQueueWait
	}
	if h.maxPixels <= 0 {
		h.maxPixels = defaultMaxPixels
	}
	if h.maxPixels > rasterimage.MaxPixels {
		h.maxPixels = rasterimage.MaxPixels
	}
	if h.maxDepth <= 0 {
		h.maxDepth = defaultDepthLimit
	}

	perSecond := cfg.RendersPerSecond
	if perSecond <= 0 {
		perSecond = defaultRenderRate
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	h.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)

	for _, name := range scenepack.Names() {
		p, err := scenepack.Builtin(name)
		if err != nil {
			return nil, fmt.Errorf("while loading builtin scene %q: %w", name, err)
		}
		h.packs[name] = p
	}
	for _, p := range cfg.Scenes {
		h.packs[p.Name] = p
	}

	return h, nil
}

// SceneNames lists the scenes the handler can render.
func (h *Handler) SceneNames() []string {
	names := make([]string, 0, len(h.packs))
	for n := range h.packs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ServeScenes answers with a JSON list of scene names.
func (h *Handler) ServeScenes(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(h.SceneNames()); err != nil {
		glog.Errorf("Error writing scene list: %v", err)
	}
}

type renderRequest struct {
	pack          *scenepack.Pack
	width, height int
	maxDepth      int
}

func (h *Handler) parseRequest(r *http.Request) (*renderRequest, error) {
	q := r.URL.Query()

	name := q.Get("scene")
	if name == "" {
		name = "default"
	}
	pack, ok := h.packs[name]
	if !ok {
		return nil, fmt.Errorf("unknown scene %q", name)
	}

	req := &renderRequest{
		pack:     pack,
		width:    pack.Width,
		height:   pack.Height,
		maxDepth: pack.Scene.MaxDepth(),
	}

	for _, f := range []struct {
		key string
		dst *int
		min int
	}{
		{"width", &req.width, 1},
		{"height", &req.height, 1},
		{"maxDepth", &req.maxDepth, 0},
	} {
		s := q.Get(f.key)
		if s == "" {
			continue
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.key, err)
		}
		if v < f.min {
			return nil, fmt.Errorf("%s must be at least %d", f.key, f.min)
		}
		*f.dst = v
	}

	// Divide rather than multiply so huge dimensions cannot wrap around.
	if req.width > h.maxPixels/req.height {
		return nil, fmt.Errorf("image of %dx%d exceeds %d pixels", req.width, req.height, h.maxPixels)
	}
	if req.maxDepth > h.maxDepth {
		return nil, fmt.Errorf("maxDepth %d exceeds limit of %d", req.maxDepth, h.maxDepth)
	}
	return req, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tracer := otel.Tracer("pinhole/renderserver")
	ctx, span := tracer.Start(r.Context(), "Handler.ServeHTTP")
	defer span.End()

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := h.parseRequest(r)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		http.Error(w, fmt.Sprintf("bad request: %v", err), http.StatusBadRequest)
		return
	}

	renderID := uuid.New().String()
	w.Header().Set("X-Render-Id", renderID)
	span.SetAttributes(
		attribute.String("renderID", renderID),
		attribute.String("scene", req.pack.Name),
		attribute.Int("width", req.width),
		attribute.Int("height", req.height),
		attribute.Int("maxDepth", req.maxDepth),
	)

	im, cacheState, err := h.render(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		switch {
		case errors.Is(err, errThrottled):
			http.Error(w, "too many renders in flight, try again later", http.StatusTooManyRequests)
		case errors.Is(err, context.Canceled):
			// The client went away.
		default:
			glog.Errorf("Error rendering %s (id=%s): %v", req.pack.Name, renderID, err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	if cacheState != "" {
		w.Header().Set("X-Render-Cache", cacheState)
	}

	buf := &bytes.Buffer{}
	if err := rasterimage.WritePNG(im, buf); err != nil {
		glog.Errorf("Error encoding %s (id=%s): %v", req.pack.Name, renderID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		glog.Errorf("Error writing response (id=%s): %v", renderID, err)
	}
}

var errThrottled = errors.New("render rate exceeded")

func (h *Handler) render(ctx context.Context, req *renderRequest) (*rasterimage.Image, string, error) {
	var fp rendercache.Fingerprint
	cacheState := ""
	if h.cache != nil {
		var err error
		fp, err = rendercache.ComputeFingerprint(req.pack.Description, req.width, req.height, req.maxDepth)
		if err != nil {
			return nil, "", fmt.Errorf("while fingerprinting scene: %w", err)
		}
		im, found, err := h.cache.Get(fp)
		if err != nil {
			glog.Warningf("Ignoring cache read error for %s: %v", fp, err)
		} else if found {
			return im, "hit", nil
		}
		cacheState = "miss"
	}

	waitCtx, cancel := context.WithTimeout(ctx, h.queueWait)
	defer cancel()
	if err := h.limiter.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", fmt.Errorf("%w: %v", errThrottled, err)
	}

	sc := req.pack.Scene
	if req.maxDepth != sc.MaxDepth() {
		var err error
		sc, err = sc.WithMaxDepth(req.maxDepth)
		if err != nil {
			return nil, "", err
		}
	}

	im, err := rasterimage.NewChecked(req.width, req.height)
	if err != nil {
		return nil, "", err
	}
	if _, err := render.New(sc, &render.Options{Workers: h.workers}).Render(ctx, im); err != nil {
		return nil, "", fmt.Errorf("while rendering: %w", err)
	}

	if h.cache != nil {
		if _, err := h.cache.Put(fp, im); err != nil {
			glog.Warningf("Ignoring cache write error for %s: %v", fp, err)
		}
	}
	return im, cacheState, nil
}
