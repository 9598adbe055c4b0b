package renderserver

import (
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pinhole/rendercache"
	"pinhole/scenepack"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func newTestHandler(t *testing.T, cfg Config) *Handler {
	t.Helper()
	if cfg.RendersPerSecond == 0 {
		cfg.RendersPerSecond = 1000
		cfg.Burst = 100
	}
	h, err := NewHandler(cfg)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return h
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", target, nil))
	return rec
}

func TestRenderPNG(t *testing.T) {
	h := newTestHandler(t, Config{Workers: 2})

	rec := get(h, "/render?scene=original&width=8&height=6")
	if rec.Code != http.StatusOK {
		t.Fatalf("Got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if _, err := uuid.Parse(rec.Header().Get("X-Render-Id")); err != nil {
		t.Errorf("X-Render-Id %q is not a uuid: %v", rec.Header().Get("X-Render-Id"), err)
	}

	im, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	if diff := cmp.Diff([]int{im.Bounds().Dx(), im.Bounds().Dy()}, []int{8, 6}); diff != "" {
		t.Errorf("Bad size; diff (-got +want)\n%s", diff)
	}
}

func TestBadRequests(t *testing.T) {
	h := newTestHandler(t, Config{MaxPixels: 100})

	for _, target := range []string{
		"/render?scene=nope",
		"/render?scene=original&width=0",
		"/render?scene=original&width=abc",
		"/render?scene=original&maxDepth=-1",
		"/render?scene=original&width=11&height=10",
	} {
		if rec := get(h, target); rec.Code != http.StatusBadRequest {
			t.Errorf("GET %s: got %d, want 400", target, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/render", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST: got %d, want 405", rec.Code)
	}
}

func TestOverflowingSizeRejected(t *testing.T) {
	h := newTestHandler(t, Config{})

	for _, target := range []string{
		"/render?scene=original&width=4294967296&height=4294967296",
		"/render?scene=original&width=9223372036854775807&height=2",
		"/render?scene=original&width=3037000500&height=3037000500",
	} {
		if rec := get(h, target); rec.Code != http.StatusBadRequest {
			t.Errorf("GET %s: got %d, want 400", target, rec.Code)
		}
	}

	// The handler is still usable afterwards.
	if rec := get(h, "/render?scene=original&width=2&height=2"); rec.Code != http.StatusOK {
		t.Errorf("Follow-up request: got %d, want 200", rec.Code)
	}
}

func TestDepthLimit(t *testing.T) {
	h := newTestHandler(t, Config{MaxDepthLimit: 3})

	if rec := get(h, "/render?scene=original&width=2&height=2&maxDepth=3"); rec.Code != http.StatusOK {
		t.Errorf("maxDepth at the limit: got %d, want 200", rec.Code)
	}
	for _, target := range []string{
		"/render?scene=original&width=2&height=2&maxDepth=4",
		"/render?scene=original&width=2&height=2&maxDepth=100000",
		// The default scene's own depth of 4 is over the limit too.
		"/render?scene=default&width=2&height=2",
	} {
		if rec := get(h, target); rec.Code != http.StatusBadRequest {
			t.Errorf("GET %s: got %d, want 400", target, rec.Code)
		}
	}

	// Zero means the built-in limit of 16.
	h = newTestHandler(t, Config{})
	if rec := get(h, "/render?scene=original&width=2&height=2&maxDepth=17"); rec.Code != http.StatusBadRequest {
		t.Errorf("maxDepth=17 with default limit: got %d, want 400", rec.Code)
	}
}

func TestThrottled(t *testing.T) {
	h := newTestHandler(t, Config{
		RendersPerSecond: 0.001,
		Burst:            1,
		QueueWait:        10 * time.Millisecond,
	})

	if rec := get(h, "/render?scene=original&width=4&height=3"); rec.Code != http.StatusOK {
		t.Fatalf("First request: got %d", rec.Code)
	}
	if rec := get(h, "/render?scene=original&width=4&height=3"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("Second request: got %d, want 429", rec.Code)
	}
}

func TestCache(t *testing.T) {
	cache, err := rendercache.Open(t.TempDir(), false)
	if err != nil {
		t.Fatalf("rendercache.Open: %v", err)
	}
	defer cache.Close()

	h := newTestHandler(t, Config{Cache: cache})

	first := get(h, "/render?scene=shadow&width=6&height=4")
	if first.Code != http.StatusOK || first.Header().Get("X-Render-Cache") != "miss" {
		t.Fatalf("First request: code=%d cache=%q", first.Code, first.Header().Get("X-Render-Cache"))
	}

	second := get(h, "/render?scene=shadow&width=6&height=4")
	if second.Code != http.StatusOK || second.Header().Get("X-Render-Cache") != "hit" {
		t.Fatalf("Second request: code=%d cache=%q", second.Code, second.Header().Get("X-Render-Cache"))
	}
	if diff := cmp.Diff(second.Body.Bytes(), first.Body.Bytes()); diff != "" {
		t.Errorf("Cached render differs; diff (-got +want)\n%s", diff)
	}

	deeper := get(h, "/render?scene=shadow&width=6&height=4&maxDepth=3")
	if deeper.Header().Get("X-Render-Cache") != "miss" {
		t.Errorf("Different depth should miss, got %q", deeper.Header().Get("X-Render-Cache"))
	}
}

func TestScenes(t *testing.T) {
	extra, err := scenepack.Parse("extra", []byte(`{
		"camera": {"lowerLeft": [-2, -1.5, -1], "horizontal": [4, 0, 0], "vertical": [0, 3, 0]},
		"light": {"position": [0, 0, 0]}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	h := newTestHandler(t, Config{Scenes: []*scenepack.Pack{extra}})

	rec := httptest.NewRecorder()
	h.ServeScenes(rec, httptest.NewRequest("GET", "/scenes", nil))
	got := []string{}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if diff := cmp.Diff(got, []string{"default", "extra", "original", "shadow"}); diff != "" {
		t.Errorf("Bad scene list; diff (-got +want)\n%s", diff)
	}

	if rec := get(h, "/render?scene=extra&width=2&height=2"); rec.Code != http.StatusOK {
		t.Errorf("Rendering extra scene: got %d", rec.Code)
	}
}
