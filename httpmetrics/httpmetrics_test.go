package httpmetrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.opencensus.io/stats/view"
)

func TestCountsRequests(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("hi"))
	})

	h := New("test", inner)
	if err := h.RegisterMetrics(); err != nil {
		t.Fatalf("RegisterMetrics: %v", err)
	}
	defer h.UnregisterMetrics()

	for _, path := range []string{"/a", "/a", "/missing"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
	}

	rows, err := view.RetrieveData("test/requests")
	if err != nil {
		t.Fatalf("RetrieveData: %v", err)
	}

	got := map[string]int64{}
	for _, row := range rows {
		key := ""
		for _, tg := range row.Tags {
			key += tg.Key.Name() + "=" + tg.Value + ";"
		}
		got[key] = row.Data.(*view.CountData).Value
	}

	want := map[string]int64{
		"path=/a;status=200;":       2,
		"path=/missing;status=404;": 1,
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("Bad counts; diff (-got +want)\n%s", diff)
	}
}

func TestPassesThroughResponse(t *testing.T) {
	h := New("passthrough", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Test", "1")
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusTeapot || rec.Header().Get("X-Test") != "1" {
		t.Errorf("Got code=%d header=%q", rec.Code, rec.Header().Get("X-Test"))
	}
}
