// Package healthz serves liveness and readiness checks.
package healthz

import (
	"net/http"
	"sync/atomic"
)

// Handler always answers 200 OK.  It backs /healthz.
type Handler struct {
}

func New() *Handler {
	return &Handler{}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("200 OK"))
}

// Readiness answers 503 until SetReady(true) is called.  It backs /readyz.
type Readiness struct {
	ready atomic.Bool
}

func NewReadiness() *Readiness {
	return &Readiness{}
}

func (h *Readiness) SetReady(ready bool) {
	h.ready.Store(ready)
}

func (h *Readiness) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		http.Error(w, "503 not ready", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("200 OK"))
}
