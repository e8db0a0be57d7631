package serve

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/ValentinKolb/refmap/lib/refmap"
)

// Max accepted size of a value in a PUT request
const maxValueSize = 64 << 20

// handler exposes a map of byte values over HTTP
type handler struct {
	cache refmap.RefMap[string, []byte]
}

// NewHandler creates the HTTP api of a map:
//
//	GET    /kv/{key}  value of key (404 if absent)
//	PUT    /kv/{key}  store the request body under key
//	DELETE /kv/{key}  remove key (404 if absent)
//	GET    /kv        JSON array of all keys
//	POST   /reclaim   run one reclaim cycle
//	POST   /pressure  signal memory pressure
//	GET    /info      JSON encoded refmap.Info
//	GET    /metrics   metrics in Prometheus text format
//
// With debug set every request is logged.
func NewHandler(cache refmap.RefMap[string, []byte], debug bool) http.Handler {
	h := &handler{cache: cache}

	wrap := func(fn http.HandlerFunc) http.HandlerFunc {
		if debug {
			return loggerMiddleware(fn)
		}
		return fn
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /kv/{key}", wrap(h.handleGet))
	mux.HandleFunc("PUT /kv/{key}", wrap(h.handlePut))
	mux.HandleFunc("DELETE /kv/{key}", wrap(h.handleDelete))
	mux.HandleFunc("GET /kv", wrap(h.handleKeys))
	mux.HandleFunc("POST /reclaim", wrap(h.handleReclaim))
	mux.HandleFunc("POST /pressure", wrap(h.handlePressure))
	mux.HandleFunc("GET /info", wrap(h.handleInfo))
	mux.HandleFunc("GET /metrics", wrap(h.handleMetrics))
	return mux
}

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

func (h *handler) handleGet(w http.ResponseWriter, r *http.Request) {
	value, ok := h.cache.Get(r.PathValue("key"))
	if !ok {
		http.Error(w, "Key not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := w.Write(value); err != nil {
		Logger.Warningf("failed to write response: %v", err)
	}
}

func (h *handler) handlePut(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	value, err := io.ReadAll(io.LimitReader(r.Body, maxValueSize+1))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusInternalServerError)
		return
	}
	if len(value) > maxValueSize {
		http.Error(w, "Value too large", http.StatusRequestEntityTooLarge)
		return
	}

	_, loaded, err := h.cache.Put(r.PathValue("key"), value)
	switch {
	case errors.Is(err, refmap.ErrClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
	case loaded:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusCreated)
	}
}

func (h *handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.cache.Remove(r.PathValue("key")); !ok {
		http.Error(w, "Key not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleKeys(w http.ResponseWriter, _ *http.Request) {
	keys := h.cache.Keys()
	sort.Strings(keys)
	writeJSON(w, keys)
}

func (h *handler) handleReclaim(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]int{"reclaimed": h.cache.Reclaim()})
}

func (h *handler) handlePressure(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]int{"reclaimed": h.cache.SignalPressure()})
}

func (h *handler) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.cache.Info())
}

func (h *handler) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	h.cache.WritePrometheus(w)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Logger.Warningf("failed to encode response: %v", err)
	}
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create custom response writer to capture status code
		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	}
}
