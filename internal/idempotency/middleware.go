package idempotency

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/flywheel-gateway/control-plane/internal/httperror"
)

const headerKey = "Idempotency-Key"
const headerReplayed = "X-Idempotent-Replayed"

// MiddlewareConfig configures which requests the middleware gates (spec
// §4.3 "Scope of application" and §6.3 idempotency.methods /
// idempotency.excludePaths).
type MiddlewareConfig struct {
	Methods      map[string]bool
	ExcludePaths []string
}

// DefaultMiddlewareConfig matches spec §6.3's defaults: POST, PUT, PATCH
// gated, no excluded paths.
func DefaultMiddlewareConfig() MiddlewareConfig {
	return MiddlewareConfig{
		Methods: map[string]bool{http.MethodPost: true, http.MethodPut: true, http.MethodPatch: true},
	}
}

func (cfg MiddlewareConfig) excluded(path string) bool {
	for _, prefix := range cfg.ExcludePaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Middleware implements spec §4.3's decision table as standard
// net/http middleware, usable with chi's router.Use.
func Middleware(cache *Cache, cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Methods[r.Method] || cfg.excluded(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(headerKey)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) < 8 || len(key) > 256 {
				httperror.Write(w, http.StatusBadRequest, "INVALID_IDEMPOTENCY_KEY", "Idempotency-Key must be 8..256 characters", "recoverable")
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				httperror.Write(w, http.StatusBadRequest, "INVALID_IDEMPOTENCY_KEY", "failed to read request body", "recoverable")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
			r.Header.Set("Content-Length", strconv.Itoa(len(body)))
			r.Header.Del("Content-Encoding")
			r.Header.Del("Transfer-Encoding")

			fingerprint := Fingerprint(r.Method, r.URL.Path, body)

			if serveFromCache(w, cache, key, fingerprint) {
				return
			}

			leader, ok := cache.Begin(key, fingerprint)
			if !ok {
				// Lost the race, or a record/pending appeared between
				// our miss and Begin; resolve it the same way.
				if serveFromCache(w, cache, key, fingerprint) {
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			rec := captureResponse(next, w, r, key, r.Method, r.URL.Path, fingerprint)
			if cacheable(rec.Status) {
				cache.Resolve(key, rec)
			} else {
				cache.Reject(key)
			}
		})
	}
}

// serveFromCache resolves a replay or mismatch without invoking the
// downstream handler; it returns true if it fully handled the request.
func serveFromCache(w http.ResponseWriter, cache *Cache, key, fingerprint string) bool {
	outcome, rec, pending := cache.Lookup(key, fingerprint)
	switch outcome {
	case OutcomeReplay:
		writeReplay(w, rec)
		return true
	case OutcomeMismatch:
		httperror.Write(w, http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_MISMATCH", "idempotency key reused with a different request body", "recoverable")
		return true
	case OutcomePendingWait:
		rec, ok := cache.AwaitPending(pending)
		if !ok {
			return false // leader rejected; caller retries as fresh
		}
		writeReplay(w, rec)
		return true
	default:
		return false
	}
}

func writeReplay(w http.ResponseWriter, rec *Record) {
	for name, values := range rec.Headers {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.Header().Set(headerReplayed, "true")
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}

// cacheable reports whether a status is eligible for caching (spec
// §4.3 "Only responses with status in [200,300) ∪ [400,500)").
func cacheable(status int) bool {
	return (status >= 200 && status < 300) || (status >= 400 && status < 500)
}

// recordingWriter buffers the downstream handler's response so it can
// be cached and replayed verbatim.
type recordingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (rw *recordingWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

func captureResponse(next http.Handler, w http.ResponseWriter, r *http.Request, key, method, path, fingerprint string) *Record {
	rw := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
	next.ServeHTTP(rw, r)

	return &Record{
		Key:         key,
		Method:      method,
		Path:        path,
		Status:      rw.status,
		Headers:     cacheableHeaders(rw.Header()),
		Body:        rw.body.Bytes(),
		Fingerprint: fingerprint,
	}
}

// cacheableHeaders restricts cached headers to Content-Type and any
// X-prefixed header, excluding X-Idempotent-* (spec §4.3).
func cacheableHeaders(h http.Header) http.Header {
	out := make(http.Header)
	for name, values := range h {
		lower := strings.ToLower(name)
		if lower == "content-type" || (strings.HasPrefix(lower, "x-") && !strings.HasPrefix(lower, "x-idempotent-")) {
			out[name] = values
		}
	}
	return out
}
