package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopmonkeyus/procure/internal"
	"github.com/shopmonkeyus/procure/internal/util"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-Id"

type contextKey string

const ctxRequestID contextKey = "requestID"

// RequestID returns the request id stored in ctx.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxRequestID).(string); ok {
		return v
	}
	return ""
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(buf []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(buf)
}

func (a *API) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxRequestID, id)))
	})
}

func (a *API) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}
		defer func() {
			if rec := recover(); rec != nil {
				a.logger.Error("%s %s (%s) panic: %+v", r.Method, r.URL.Path, RequestID(r.Context()), util.PanicError(rec))
				if sw.status == 0 {
					sendError(sw, http.StatusInternalServerError, "internal server error")
				}
			}
		}()
		next.ServeHTTP(sw, r)
	})
}

// track rejects new requests once draining has started and counts the rest so Drain can wait for them.
func (a *API) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.lock.Lock()
		if a.draining {
			a.lock.Unlock()
			w.Header().Set("Connection", "close")
			sendError(w, http.StatusServiceUnavailable, "server is shutting down")
			return
		}
		a.inflight.Add(1)
		a.lock.Unlock()
		defer a.inflight.Done()
		internal.InflightRequests.Inc()
		defer internal.InflightRequests.Dec()
		next.ServeHTTP(w, r)
	})
}

func (a *API) metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}
		internal.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		internal.HTTPDuration.Observe(time.Since(started).Seconds())
		a.logger.Trace("%s %s %d %v (%s)", r.Method, r.URL.Path, status, time.Since(started), RequestID(r.Context()))
	})
}

// Drain stops accepting requests and waits for the in-flight ones to finish or ctx to be done.
func (a *API) Drain(ctx context.Context) error {
	a.lock.Lock()
	a.draining = true
	a.lock.Unlock()
	done := make(chan struct{})
	go func() {
		a.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.logger.Debug("in-flight requests drained")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

