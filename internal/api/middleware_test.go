package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	a := newTestAPI(t)
	a.mock.ExpectPing()
	w, _ := a.do(t, "GET", "/api/health", "")
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)

	a.mock.ExpectPing()
	req := httptest.NewRequest("GET", "/api/health", nil)
	req.Header.Set(RequestIDHeader, "abc123")
	w, _ = a.serve(t, req)
	assert.Equal(t, "abc123", w.Header().Get(RequestIDHeader))
}

func TestRecovery(t *testing.T) {
	a := newTestAPI(t)
	var seen string
	h := a.requestID(a.recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		panic("kaboom")
	})))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/invoices", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success":false,"message":"internal server error","data":null}`, w.Body.String())
	assert.NotEmpty(t, seen)
}

func TestDrainRejectsNewRequests(t *testing.T) {
	a := newTestAPI(t)
	require.NoError(t, a.Drain(context.Background()))
	w, resp := a.do(t, "GET", "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "server is shutting down", resp.Message)
	assert.NoError(t, a.mock.ExpectationsWereMet())
}

func TestDrainWaitsForInflight(t *testing.T) {
	a := newTestAPI(t)
	started := make(chan struct{})
	release := make(chan struct{})
	h := a.track(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusNoContent)
	}))
	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(w, httptest.NewRequest("GET", "/api/invoices", nil))
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, a.Drain(ctx), context.DeadlineExceeded)

	close(release)
	<-done
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NoError(t, a.Drain(context.Background()))
}
