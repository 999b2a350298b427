package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProber_ReachableServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewProber(time.Second)
	assert.True(t, p.IsReachable(context.Background(), srv.URL))
}

func TestProber_ErrorStatusStillCountsAsReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewProber(time.Second)
	assert.True(t, p.IsReachable(context.Background(), srv.URL))
}

func TestProber_FallsBackToGetWhenHeadHangsUp(t *testing.T) {
	var gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			// Kill the connection so HEAD fails at the transport level
			hj, ok := w.(http.Hijacker)
			if ok {
				conn, _, _ := hj.Hijack()
				conn.Close()
			}
			return
		}
		gets.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewProber(time.Second)
	assert.True(t, p.IsReachable(context.Background(), srv.URL))
	assert.Equal(t, int32(1), gets.Load())
}

func TestProber_NegativeCacheSuppressesRedial(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	url := srv.URL
	srv.Close()

	p := NewProber(200 * time.Millisecond)

	assert.False(t, p.IsReachable(context.Background(), url))
	assert.False(t, p.IsReachable(context.Background(), url), "second probe must come from the negative cache")
	assert.Equal(t, int32(0), hits.Load())
}

func TestProber_ForgetClearsNegativeCache(t *testing.T) {
	p := NewProber(200 * time.Millisecond)

	dead := "http://127.0.0.1:1"
	assert.False(t, p.IsReachable(context.Background(), dead))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// The dead URL stays cached, but a different live URL probes fine
	assert.False(t, p.IsReachable(context.Background(), dead))
	assert.True(t, p.IsReachable(context.Background(), srv.URL))

	p.Forget(dead)
	// Forgotten entries are re-dialled (still dead here)
	assert.False(t, p.IsReachable(context.Background(), dead))
}

func TestProber_EmptyURL(t *testing.T) {
	p := NewProber(time.Second)
	assert.False(t, p.IsReachable(context.Background(), ""))
}
