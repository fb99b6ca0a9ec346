package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSelfPinger_Ping(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	p := &SelfPinger{URL: ts.URL + "/"}
	assert.NoError(t, p.Ping(context.Background()))
	assert.Equal(t, int32(1), hits.Load())
}

func TestSelfPinger_PingBadStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()
	err := (&SelfPinger{URL: ts.URL}).Ping(context.Background())
	assert.ErrorContains(t, err, "status 502")
}

func TestSelfPinger_RunTicksUntilCancel(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		(&SelfPinger{URL: ts.URL, Interval: 5 * time.Millisecond}).Run(ctx)
		close(done)
	}()
	assert.Eventually(t, func() bool { return hits.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestSelfPinger_RunWithoutURLReturns(t *testing.T) {
	(&SelfPinger{}).Run(context.Background())
}
