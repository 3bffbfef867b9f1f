package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonitor_FiresOnlyOnTransition(t *testing.T) {
	m := NewMonitor(false)
	var got []bool
	m.Subscribe(func(online bool) { got = append(got, online) })

	m.Set(false)
	m.Set(true)
	m.Set(true)
	m.Set(false)

	assert.Equal(t, []bool{true, false}, got)
	assert.False(t, m.Online())
}

func TestMonitor_Unsubscribe(t *testing.T) {
	m := NewMonitor(true)
	calls := 0
	unsub := m.Subscribe(func(bool) { calls++ })

	m.Set(false)
	unsub()
	m.Set(true)

	assert.Equal(t, 1, calls)
	assert.True(t, m.Online())
}

func TestProber(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" || !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewProber(srv.URL, time.Second, nil)
	assert.True(t, p.Probe(context.Background()))

	healthy.Store(false)
	assert.False(t, p.Probe(context.Background()))
}

func TestProber_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewProber(url, 200*time.Millisecond, nil)
	assert.False(t, p.Probe(context.Background()))
}

func TestProber_WatchUpdatesMonitor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMonitor(false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewProber(srv.URL, time.Second, nil).Watch(ctx, m, 10*time.Millisecond)

	assert.Eventually(t, m.Online, time.Second, 10*time.Millisecond)
}
