package ratelimit

import (
	"fmt"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestSixthRequestRejectedUntilWindowElapses(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	store := New(DefaultConfig(), WithClock(clock.Now))

	for i := 1; i <= DefaultCapacity; i++ {
		if ok, _ := store.Allow("10.0.0.1"); !ok {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	ok, retry := store.Allow("10.0.0.1")
	if ok {
		t.Fatalf("request %d should be rejected", DefaultCapacity+1)
	}
	if retry <= 0 || retry > DefaultWindow {
		t.Fatalf("unexpected retry-after %s", retry)
	}
	if ok, _ := store.Allow("10.0.0.2"); !ok {
		t.Fatalf("other identities have their own bucket")
	}

	clock.Advance(DefaultWindow)
	if ok, _ := store.Allow("10.0.0.1"); !ok {
		t.Fatalf("request after the window should be allowed")
	}
}

func TestDisabledStoreAllowsEverything(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	store := New(cfg)
	for i := 0; i < 50; i++ {
		if ok, _ := store.Allow("k"); !ok {
			t.Fatalf("disabled limiter rejected request %d", i)
		}
	}
	if store.Len() != 0 {
		t.Fatalf("disabled limiter must not allocate buckets")
	}
}

func TestConcurrentBucketCreation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capacity = 10
	store := New(cfg, WithClock(func() time.Time { return time.Unix(1_700_000_000, 0) }))

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if ok, _ := store.Allow(fmt.Sprintf("ip-%d", i%4)); ok {
				allowed.Add(1)
			}
		}(i)
	}
	wg.Wait()
	if store.Len() != 4 {
		t.Fatalf("expected 4 buckets, got %d", store.Len())
	}
	if allowed.Load() != 40 {
		t.Fatalf("expected exactly 40 allowed requests, got %d", allowed.Load())
	}
}

func TestClientIdentity(t *testing.T) {
	cases := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"remote addr", "192.0.2.10:5555", nil, "192.0.2.10"},
		{"trusted header", "192.0.2.10:5555", map[string]string{"CF-Connecting-IP": "203.0.113.7"}, "203.0.113.7"},
		{"forwarded for ignored", "192.0.2.10:5555", map[string]string{"X-Forwarded-For": "198.51.100.1"}, "192.0.2.10"},
		{"garbage trusted header", "192.0.2.10:5555", map[string]string{"CF-Connecting-IP": "not-an-ip"}, "192.0.2.10"},
		{"no port", "192.0.2.11", nil, "192.0.2.11"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/api/auth/login", nil)
			r.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIdentity(r, DefaultTrustedHeader); got != tc.want {
				t.Fatalf("ClientIdentity=%q want %q", got, tc.want)
			}
		})
	}
}
