// Package ratelimit provides per-client token buckets for the authentication
// endpoints.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultCapacity      = 5
	DefaultWindow        = time.Minute
	DefaultTrustedHeader = "CF-Connecting-IP"
)

// Config holds the bucket parameters. A bucket holds Capacity tokens and
// refills completely over Window.
type Config struct {
	Enabled       bool
	Capacity      int
	Window        time.Duration
	TrustedHeader string
}

// DefaultConfig returns the limits used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		Capacity:      DefaultCapacity,
		Window:        DefaultWindow,
		TrustedHeader: DefaultTrustedHeader,
	}
}

// Store owns one bucket per client identity. Buckets are created on first use
// and live as long as the Store. The state is process-local.
type Store struct {
	cfg   Config
	limit rate.Limit
	now   func() time.Time

	mu      sync.RWMutex
	buckets map[string]*rate.Limiter
}

// Option configures Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// New constructs a Store. Non-positive capacity or window fall back to defaults.
func New(cfg Config, opts ...Option) *Store {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	s := &Store{
		cfg:     cfg,
		limit:   rate.Limit(float64(cfg.Capacity) / cfg.Window.Seconds()),
		now:     time.Now,
		buckets: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective configuration.
func (s *Store) Config() Config { return s.cfg }

// Enabled reports whether requests are being limited at all.
func (s *Store) Enabled() bool { return s != nil && s.cfg.Enabled }

// Allow consumes one token from key's bucket. When the bucket is empty it
// returns false and the time until the next token is available.
func (s *Store) Allow(key string) (bool, time.Duration) {
	if !s.Enabled() {
		return true, 0
	}
	now := s.now()
	lim := s.bucket(key)
	if lim.AllowN(now, 1) {
		return true, 0
	}
	missing := 1 - lim.TokensAt(now)
	wait := time.Duration(missing / float64(s.limit) * float64(time.Second))
	if wait < time.Second {
		wait = time.Second
	}
	return false, wait
}

// Len returns the number of live buckets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buckets)
}

func (s *Store) bucket(key string) *rate.Limiter {
	s.mu.RLock()
	lim, ok := s.buckets[key]
	s.mu.RUnlock()
	if ok {
		return lim
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if lim, ok := s.buckets[key]; ok {
		return lim
	}
	lim = rate.NewLimiter(s.limit, s.cfg.Capacity)
	s.buckets[key] = lim
	return lim
}

// Identity resolves the client key for r using the store's trusted header.
func (s *Store) Identity(r *http.Request) string {
	return ClientIdentity(r, s.cfg.TrustedHeader)
}

// ClientIdentity returns the value of trustedHeader when present, otherwise
// the host part of the transport remote address. X-Forwarded-For is ignored.
func ClientIdentity(r *http.Request, trustedHeader string) string {
	if trustedHeader != "" {
		if v := strings.TrimSpace(r.Header.Get(trustedHeader)); v != "" {
			if ip := net.ParseIP(v); ip != nil {
				return ip.String()
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return "unknown"
	}
	return host
}
