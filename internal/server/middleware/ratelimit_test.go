package middleware

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock управляемое время для лимитера
type fakeClock struct {
	t  time.Time
	mu sync.Mutex
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClockedLimiter(t *testing.T, rate int, window time.Duration) (*RateLimiter, *fakeClock) {
	t.Helper()
	rl := NewRateLimiter(rate, window, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(rl.Stop)

	clock := newFakeClock()
	rl.now = clock.Now
	return rl, clock
}

func TestRateLimiter_BurstThenDeny(t *testing.T) {
	rl, _ := newClockedLimiter(t, 3, time.Minute)

	for i := 0; i < 3; i++ {
		ok, wait := rl.Allow("10.1.1.1")
		require.True(t, ok, "request %d", i+1)
		assert.Zero(t, wait)
	}

	ok, wait := rl.Allow("10.1.1.1")
	assert.False(t, ok)
	assert.Equal(t, 20*time.Second, wait, "one token per window/rate")
}

func TestRateLimiter_ContinuousRefill(t *testing.T) {
	rl, clock := newClockedLimiter(t, 2, time.Minute)

	rl.Allow("k")
	rl.Allow("k")
	ok, wait := rl.Allow("k")
	require.False(t, ok)
	assert.Equal(t, 30*time.Second, wait)

	clock.Advance(10 * time.Second)
	ok, wait = rl.Allow("k")
	assert.False(t, ok)
	assert.Equal(t, 20*time.Second, wait, "elapsed time shortens the wait")

	clock.Advance(20 * time.Second)
	ok, _ = rl.Allow("k")
	assert.True(t, ok, "one token is back after window/rate")
	ok, _ = rl.Allow("k")
	assert.False(t, ok, "only one token was refilled")

	clock.Advance(5 * time.Minute)
	for i := 0; i < 2; i++ {
		ok, _ = rl.Allow("k")
		assert.True(t, ok)
	}
	ok, _ = rl.Allow("k")
	assert.False(t, ok, "refill is capped at rate")
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl, _ := newClockedLimiter(t, 1, time.Minute)

	ok, _ := rl.Allow("alice")
	assert.True(t, ok)
	ok, _ = rl.Allow("alice")
	assert.False(t, ok)

	ok, _ = rl.Allow("bob")
	assert.True(t, ok)
}

func TestRateLimiter_NonPositiveRate(t *testing.T) {
	rl, _ := newClockedLimiter(t, 0, time.Minute)

	ok, _ := rl.Allow("x")
	assert.True(t, ok, "rate is clamped to one request per window")
	ok, wait := rl.Allow("x")
	assert.False(t, ok)
	assert.Equal(t, time.Minute, wait)
}

func TestRateLimiter_ConcurrentAllow(t *testing.T) {
	rl, _ := newClockedLimiter(t, 25, time.Hour)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := rl.Allow("shared"); ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(25), allowed.Load())
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl, clock := newClockedLimiter(t, 5, time.Minute)

	rl.Allow("old-1")
	rl.Allow("old-2")
	clock.Advance(40 * time.Second)
	for i := 0; i < 5; i++ {
		rl.Allow("fresh")
	}

	clock.Advance(30 * time.Second)
	assert.Equal(t, 2, rl.sweep())

	rl.mu.Lock()
	_, freshKept := rl.tat["fresh"]
	left := len(rl.tat)
	rl.mu.Unlock()

	assert.True(t, freshKept)
	assert.Equal(t, 1, left)
}

func TestRateLimiter_Stop(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		wait time.Duration
		want string
	}{
		{wait: 0, want: "1"},
		{wait: 200 * time.Millisecond, want: "1"},
		{wait: 20 * time.Second, want: "20"},
		{wait: 20*time.Second + time.Millisecond, want: "21"},
	}

	for _, tt := range tests {
		t.Run(tt.wait.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, retryAfterSeconds(tt.wait))
		})
	}
}

func TestClientIP(t *testing.T) {
	proxies := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8"), netip.MustParsePrefix("::1/128")}

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		trusted    []netip.Prefix
		want       string
	}{
		{
			name:       "headers ignored without trusted proxies",
			remoteAddr: "198.51.100.9:443",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5", "X-Real-IP": "203.0.113.6"},
			want:       "198.51.100.9",
		},
		{
			name:       "headers ignored from untrusted peer",
			remoteAddr: "198.51.100.9:443",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5"},
			trusted:    proxies,
			want:       "198.51.100.9",
		},
		{
			name:       "trusted proxy forwards client",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5"},
			trusted:    proxies,
			want:       "203.0.113.5",
		},
		{
			name:       "spoofed left hop is skipped",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Forwarded-For": "1.2.3.4, 203.0.113.5, 10.0.0.2"},
			trusted:    proxies,
			want:       "203.0.113.5",
		},
		{
			name:       "real ip from trusted proxy",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Real-IP": "198.51.100.7"},
			trusted:    proxies,
			want:       "198.51.100.7",
		},
		{
			name:       "only trusted hops",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Forwarded-For": "10.0.0.3, 10.0.0.2"},
			trusted:    proxies,
			want:       "10.0.0.1",
		},
		{
			name:       "ipv6 loopback proxy",
			remoteAddr: "[::1]:8000",
			headers:    map[string]string{"X-Forwarded-For": "2001:db8::7"},
			trusted:    proxies,
			want:       "2001:db8::7",
		},
		{
			name:       "not host:port",
			remoteAddr: "@unix",
			trusted:    proxies,
			want:       "@unix",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/users/login", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req, tt.trusted))
		})
	}
}

func TestPathRateLimiter_Middleware(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	clock := newFakeClock()
	limiter := NewPathRateLimiter([]PathRateLimit{
		{Method: http.MethodPost, Path: "/users/login", Rate: 2, Window: time.Minute},
		{Method: http.MethodPost, Path: "/users/", Rate: 1, Window: time.Minute},
	}, logger, WithLimiterClock(clock.Now))
	t.Cleanup(limiter.Stop)

	var reached atomic.Int32
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached.Add(1)
		w.WriteHeader(http.StatusOK)
	}))

	send := func(method, path, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = ip + ":40000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	t.Run("login limit", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, send(http.MethodPost, "/users/login", "192.0.2.1").Code)
		assert.Equal(t, http.StatusOK, send(http.MethodPost, "/users/login", "192.0.2.1").Code)

		w := send(http.MethodPost, "/users/login", "192.0.2.1")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.Equal(t, "30", w.Header().Get("Retry-After"))
		assert.JSONEq(t, `{"error":"Too Many Requests","detail":"rate limit exceeded, please try again later"}`, w.Body.String())

		assert.Equal(t, http.StatusOK, send(http.MethodPost, "/users/login", "192.0.2.2").Code, "other client")
	})

	t.Run("allowed again after interval", func(t *testing.T) {
		clock.Advance(30 * time.Second)
		assert.Equal(t, http.StatusOK, send(http.MethodPost, "/users/login", "192.0.2.1").Code)
		assert.Equal(t, http.StatusTooManyRequests, send(http.MethodPost, "/users/login", "192.0.2.1").Code)
	})

	t.Run("trailing slash shares the limit", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, send(http.MethodPost, "/users", "192.0.2.3").Code)
		assert.Equal(t, http.StatusTooManyRequests, send(http.MethodPost, "/users/", "192.0.2.3").Code)
	})

	t.Run("unlisted routes pass", func(t *testing.T) {
		before := reached.Load()
		for i := 0; i < 10; i++ {
			assert.Equal(t, http.StatusOK, send(http.MethodGet, "/users/me", "192.0.2.1").Code)
			assert.Equal(t, http.StatusOK, send(http.MethodGet, "/users/", "192.0.2.3").Code)
		}
		assert.Equal(t, before+20, reached.Load())
	})

	out := logBuf.String()
	assert.Contains(t, out, "Rate limit exceeded")
	assert.Contains(t, out, "ip=192.0.2.1")
	assert.Contains(t, out, "path=/users/login")
	assert.Contains(t, out, "retry_after=30s")
}

func TestPathRateLimiter_RotatingForwardedFor(t *testing.T) {
	limits := []PathRateLimit{{Method: http.MethodPost, Path: "/users/login", Rate: 2, Window: time.Minute}}

	tests := []struct {
		name       string
		trusted    []netip.Prefix
		remoteAddr string
		wantCodes  []int
	}{
		{
			name:       "direct client cannot spoof",
			remoteAddr: "198.51.100.20:5555",
			wantCodes:  []int{200, 200, 429, 429, 429, 429},
		},
		{
			name:       "untrusted peer with proxies configured",
			trusted:    []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")},
			remoteAddr: "198.51.100.20:5555",
			wantCodes:  []int{200, 200, 429, 429, 429, 429},
		},
		{
			name:       "trusted proxy forwards distinct clients",
			trusted:    []netip.Prefix{netip.MustParsePrefix("127.0.0.0/8")},
			remoteAddr: "127.0.0.1:5555",
			wantCodes:  []int{200, 200, 200, 200, 200, 200},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			limiter := NewPathRateLimiter(limits, discardLogger(), WithLimiterClock(clock.Now), WithTrustedProxies(tt.trusted))
			t.Cleanup(limiter.Stop)

			handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			var codes []int
			for i := range tt.wantCodes {
				req := httptest.NewRequest(http.MethodPost, "/users/login", nil)
				req.RemoteAddr = tt.remoteAddr
				req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)
				codes = append(codes, w.Code)
			}
			require.Equal(t, tt.wantCodes, codes)
		})
	}
}
