package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter ограничивает число запросов на ключ (обычно IP).
// Разрешено rate запросов подряд, дальше по одному каждые window/rate (GCRA).
type RateLimiter struct {
	now      func() time.Time
	logger   *slog.Logger
	tat      map[string]time.Time // теоретическое время прихода следующего запроса
	done     chan struct{}
	stopOnce sync.Once
	window   time.Duration
	interval time.Duration
	mu       sync.Mutex
}

// NewRateLimiter создает лимитер и запускает фоновую очистку простаивающих ключей
func NewRateLimiter(rate int, window time.Duration, logger *slog.Logger) *RateLimiter {
	if rate < 1 {
		rate = 1
	}
	rl := &RateLimiter{
		now:      time.Now,
		logger:   logger,
		tat:      make(map[string]time.Time),
		done:     make(chan struct{}),
		window:   window,
		interval: window / time.Duration(rate),
	}

	go rl.sweepLoop()

	return rl
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.sweep()
		case <-rl.done:
			return
		}
	}
}

// sweep удаляет ключи с полностью восстановленным лимитом
func (rl *RateLimiter) sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for key, tat := range rl.tat {
		if !tat.After(now) {
			delete(rl.tat, key)
			removed++
		}
	}

	if removed > 0 {
		rl.logger.Debug("rate limiter keys swept", slog.Int("removed", removed), slog.Int("left", len(rl.tat)))
	}
	return removed
}

// Stop останавливает фоновую очистку. Повторный вызов безопасен.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// Allow учитывает запрос для key. При отказе возвращает, сколько ждать
// до следующего разрешенного запроса.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	tat, ok := rl.tat[key]
	if !ok || tat.Before(now) {
		tat = now
	}

	if ahead := tat.Sub(now); ahead > rl.window-rl.interval {
		return false, ahead - (rl.window - rl.interval)
	}

	rl.tat[key] = tat.Add(rl.interval)
	return true, 0
}

// retryAfterSeconds округляет ожидание вверх до целых секунд, минимум 1
func retryAfterSeconds(wait time.Duration) string {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// PathRateLimit лимит для конкретного метода и пути
type PathRateLimit struct {
	Method string
	Path   string
	Rate   int
	Window time.Duration
}

// PathRateLimiter применяет отдельный лимит к каждому перечисленному маршруту.
// Остальные маршруты проходят без ограничений.
type PathRateLimiter struct {
	limiters map[string]*RateLimiter
	logger   *slog.Logger
	trusted  []netip.Prefix
}

// PathRateLimiterOption настраивает PathRateLimiter
type PathRateLimiterOption func(*pathLimiterOptions)

type pathLimiterOptions struct {
	now     func() time.Time
	trusted []netip.Prefix
}

// WithLimiterClock подменяет источник времени для всех лимитеров
func WithLimiterClock(now func() time.Time) PathRateLimiterOption {
	return func(o *pathLimiterOptions) { o.now = now }
}

// WithTrustedProxies задает сети обратных прокси. Только запросам из этих сетей
// верим в X-Forwarded-For и X-Real-IP, остальные считаются по адресу сокета.
func WithTrustedProxies(prefixes []netip.Prefix) PathRateLimiterOption {
	return func(o *pathLimiterOptions) { o.trusted = prefixes }
}

// NewPathRateLimiter создает лимитеры для маршрутов. Путь сравнивается
// без завершающего слэша, поэтому /users и /users/ делят один лимит.
func NewPathRateLimiter(limits []PathRateLimit, logger *slog.Logger, opts ...PathRateLimiterOption) *PathRateLimiter {
	o := pathLimiterOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	p := &PathRateLimiter{
		limiters: make(map[string]*RateLimiter, len(limits)),
		logger:   logger,
		trusted:  o.trusted,
	}
	for _, l := range limits {
		rl := NewRateLimiter(l.Rate, l.Window, logger)
		rl.now = o.now
		p.limiters[routeKey(l.Method, l.Path)] = rl
	}
	return p
}

func routeKey(method, path string) string {
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	return method + " " + path
}

// Middleware отвечает 429 с Retry-After, когда клиент исчерпал лимит маршрута
func (p *PathRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter, ok := p.limiters[routeKey(r.Method, r.URL.Path)]
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r, p.trusted)
		allowed, wait := limiter.Allow(ip)
		if !allowed {
			p.logger.WarnContext(r.Context(), "Rate limit exceeded",
				slog.String("ip", ip),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Duration("retry_after", wait),
			)

			w.Header().Set("Retry-After", retryAfterSeconds(wait))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Stop останавливает все лимитеры
func (p *PathRateLimiter) Stop() {
	for _, l := range p.limiters {
		l.Stop()
	}
}

// clientIP возвращает адрес клиента для лимита. Заголовки прокси читаются,
// только если сокет принадлежит доверенной сети. В X-Forwarded-For адреса
// перебираются справа налево, первый недоверенный и есть клиент.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}

	if !isTrusted(peer, trusted) {
		return peer
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !isTrusted(hop, trusted) {
				return hop
			}
		}
	}

	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	return peer
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	if len(trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
