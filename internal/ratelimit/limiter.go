// Package ratelimit limits requests per client IP with a token bucket.
package ratelimit

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	staleAfter    = 5 * time.Minute
	sweepInterval = time.Minute
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter hands out one token bucket per client IP. Buckets idle for longer
// than five minutes are dropped by a background sweep; call Stop to end it.
type Limiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*client
	now     func() time.Time

	stop chan struct{}
	once sync.Once
}

// New returns a limiter allowing perSecond requests per IP with the given
// burst. A non-positive perSecond means no limit.
func New(perSecond float64, burst int) *Limiter {
	l := newLimiter(perSecond, burst, time.Now)
	go l.sweepLoop()
	return l
}

func newLimiter(perSecond float64, burst int, now func() time.Time) *Limiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limit:   limit,
		burst:   burst,
		clients: make(map[string]*client),
		now:     now,
		stop:    make(chan struct{}),
	}
}

// Reserve takes a token for ip. When the bucket is empty it reports false and
// how long the client should wait before retrying.
func (l *Limiter) Reserve(ip string) (bool, time.Duration) {
	now := l.now()
	l.mu.Lock()
	c, ok := l.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	l.mu.Unlock()

	if c.limiter.AllowN(now, 1) {
		return true, 0
	}
	r := c.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return false, delay
}

// Allow reports whether a request from ip may proceed.
func (l *Limiter) Allow(ip string) bool {
	ok, _ := l.Reserve(ip)
	return ok
}

// Stop ends the background sweep. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweep(l.now())
		}
	}
}

func (l *Limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, c := range l.clients {
		if now.Sub(c.lastSeen) > staleAfter {
			delete(l.clients, ip)
		}
	}
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Middleware rejects requests over the limit with 429 Too Many Requests and a
// Retry-After header in whole seconds.
func (l *Limiter) Middleware(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r.RemoteAddr)
		ok, wait := l.Reserve(ip)
		if !ok {
			if logger != nil {
				logger.Warn("rate limited", "ip", ip, "path", r.URL.Path)
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func retryAfterSeconds(d time.Duration) int {
	if d <= 0 || d == rate.InfDuration {
		return 1
	}
	return int(math.Ceil(d.Seconds()))
}

// ClientIP strips the port from a remote address.
func ClientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
