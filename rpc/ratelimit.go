package rpc

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"swapledger/observability/metrics"
)

const visitorTTL = 5 * time.Minute

// RateLimit bounds requests per client address. A zero RequestsPerMinute
// disables limiting. X-Forwarded-For is only honoured with TrustProxy set,
// since any direct client can forge it.
type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
	TrustProxy        bool
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client address.
type RateLimiter struct {
	cfg      RateLimit
	mu       sync.Mutex
	visitors map[string]*visitor
	clockNow func() time.Time
}

func NewRateLimiter(cfg RateLimit) *RateLimiter {
	return &RateLimiter{
		cfg:      cfg,
		visitors: make(map[string]*visitor),
		clockNow: time.Now,
	}
}

// Middleware rejects requests from clients that exhausted their bucket.
func (r *RateLimiter) Middleware(m *metrics.RPCMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if r.cfg.RequestsPerMinute <= 0 {
				next.ServeHTTP(w, req)
				return
			}
			if !r.Allow(clientSource(req, r.cfg.TrustProxy)) {
				m.RecordThrottle("rate_limit")
				w.Header().Set("Content-Type", "application/json")
				writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// Allow reports whether the client identified by source may proceed.
func (r *RateLimiter) Allow(source string) bool {
	if source == "" {
		source = "unknown"
	}
	now := r.clockNow()
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, v := range r.visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(r.visitors, id)
		}
	}
	v, ok := r.visitors[source]
	if !ok {
		burst := r.cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(r.cfg.RequestsPerMinute/60.0), burst)}
		r.visitors[source] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func clientSource(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			candidate := strings.TrimSpace(strings.Split(forwarded, ",")[0])
			if net.ParseIP(candidate) != nil {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
