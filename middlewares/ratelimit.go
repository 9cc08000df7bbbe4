package middlewares

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/LexiconIndonesia/media-render-service/common/utils"
	"github.com/alphadose/haxmap"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// RateLimiter allows each client IP a burst of requests per window, refilled
// evenly over the window
type RateLimiter struct {
	visitors  *haxmap.Map[string, *visitor]
	limit     rate.Limit
	burst     int
	window    time.Duration
	lastSweep atomic.Int64
	now       func() time.Time
}

func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	if requests < 1 {
		requests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	rl := &RateLimiter{
		visitors: haxmap.New[string, *visitor](),
		limit:    rate.Every(window / time.Duration(requests)),
		burst:    requests,
		window:   window,
		now:      time.Now,
	}
	rl.lastSweep.Store(rl.now().UnixNano())
	return rl
}

func (rl *RateLimiter) visitor(ip string) *visitor {
	now := rl.now()
	v, _ := rl.visitors.GetOrCompute(ip, func() *visitor {
		return &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
	})
	v.lastSeen.Store(now.UnixNano())
	rl.sweep(now)
	return v
}

// sweep forgets visitors idle for a full window; their limiter would be full again anyway
func (rl *RateLimiter) sweep(now time.Time) {
	last := rl.lastSweep.Load()
	if now.UnixNano()-last < int64(rl.window) || !rl.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	cutoff := now.Add(-rl.window).UnixNano()
	var stale []string
	rl.visitors.ForEach(func(ip string, v *visitor) bool {
		if v.lastSeen.Load() < cutoff {
			stale = append(stale, ip)
		}
		return true
	})
	rl.visitors.Del(stale...)
}

// Allow reports whether ip may make a request now and, if not, how long to wait
func (rl *RateLimiter) Allow(ip string) (bool, time.Duration) {
	v := rl.visitor(ip)
	now := rl.now()
	res := v.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, rl.window
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Handler is the middleware form of the limiter
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := rl.Allow(clientIP(r))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			utils.WriteError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit builds a limiter and returns its middleware
func RateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	return NewRateLimiter(requests, window).Handler
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
