package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ams-cubing/public-calendar/internal/api/problem"
	"github.com/ams-cubing/public-calendar/internal/config"
	"golang.org/x/time/rate"
)

type RateLimitTier string

const (
	TierPublic   RateLimitTier = "public"
	TierSignedIn RateLimitTier = "signed_in"
)

const (
	bucketIdleTTL = 15 * time.Minute
	sweepEvery    = 5 * time.Minute
)

// RateLimit throttles requests per client. Signed-in actors are keyed by
// WCA id on the signed-in tier; everyone else by client IP on the public
// tier. Must run after LoadSession.
func RateLimit(cfg config.RateLimitConfig, env string) func(http.Handler) http.Handler {
	buckets := newBucketSet(map[RateLimitTier]int{
		TierPublic:   cfg.PublicPerMinute,
		TierSignedIn: cfg.SignedInPerMinute,
	})
	proxies := parseProxies(cfg.TrustedProxyCIDRs)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isProbe(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			key := bucketKey{tier: TierPublic, client: proxies.clientIP(r)}
			if actor, ok := ActorFromContext(r.Context()); ok {
				key = bucketKey{tier: TierSignedIn, client: actor.WCAID}
			}

			wait, ok := buckets.take(key, time.Now())
			if !ok {
				seconds := int(math.Ceil(wait.Seconds()))
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				problem.Write(w, r, http.StatusTooManyRequests, problem.TypeRateLimited, "Too Many Requests", nil, env,
					problem.WithDetail(fmt.Sprintf("Demasiadas solicitudes, intenta de nuevo en %d segundos", seconds)))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isProbe(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type bucketKey struct {
	tier   RateLimitTier
	client string
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// bucketSet holds one token bucket per client and tier. Idle buckets are
// swept lazily while taking tokens.
type bucketSet struct {
	mu        sync.Mutex
	perMinute map[RateLimitTier]int
	buckets   map[bucketKey]*bucket
	lastSweep time.Time
}

func newBucketSet(perMinute map[RateLimitTier]int) *bucketSet {
	return &bucketSet{
		perMinute: perMinute,
		buckets:   make(map[bucketKey]*bucket),
	}
}

// take spends one token for key. When the bucket is empty it reports how
// long until the next token and leaves the bucket unchanged. A tier with no
// limit configured always passes.
func (s *bucketSet) take(key bucketKey, now time.Time) (time.Duration, bool) {
	limit := s.perMinute[key.tier]
	if limit <= 0 {
		return 0, true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) > sweepEvery {
		s.sweep(now)
	}

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(limit)), limit)}
		s.buckets[key] = b
	}
	b.lastSeen = now

	if b.limiter.AllowN(now, 1) {
		return 0, true
	}
	res := b.limiter.ReserveN(now, 1)
	wait := res.DelayFrom(now)
	res.CancelAt(now)
	return wait, false
}

func (s *bucketSet) sweep(now time.Time) {
	for key, b := range s.buckets {
		if now.Sub(b.lastSeen) > bucketIdleTTL {
			delete(s.buckets, key)
		}
	}
	s.lastSweep = now
}

func (s *bucketSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}
