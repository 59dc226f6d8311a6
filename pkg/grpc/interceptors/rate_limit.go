package interceptors

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// idleAfter is how long a peer's bucket survives without calls.
const idleAfter = 10 * time.Minute

// RateLimiter keeps one token bucket per calling host. Buckets idle for
// longer than idleAfter are dropped on the next sweep.
type RateLimiter struct {
	mu        sync.Mutex
	peers     map[string]*peerBucket
	limit     rate.Limit
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

type peerBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows each peer perSecond calls with the given burst.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		peers: make(map[string]*peerBucket),
		limit: rate.Limit(perSecond),
		burst: burst,
		now:   time.Now,
	}
}

// allow takes a token for key. On refusal it returns how long until the
// next token.
func (rl *RateLimiter) allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > idleAfter {
		for k, b := range rl.peers {
			if now.Sub(b.lastSeen) > idleAfter {
				delete(rl.peers, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.peers[key]
	if !ok {
		b = &peerBucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.peers[key] = b
	}
	b.lastSeen = now

	if b.limiter.AllowN(now, 1) {
		return true, 0
	}
	r := b.limiter.ReserveN(now, 1)
	wait := r.DelayFrom(now)
	r.CancelAt(now)
	return false, wait
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.peers)
}

// RateLimitUnaryInterceptor rejects calls over the peer's budget with
// codes.ResourceExhausted and a retry-after header in whole seconds.
// Health checks are never limited.
func RateLimitUnaryInterceptor(rl *RateLimiter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if isHealthMethod(info.FullMethod) {
			return handler(ctx, req)
		}
		if ok, wait := rl.allow(peerKey(ctx)); !ok {
			_ = grpc.SetHeader(ctx, metadata.Pairs("retry-after", retryAfter(wait)))
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}

// RateLimitStreamInterceptor charges one token per opened stream.
func RateLimitStreamInterceptor(rl *RateLimiter) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if isHealthMethod(info.FullMethod) {
			return handler(srv, ss)
		}
		if ok, wait := rl.allow(peerKey(ss.Context())); !ok {
			_ = ss.SetHeader(metadata.Pairs("retry-after", retryAfter(wait)))
			return status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(srv, ss)
	}
}

func retryAfter(wait time.Duration) string {
	secs := int((wait + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// peerKey is the caller's host without the port, or the request id when
// the transport gives no peer.
func peerKey(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		addr := p.Addr.String()
		if host, _, err := net.SplitHostPort(addr); err == nil {
			return host
		}
		return addr
	}
	if id := RequestIDFromContext(ctx); id != "" {
		return id
	}
	return "anonymous"
}

func isHealthMethod(method string) bool {
	return strings.HasPrefix(method, "/grpc.health.v1.Health/")
}
