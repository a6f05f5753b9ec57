package middleware

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"eleva-care-api/internal/audit"
	"eleva-care-api/internal/wire"
)

type visitor struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter keeps one token bucket per peer address.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	r        rate.Limit
	burst    int
}

// NewRateLimiter starts a sweeper that forgets idle peers until ctx is done.
func NewRateLimiter(ctx context.Context, rps float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		r:        rate.Limit(rps),
		burst:    burst,
	}
	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				rl.sweep(now, 3*time.Minute)
			}
		}
	}()
	return rl
}

func (rl *RateLimiter) sweep(now time.Time, idle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for addr, v := range rl.visitors {
		if now.Sub(v.seen) > idle {
			delete(rl.visitors, addr)
		}
	}
}

func (rl *RateLimiter) get(addr string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if v, ok := rl.visitors[addr]; ok {
		v.seen = time.Now()
		return v.lim
	}
	l := rate.NewLimiter(rl.r, rl.burst)
	rl.visitors[addr] = &visitor{lim: l, seen: time.Now()}
	return l
}

// public booking is the abuse target
var limited = map[string]bool{
	wire.MethodCreateMeeting: true,
}

func RateLimit(rl *RateLimiter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if !limited[info.FullMethod] {
			return next(ctx, req)
		}
		if !rl.get(clientAddr(ctx)).Allow() {
			return nil, status.Error(codes.ResourceExhausted, "too many requests")
		}
		return next(ctx, req)
	}
}

// RequestInfo makes the caller address and user agent available to the
// audit log.
func RequestInfo() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		return next(audit.WithRequest(ctx, clientAddr(ctx), userAgent(ctx)), req)
	}
}

// userAgent prefers the browser agent relayed by the grpc-web bridge.
func userAgent(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get("x-user-agent"); len(v) > 0 && v[0] != "" && fromLoopback(ctx) {
		return v[0]
	}
	if v := md.Get("user-agent"); len(v) > 0 {
		return v[0]
	}
	return ""
}

func fromLoopback(ctx context.Context) bool {
	p, ok := peer.FromContext(ctx)
	if !ok {
		return false
	}
	ip := net.ParseIP(peerHost(p.Addr.String()))
	return ip != nil && ip.IsLoopback()
}

// clientAddr is the peer host. Calls relayed by the local grpc-web bridge
// carry the browser address in x-forwarded-for.
func clientAddr(ctx context.Context) string {
	addr := "unknown"
	if p, ok := peer.FromContext(ctx); ok {
		addr = peerHost(p.Addr.String())
	}
	if ip := net.ParseIP(addr); ip != nil && ip.IsLoopback() {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get("x-forwarded-for"); len(v) > 0 && v[0] != "" {
				return v[0]
			}
		}
	}
	return addr
}

// peerHost drops the ephemeral port so one client maps to one bucket.
func peerHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
