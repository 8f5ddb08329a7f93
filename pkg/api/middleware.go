package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/gsg-platform/bridge/pkg/tenants"
)

type contextKey string

const (
	tenantKey contextKey = "tenant"
	callerKey contextKey = "caller"
)

// TenantID returns the tenant bound to the request.
func TenantID(r *http.Request) string {
	v, _ := r.Context().Value(tenantKey).(string)
	return v
}

// Caller returns the caller identity bound to the request.
func Caller(r *http.Request) string {
	v, _ := r.Context().Value(callerKey).(string)
	if v == "" {
		return "anonymous"
	}
	return v
}

// RequireTenant rejects requests without a registered X-Tenant-ID header
// and binds the tenant to the request context.
func RequireTenant(registry *tenants.Registry, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := r.Header.Get("X-Tenant-ID")
		if tenant == "" {
			WriteError(w, http.StatusBadRequest, "missing_tenant",
				"X-Tenant-ID header is required")
			return
		}
		if !registry.IsRegistered(tenant) {
			WriteError(w, http.StatusBadRequest, "unknown_tenant",
				"tenant is not in the registered set")
			return
		}
		ctx := context.WithValue(r.Context(), tenantKey, tenant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Identity resolves the caller from an optional JWT bearer token. With a
// signing secret configured an invalid token is rejected; without one the
// caller stays anonymous.
type Identity struct {
	secret []byte
}

func NewIdentity(secret string) *Identity {
	return &Identity{secret: []byte(secret)}
}

func (i *Identity) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" || len(i.secret) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		raw := strings.TrimPrefix(auth, "Bearer ")
		token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return i.secret, nil
		})
		if err != nil || !token.Valid {
			WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid bearer token")
			return
		}

		caller := ""
		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			caller, _ = claims["sub"].(string)
		}
		ctx := context.WithValue(r.Context(), callerKey, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GlobalRateLimiter manages per-IP rate limiters.
type GlobalRateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewGlobalRateLimiter(rps, burst int) *GlobalRateLimiter {
	rl := &GlobalRateLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
	go rl.cleanupVisitors()
	return rl
}

func (rl *GlobalRateLimiter) getVisitor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		limiter := rate.NewLimiter(rl.rps, rl.burst)
		rl.visitors[ip] = &visitor{limiter, time.Now()}
		return limiter
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// cleanupVisitors removes stale visitor entries to prevent memory leaks.
func (rl *GlobalRateLimiter) cleanupVisitors() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// Middleware enforces the per-IP limit.
func (rl *GlobalRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = strings.Trim(r.RemoteAddr, "[]")
		}
		if !rl.getVisitor(ip).Allow() {
			w.Header().Set("Retry-After", "5")
			WriteError(w, http.StatusTooManyRequests, "rate_limited",
				"rate limit exceeded, retry after the specified interval")
			return
		}
		next.ServeHTTP(w, r)
	})
}
