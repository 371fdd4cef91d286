package http

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"powerbank-rental-backend/internal/config"
	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/logger"
	"powerbank-rental-backend/internal/security"
)

const requestIDHeader = "X-Request-ID"

type claimsKey struct{}

// ClaimsFromContext returns the caller set by the auth middleware
func ClaimsFromContext(ctx context.Context) (*security.UserClaims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*security.UserClaims)
	return c, ok
}

// routeKey is the "METHOD template" form used by the endpoint security table
func routeKey(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return r.Method + " " + tpl
		}
	}
	return r.Method + " " + r.URL.Path
}

// RequestID tags every request with an id, reusing the caller's when present
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}

// IPRateLimiter stores a rate limiter for each client address.
type IPRateLimiter struct {
	ips map[string]*rate.Limiter
	mu  sync.RWMutex
	r   rate.Limit
	b   int
}

func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{ips: make(map[string]*rate.Limiter), r: r, b: b}
}

// GetLimiter returns the limiter for ip, creating it on first use.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.RLock()
	limiter, exists := i.ips[ip]
	i.mu.RUnlock()
	if exists {
		return limiter
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if limiter, exists = i.ips[ip]; !exists {
		limiter = rate.NewLimiter(i.r, i.b)
		i.ips[ip] = limiter
	}
	return limiter
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit rejects clients that exceed their per-address budget
func RateLimit(limiter *IPRateLimiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.GetLimiter(clientIP(r)).Allow() {
				logger.WarnContext(r.Context(), "Rate limit exceeded", "ip", clientIP(r))
				writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many requests", RequestID: logger.RequestID(r.Context())})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Auth enforces the security level of the matched route and stores the
// caller's claims in the request context.
func Auth(tokens security.TokenManager) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			level := config.GetSecurityLevel(routeKey(r))
			if level == config.SecurityPublic {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				writeError(w, r, errorf(domain.ErrUnauthorized, "authorization token is not provided"))
				return
			}
			token := header
			// Remove Bearer prefix if present
			if len(token) > 7 && strings.ToUpper(token[0:7]) == "BEARER " {
				token = token[7:]
			}

			claims, err := tokens.ValidateToken(token)
			if err != nil {
				writeError(w, r, errorf(domain.ErrUnauthorized, "invalid token: %v", err))
				return
			}
			if level == config.SecurityAdmin && !claims.IsAdmin() {
				writeError(w, r, errorf(domain.ErrForbidden, "admin access required"))
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

type recordingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *recordingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Cache serves public GETs from memory for ttl. Successful writes flush the
// store since any of them may change a cached device listing.
func Cache(store *cache.Cache, ttl time.Duration) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &recordingWriter{ResponseWriter: w}

			if r.Method != http.MethodGet {
				next.ServeHTTP(rec, r)
				if rec.status >= 200 && rec.status < 300 {
					store.Flush()
				}
				return
			}
			if config.GetSecurityLevel(routeKey(r)) != config.SecurityPublic {
				next.ServeHTTP(w, r)
				return
			}

			key := r.RequestURI
			if v, found := store.Get(key); found {
				cached := v.(cachedResponse)
				for k, vals := range cached.headers {
					w.Header()[k] = vals
				}
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(cached.status)
				w.Write(cached.body)
				return
			}

			next.ServeHTTP(rec, r)

			// Only cache successful responses
			if rec.status >= 200 && rec.status < 300 {
				headers := rec.Header().Clone()
				headers.Del(requestIDHeader)
				store.Set(key, cachedResponse{status: rec.status, headers: headers, body: rec.body.Bytes()}, ttl)
			}
		})
	}
}
