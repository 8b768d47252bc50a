package main

import (
	"context"
	"crypto/rsa"
	"crypto/subtle"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/debatehub/api/handlers"
	"github.com/BaSui01/debatehub/config"
	"github.com/BaSui01/debatehub/types"
)

// =============================================================================
// 🔐 认证
// =============================================================================

func unauthorized(w http.ResponseWriter, msg string) {
	handlers.WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, msg, nil)
}

// APIKeyAuth 校验 X-API-Key。浏览器 WebSocket 无法设置请求头，
// allowQuery 为 true 时也接受 ?api_key=。
func APIKeyAuth(validKeys []string, skipPaths []string, allowQuery bool, logger *zap.Logger) Middleware {
	keys := make([][]byte, 0, len(validKeys))
	for _, k := range validKeys {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}
	skip := toSet(skipPaths)

	known := func(candidate string) bool {
		if candidate == "" {
			return false
		}
		// 逐个常量时间比较，不提前返回
		found := 0
		for _, k := range keys {
			found |= subtle.ConstantTimeCompare(k, []byte(candidate))
		}
		return found == 1
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get("X-API-Key")
			if key == "" && allowQuery {
				key = r.URL.Query().Get("api_key")
			}
			if !known(key) {
				logger.Debug("api key rejected", zap.String("path", r.URL.Path), zap.Bool("present", key != ""))
				unauthorized(w, "invalid or missing API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// callerClaims user_id 优先于 sub
type callerClaims struct {
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

func (c *callerClaims) caller() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// JWTAuth 校验 Authorization: Bearer，支持 HS256（secret）与 RS256（PEM 公钥），
// 通过后把调用方写入 types.WithUserID。
func JWTAuth(cfg config.JWTConfig, skipPaths []string, logger *zap.Logger) Middleware {
	var rsaKey *rsa.PublicKey
	if cfg.PublicKey != "" {
		k, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKey))
		if err != nil {
			logger.Warn("jwt public key unusable, RS256 tokens will be rejected", zap.Error(err))
		} else {
			rsaKey = k
		}
	}
	secret := []byte(cfg.Secret)

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)

	keyFunc := func(t *jwt.Token) (any, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodHMAC:
			if len(secret) == 0 {
				return nil, errors.New("hmac secret not configured")
			}
			return secret, nil
		case *jwt.SigningMethodRSA:
			if rsaKey == nil {
				return nil, errors.New("rsa public key not configured")
			}
			return rsaKey, nil
		}
		return nil, jwt.ErrTokenUnverifiable
	}

	skip := toSet(skipPaths)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				unauthorized(w, "missing or malformed Authorization header")
				return
			}
			var claims callerClaims
			if _, err := parser.ParseWithClaims(raw, &claims, keyFunc); err != nil {
				logger.Debug("jwt rejected", zap.Error(err))
				unauthorized(w, "invalid or expired token")
				return
			}
			ctx := r.Context()
			if caller := claims.caller(); caller != "" {
				ctx = types.WithUserID(ctx, caller)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// =============================================================================
// 🚦 限流
// =============================================================================

// visitorLimiter 每个调用方一个令牌桶，空闲超过 idleTTL 的桶被回收
type visitorLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newVisitorLimiter(rps float64, burst int) *visitorLimiter {
	return &visitorLimiter{
		limit:    rate.Limit(rps),
		burst:    max(burst, 1),
		idleTTL:  3 * time.Minute,
		visitors: make(map[string]*visitor),
	}
}

// reserve 返回需要等待的时长，0 表示放行
func (vl *visitorLimiter) reserve(key string, now time.Time) time.Duration {
	vl.mu.Lock()
	v, ok := vl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(vl.limit, vl.burst)}
		vl.visitors[key] = v
	}
	v.lastSeen = now
	vl.mu.Unlock()

	res := v.limiter.ReserveN(now, 1)
	if !res.OK() {
		return time.Second
	}
	delay := res.DelayFrom(now)
	if delay > 0 {
		// 拒绝的请求不消耗令牌
		res.CancelAt(now)
	}
	return delay
}

func (vl *visitorLimiter) sweep(now time.Time) int {
	vl.mu.Lock()
	defer vl.mu.Unlock()
	removed := 0
	for key, v := range vl.visitors {
		if now.Sub(v.lastSeen) > vl.idleTTL {
			delete(vl.visitors, key)
			removed++
		}
	}
	return removed
}

// RateLimiter 认证之后按 user_id 限流，匿名请求按客户端 IP。
// 超限返回 429 并在 Retry-After 中给出秒数。
func RateLimiter(ctx context.Context, rps float64, burst int, logger *zap.Logger) Middleware {
	vl := newVisitorLimiter(rps, burst)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := vl.sweep(now); n > 0 {
					logger.Debug("rate limiter swept idle visitors", zap.Int("removed", n))
				}
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKey(r)
			if wait := vl.reserve(key, time.Now()); wait > 0 {
				logger.Debug("rate limited", zap.String("key", key), zap.Duration("retry_after", wait))
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				handlers.WriteErrorMessage(w, http.StatusTooManyRequests, types.ErrRateLimit, "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request) string {
	if uid, ok := types.UserID(r.Context()); ok && uid != "" {
		return "user:" + uid
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
