package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lqCintern/farm-management-sub004/config"
	"github.com/lqCintern/farm-management-sub004/pkg/jwt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubBlacklist struct {
	revoked map[string]bool
	err     error
}

func (s *stubBlacklist) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	return s.revoked[jti], s.err
}

type stubLimiter struct {
	calls   int
	allowed bool
	err     error
	lastKey string
}

func (s *stubLimiter) CheckRateLimit(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	s.calls++
	s.lastKey = key
	return s.allowed, s.err
}

func newManager() *jwt.Manager {
	return jwt.NewManager(&config.AuthConfig{
		JWTSecret:       "middleware-test-secret-key-32bytes",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
	})
}

func doRequest(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	mgr := newManager()
	access, _ := mgr.GenerateAccessToken("u-1", "farmer")
	refresh, _ := mgr.GenerateRefreshToken("u-1", "farmer")
	claims, _ := mgr.ParseToken(access)

	tests := []struct {
		name      string
		blacklist Blacklist
		token     string
		want      int
	}{
		{"有效 Token", nil, access, http.StatusOK},
		{"缺少 Token", nil, "", http.StatusUnauthorized},
		{"刷新令牌不可访问", nil, refresh, http.StatusUnauthorized},
		{"已注销", &stubBlacklist{revoked: map[string]bool{claims.ID: true}}, access, http.StatusUnauthorized},
		{"黑名单故障降级放行", &stubBlacklist{err: errors.New("redis down")}, access, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/me", JWTAuth(mgr, tt.blacklist), func(c *gin.Context) {
				if c.GetString("user_id") != "u-1" {
					t.Errorf("user_id 未注入")
				}
				c.Status(http.StatusOK)
			})
			if w := doRequest(r, "GET", "/me", tt.token); w.Code != tt.want {
				t.Errorf("期望 %d，实际 %d", tt.want, w.Code)
			}
		})
	}
}

func TestRoleAuth(t *testing.T) {
	r := gin.New()
	r.POST("/admin", func(c *gin.Context) { c.Set("role", "farmer") }, RoleAuth("admin"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	if w := doRequest(r, "POST", "/admin", ""); w.Code != http.StatusForbidden {
		t.Errorf("期望 403，实际 %d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	limiter := &stubLimiter{allowed: false}
	r := gin.New()
	handler := func(c *gin.Context) { c.Status(http.StatusOK) }
	setUser := func(c *gin.Context) { c.Set("user_id", "u-1") }
	r.GET("/items", setUser, RateLimit(limiter, 5, time.Minute), handler)
	r.POST("/items", setUser, RateLimit(limiter, 5, time.Minute), handler)

	if w := doRequest(r, "GET", "/items", ""); w.Code != http.StatusOK || limiter.calls != 0 {
		t.Errorf("读接口不限流: code=%d calls=%d", w.Code, limiter.calls)
	}
	if w := doRequest(r, "POST", "/items", ""); w.Code != http.StatusTooManyRequests {
		t.Errorf("期望 429，实际 %d", w.Code)
	}
	if limiter.lastKey != "rate_limit:user:u-1:/items" {
		t.Errorf("限流键应按用户计数，实际 %s", limiter.lastKey)
	}

	limiter.err = errors.New("redis down")
	if w := doRequest(r, "POST", "/items", ""); w.Code != http.StatusOK {
		t.Errorf("限流器故障应降级放行，实际 %d", w.Code)
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.GET("/ping", RequestID(), func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("X-Request-ID", "trace-1")
	r.ServeHTTP(w, req)
	if w.Body.String() != "trace-1" || w.Header().Get("X-Request-ID") != "trace-1" {
		t.Errorf("应沿用上游 Request-ID，实际 %q", w.Body.String())
	}

	w = doRequest(r, "GET", "/ping", "")
	if len(w.Body.String()) != 36 {
		t.Errorf("应生成 UUID，实际 %q", w.Body.String())
	}
}
