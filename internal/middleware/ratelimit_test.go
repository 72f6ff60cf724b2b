package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/storefront-auth/internal/config"
)

func limitCfg() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            10 * time.Minute,
		KeyStrategy:    "ip_route",
		Prefix:         "rl:test",
	}
}

func hit(e *echo.Echo, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	req.Header.Set(echo.HeaderXRealIP, ip)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func newLimitedServer(mw echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.POST("/v1/auth/login", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, mw)
	return e
}

func TestTokenBucketRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	e := newLimitedServer(NewTokenBucket(limitCfg(), rdb))
	for i := 0; i < 2; i++ {
		if rec := hit(e, "10.0.0.1"); rec.Code != http.StatusNoContent {
			t.Fatalf("request %d: expected 204, got %d", i, rec.Code)
		}
	}
	rec := hit(e, "10.0.0.1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
	if rec := hit(e, "10.0.0.2"); rec.Code != http.StatusNoContent {
		t.Fatalf("other clients must not share the bucket, got %d", rec.Code)
	}
	if !mr.Exists("rl:test:ip:10.0.0.1:route:POST /v1/auth/login") {
		t.Fatalf("bucket not stored in redis; keys=%v", mr.Keys())
	}
}

func TestTokenBucketFallsBackWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	e := newLimitedServer(NewTokenBucket(limitCfg(), rdb))
	hit(e, "10.0.0.1")
	hit(e, "10.0.0.1")
	if rec := hit(e, "10.0.0.1"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("fallback limiter should block, got %d", rec.Code)
	}
}

func TestTokenBucketLocalOnly(t *testing.T) {
	e := newLimitedServer(NewTokenBucket(limitCfg(), nil))
	hit(e, "10.0.0.1")
	hit(e, "10.0.0.1")
	if rec := hit(e, "10.0.0.1"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestTokenBucketDisabled(t *testing.T) {
	cfg := limitCfg()
	cfg.Enabled = false
	e := newLimitedServer(NewTokenBucket(cfg, nil))
	for i := 0; i < 5; i++ {
		if rec := hit(e, "10.0.0.1"); rec.Code != http.StatusNoContent {
			t.Fatalf("disabled limiter blocked request %d", i)
		}
	}
}

func TestLocalBucketsRefill(t *testing.T) {
	b := newLocalBuckets(limitCfg())
	now := time.Now()
	b.take("k", now)
	b.take("k", now)
	if v := b.take("k", now); v.allowed || v.retry <= 0 {
		t.Fatalf("expected block with retry, got %+v", v)
	}
	if v := b.take("k", now.Add(time.Minute)); !v.allowed {
		t.Fatalf("expected a token after one interval")
	}
}
