package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func testLimiterConfig(generalBurst, loginBurst int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(1.0 / 60.0),
		GeneralBurst:    generalBurst,
		LoginRate:       rate.Limit(1.0 / 60.0),
		LoginBurst:      loginBurst,
		CleanupInterval: time.Hour,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(remoteAddr, userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.RemoteAddr = remoteAddr
	if userID != "" {
		req = req.WithContext(ContextWithUserID(req.Context(), userID))
	}
	return req
}

func TestGeneralMiddleware_LimitsPerClient(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(2, 1))
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("10.0.0.1:1234", ""))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i+1, w.Code, http.StatusOK)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.1:5678", ""))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if body := decodeErrorBody(t, w); body.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %q, want RATE_LIMIT_EXCEEDED", body.Code)
	}

	// 別IPは独立したバケットを持つ
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.2:1234", ""))
	if w.Code != http.StatusOK {
		t.Errorf("other ip status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestGeneralMiddleware_KeysLoggedInUsersByID(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(1, 1))
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	// 同じユーザーはIPが変わっても同じバケット
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.1:1", "user-a"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.9:1", "user-a"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	// 同じIPでも別ユーザーなら独立
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.1:1", "user-b"))
	if w.Code != http.StatusOK {
		t.Errorf("other user status = %d, want %d", w.Code, http.StatusOK)
	}

	if got := rl.GeneralLimiterCount(); got != 2 {
		t.Errorf("GeneralLimiterCount() = %d, want 2", got)
	}
}

func TestLoginMiddleware_IndependentFromGeneral(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(5, 1))
	defer rl.Stop()
	login := rl.LoginMiddleware()(okHandler())
	general := rl.GeneralMiddleware()(okHandler())

	w := httptest.NewRecorder()
	login.ServeHTTP(w, requestFrom("10.0.0.1:1", ""))
	if w.Code != http.StatusOK {
		t.Fatalf("first login status = %d, want %d", w.Code, http.StatusOK)
	}
	w = httptest.NewRecorder()
	login.ServeHTTP(w, requestFrom("10.0.0.1:2", ""))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second login status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	w = httptest.NewRecorder()
	general.ServeHTTP(w, requestFrom("10.0.0.1:3", ""))
	if w.Code != http.StatusOK {
		t.Errorf("general status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := rl.LoginLimiterCount(); got != 1 {
		t.Errorf("LoginLimiterCount() = %d, want 1", got)
	}
}

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig(5, 5))
	defer rl.Stop()

	rl.general.get("ip:10.0.0.1")
	rl.login.get("10.0.0.1")

	rl.general.evict(time.Now().Add(3*time.Hour), 2*time.Hour)
	rl.login.evict(time.Now(), 2*time.Hour)

	if got := rl.GeneralLimiterCount(); got != 0 {
		t.Errorf("GeneralLimiterCount() = %d, want 0", got)
	}
	if got := rl.LoginLimiterCount(); got != 1 {
		t.Errorf("LoginLimiterCount() = %d, want 1", got)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:4242"
	req.Header.Set("X-Forwarded-For", "203.0.113.5")

	if got := ClientIP(req); got != "192.0.2.10" {
		t.Errorf("ClientIP() = %q, want %q", got, "192.0.2.10")
	}

	req.RemoteAddr = "not-a-hostport"
	if got := ClientIP(req); got != "not-a-hostport" {
		t.Errorf("ClientIP() = %q, want raw RemoteAddr", got)
	}
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	c := DefaultRateLimiterConfig()
	if c.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", c.GeneralBurst)
	}
	if c.LoginBurst != 10 {
		t.Errorf("LoginBurst = %d, want 10", c.LoginBurst)
	}
	if c.CleanupInterval != 5*time.Minute {
		t.Errorf("CleanupInterval = %v, want 5m", c.CleanupInterval)
	}
}
