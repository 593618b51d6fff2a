package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// newTestLimiter wires the middleware against a miniredis instance and
// returns a function that performs one request from the given IP.
func newTestLimiter(t *testing.T, maxRequests int, window time.Duration) func(ip string) int {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	e := echo.New()
	handler := RateLimit(rdb, "test", maxRequests, window)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	return func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = ip + ":12345"
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if err := handler(c); err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		return rec.Code
	}
}

func TestRateLimit_AllowsUnderBudget(t *testing.T) {
	do := newTestLimiter(t, 3, time.Minute)

	for i := 0; i < 3; i++ {
		if code := do("203.0.113.1"); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, code)
		}
	}
}

func TestRateLimit_BlocksOverBudget(t *testing.T) {
	do := newTestLimiter(t, 2, time.Minute)

	do("203.0.113.2")
	do("203.0.113.2")
	if code := do("203.0.113.2"); code != http.StatusTooManyRequests {
		t.Errorf("expected 429 after budget exhausted, got %d", code)
	}
}

func TestRateLimit_BudgetIsPerIP(t *testing.T) {
	do := newTestLimiter(t, 1, time.Minute)

	do("203.0.113.3")
	if code := do("203.0.113.3"); code != http.StatusTooManyRequests {
		t.Fatalf("expected second request from same IP to be limited, got %d", code)
	}
	if code := do("203.0.113.4"); code != http.StatusOK {
		t.Errorf("expected request from a different IP to pass, got %d", code)
	}
}

func TestRateLimit_FailsOpenWithoutRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	// Kill the backing store so INCR fails.
	mr.Close()

	e := echo.New()
	handler := RateLimit(rdb, "test", 1, time.Minute)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "203.0.113.5:12345"
	rec := httptest.NewRecorder()
	if err := handler(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected fail-open 200 when Redis is down, got %d", rec.Code)
	}
}
