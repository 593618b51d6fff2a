package origin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestStatic_Resolve(t *testing.T) {
	addr, err := Static("203.0.113.9").Resolve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != "203.0.113.9" {
		t.Errorf("expected 203.0.113.9, got %s", addr)
	}
}

func TestStatic_ResolveEmpty(t *testing.T) {
	_, err := Static("").Resolve(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for empty address, got %v", err)
	}
}

func TestStatic_NormalizesAddress(t *testing.T) {
	addr, err := Static("2001:0db8::0001").Resolve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != "2001:db8::1" {
		t.Errorf("expected normalized 2001:db8::1, got %s", addr)
	}
}

func TestHTTPResolver_FirstSourceWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("198.51.100.7\n"))
	}))
	defer srv.Close()

	r := NewHTTPResolver([]string{srv.URL}, 2*time.Second)
	addr, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != "198.51.100.7" {
		t.Errorf("expected 198.51.100.7, got %s", addr)
	}
}

func TestHTTPResolver_FallsThroughToSecondSource(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("198.51.100.8"))
	}))
	defer good.Close()

	r := NewHTTPResolver([]string{bad.URL, good.URL}, 2*time.Second)
	addr, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != "198.51.100.8" {
		t.Errorf("expected fallback source's address, got %s", addr)
	}
}

func TestHTTPResolver_GarbageResponseFallsThrough(t *testing.T) {
	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>definitely not an ip</html>"))
	}))
	defer garbage.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("203.0.113.1"))
	}))
	defer good.Close()

	r := NewHTTPResolver([]string{garbage.URL, good.URL}, 2*time.Second)
	addr, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != "203.0.113.1" {
		t.Errorf("expected 203.0.113.1, got %s", addr)
	}
}

func TestHTTPResolver_AllSourcesFail(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()

	r := NewHTTPResolver([]string{bad.URL, bad.URL}, 2*time.Second)
	_, err := r.Resolve(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestHTTPResolver_SlowSourceTimesOut(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
			w.Write([]byte("198.51.100.9"))
		}
	}))
	defer slow.Close()

	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("198.51.100.10"))
	}))
	defer fast.Close()

	// The slow source must be abandoned after the per-attempt timeout and
	// the fast fallback used instead of blocking the whole login.
	r := NewHTTPResolver([]string{slow.URL, fast.URL}, 100*time.Millisecond)

	start := time.Now()
	addr, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != "198.51.100.10" {
		t.Errorf("expected fallback address, got %s", addr)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("resolution took %v, expected per-attempt timeout to bound it", elapsed)
	}
}
