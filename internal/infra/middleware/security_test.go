package middleware

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/api/health", nil))

	expected := map[string]string{
		"X-Frame-Options":         "DENY",
		"X-Content-Type-Options":  "nosniff",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Referrer-Policy":         "no-referrer",
		"Cache-Control":           "no-store",
	}
	for header, want := range expected {
		if got := w.Header().Get(header); got != want {
			t.Errorf("Header %s = %q, want %q", header, got, want)
		}
	}
	if hsts := w.Header().Get("Strict-Transport-Security"); hsts != "" {
		t.Errorf("HSTS header should not be set without TLS, got: %q", hsts)
	}
}

func TestSecurityHeaders_HSTS_WithTLS(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/health", nil)
	req.TLS = &tls.ConnectionState{}
	w := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(w, req)

	if got := w.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Errorf("HSTS = %q", got)
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	handler := RateLimit(context.Background(), RateLimitConfig{RequestsPerMin: 0})(okHandler())
	for i := 0; i < 50; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, w.Code)
		}
	}
}

func TestRateLimit_BlocksExcessiveTraffic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimit(ctx, RateLimitConfig{RequestsPerMin: 6, BurstSize: 3})(okHandler())

	success, blocked := 0, 0
	var last *httptest.ResponseRecorder
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest("POST", "/api/systems/x/chat", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		switch w.Code {
		case http.StatusOK:
			success++
		case http.StatusTooManyRequests:
			blocked++
			last = w
		}
	}
	if success != 3 || blocked != 7 {
		t.Fatalf("success=%d blocked=%d, want 3/7", success, blocked)
	}

	var body map[string]string
	if err := json.Unmarshal(last.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "rate limit exceeded" {
		t.Errorf("body = %v", body)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestRateLimit_SeparatesClientsByIP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimit(ctx, RateLimitConfig{RequestsPerMin: 6, BurstSize: 2})(okHandler())

	send := func(addr string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 2; i++ {
		send("192.168.1.1:1")
	}
	if code := send("192.168.1.1:1"); code != http.StatusTooManyRequests {
		t.Errorf("client 1 third request = %d, want 429", code)
	}
	if code := send("192.168.1.2:1"); code != http.StatusOK {
		t.Errorf("client 2 first request = %d, want 200", code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		xff     string
		xri     string
		trusted []string
		want    string
	}{
		{"no proxies ignores xff", "1.2.3.4:5", "8.8.8.8", "", nil, "1.2.3.4"},
		{"untrusted peer ignores xff", "1.2.3.4:5", "8.8.8.8", "", []string{"192.168.1.1"}, "1.2.3.4"},
		{"trusted peer uses first xff hop", "192.168.1.1:5", "203.0.113.1, 198.51.100.1", "", []string{"192.168.1.1"}, "203.0.113.1"},
		{"trusted cidr", "10.1.2.3:5", "8.8.8.8", "", []string{"10.0.0.0/8"}, "8.8.8.8"},
		{"x-real-ip fallback", "10.1.2.3:5", "", "9.9.9.9", []string{"10.0.0.0/8"}, "9.9.9.9"},
		{"trusted without headers", "10.1.2.3:5", "", "", []string{"10.0.0.0/8"}, "10.1.2.3"},
		{"ipv6 peer", "[::1]:8080", "", "", nil, "::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			if got := clientIP(req, parseTrusted(tt.trusted)); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
