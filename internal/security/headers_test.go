package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func ok() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestHeaders(t *testing.T) {
	h := Headers{Enable: true, EnableHSTS: true, HSTSMaxAge: 600, HSTSIncludeSubdomains: true}.Middleware(ok())

	req := httptest.NewRequest(http.MethodGet, "https://api.maplefresh.ca/api/v1/quotes", nil)
	req.TLS = &tls.ConnectionState{}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	require.Equal(t, "max-age=600; includeSubDomains", rr.Header().Get("Strict-Transport-Security"))

	plain := httptest.NewRecorder()
	h.ServeHTTP(plain, httptest.NewRequest(http.MethodGet, "http://localhost/api/v1/quotes", nil))
	require.Empty(t, plain.Header().Get("Strict-Transport-Security"))
	require.Equal(t, defaultCSP, plain.Header().Get("Content-Security-Policy"))
}

func TestHeadersBehindProxy(t *testing.T) {
	h := Headers{Enable: true, EnableHSTS: true}.Middleware(ok())
	req := httptest.NewRequest(http.MethodGet, "http://api.maplefresh.ca/health/live", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, "max-age=31536000", rr.Header().Get("Strict-Transport-Security"))
}

func TestHeadersDisabled(t *testing.T) {
	rr := httptest.NewRecorder()
	Headers{EnableHSTS: true}.Middleware(ok()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Empty(t, rr.Header().Get("X-Content-Type-Options"))
}

func TestCORS(t *testing.T) {
	preflight := func(h http.Handler, origin string) string {
		req := httptest.NewRequest(http.MethodOptions, "http://localhost/api/v1/quotes/preview", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Header().Get("Access-Control-Allow-Origin")
	}

	strict := CORS([]string{"https://maplefresh.ca"})(ok())
	require.Equal(t, "https://maplefresh.ca", preflight(strict, "https://maplefresh.ca"))
	require.Empty(t, preflight(strict, "https://malicious.example"))

	open := CORS(nil)(ok())
	require.Equal(t, "*", preflight(open, "https://anywhere.example"))
}
