package middleware

import (
	"net/http"
	"strings"
)

// CORSMiddleware reflects allowed origins from a comma-separated allowlist;
// "*" allows any origin.
type CORSMiddleware struct {
	origins map[string]bool
	any     bool
}

func NewCORSMiddleware(allowList string) *CORSMiddleware {
	m := &CORSMiddleware{origins: map[string]bool{}}
	for _, origin := range strings.Split(allowList, ",") {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if origin == "*" {
			m.any = true
			continue
		}
		m.origins[origin] = true
	}
	return m
}

func (m *CORSMiddleware) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (m.any || m.origins[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-Id")
			w.Header().Set("Access-Control-Max-Age", "600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
