package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuth guards operator routes. An empty token rejects every request.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if token == "" || !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// secretMatches compares a shared secret in constant time.
func secretMatches(got, want string) bool {
	return want != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// authRequired sends browsers to the login page and tells API callers
// where to log in.
func authRequired(w http.ResponseWriter, r *http.Request, loginURL string) {
	if wantsHTML(r) {
		http.Redirect(w, r, loginURL, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusUnauthorized, map[string]any{
		"error": map[string]any{
			"message": "authentication required",
			"type":    "authentication_error",
		},
		"redirect": loginURL,
	})
}
