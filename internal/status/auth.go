package status

import (
	"crypto/subtle"
	"net/http"
)

// APIKey returns middleware enforcing API key authentication.
//
// If mode != "apikey" or key == "", every request passes. Otherwise the
// request's header value must equal key; a missing or wrong key is answered
// with 401.
func APIKey(mode, header, key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if mode != "apikey" || key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(header)
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				jsonErr(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
