package middleware

import (
	"crypto/subtle"
	"net/http"
)

// KeyAuth проверяет статический ключ в заголовке запроса. Используется для
// административного API и доверенного нотификатора: авторизация по сравнению
// идентичности ключа, без иерархий ролей.
func KeyAuth(header, key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(header)
			if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
