// Package middleware содержит HTTP middleware для сервиса Phantom.
package middleware

import (
	"crypto/hmac"
	"encoding/json"
	"net/http"
)

// AdminTokenHeader задаёт заголовок, в котором передаётся токен администратора.
const AdminTokenHeader = "X-Admin-Token"

// AdminAuth пропускает запросы на изменение состава только с верным токеном.
// Пустой токен отключает проверку.
type AdminAuth struct {
	token []byte
}

// NewAdminAuth создаёт middleware проверки токена администратора.
func NewAdminAuth(token string) *AdminAuth {
	return &AdminAuth{token: []byte(token)}
}

// Enabled сообщает, включена ли проверка.
func (a *AdminAuth) Enabled() bool {
	return a != nil && len(a.token) > 0
}

// Middleware отклоняет запрос с кодом 401, если токен не совпадает.
func (a *AdminAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		got := r.Header.Get(AdminTokenHeader)
		if got == "" || !hmac.Equal([]byte(got), a.token) {
			writeFailure(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}

type failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(failure{Error: msg})
}
