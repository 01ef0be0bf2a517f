package httpmw

import (
	"errors"
	"net/http"
	"strings"

	"github.com/cwrk-planet/huddle-service/internal/auth"
	"github.com/cwrk-planet/huddle-service/pkg/httputil"
)

const HeaderUserID = "X-User-ID"

// Auth проверяет Bearer токен (или X-User-ID в dev-режиме) и кладёт user id в контекст.
// Браузерный WebSocket не умеет заголовки, поэтому токен принимается и из ?access_token=.
func Auth(authn auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds := auth.Credentials{
				Bearer: auth.BearerToken(r.Header.Get("Authorization")),
				UserID: r.Header.Get(HeaderUserID),
			}
			if creds.Bearer == "" {
				creds.Bearer = strings.TrimSpace(r.URL.Query().Get("access_token"))
			}

			uid, err := authn.Authenticate(r.Context(), creds)
			if err != nil {
				msg := "invalid credentials"
				if errors.Is(err, auth.ErrMissingCredentials) {
					msg = "missing credentials"
				}
				httputil.L(r.Context()).Debug("auth rejected", "err", err)
				httputil.Error(w, http.StatusUnauthorized, "unauthorized", msg)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), uid)))
		})
	}
}
