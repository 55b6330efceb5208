package main

import (
	"context"
	"net/http"
	"strings"

	"github.com/ledgerplatform/identity-ledger/pkg/authjwt"
	"github.com/ledgerplatform/identity-ledger/pkg/httpkit"
)

type ctxKey string

const ctxUserID ctxKey = "userID"

func bearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(authz, "Bearer "), true
}

// AuthMiddleware gates the external-bearer-protected user endpoints.
func (app *App) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := bearerToken(r)
		if !ok {
			httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindUnauthorized, "missing bearer token"))
			return
		}
		claims, err := authjwt.ParseExternal(app.ExternalSecret, tok)
		if err != nil {
			httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindUnauthorized, "invalid token"))
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// InternalOnly gates validate-user-jwt (and any other peer-service-only
// route) behind the internal JWT strategy. It never trusts anything from
// the external token directly.
func (app *App) InternalOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := bearerToken(r)
		if !ok {
			httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindUnauthorized, "missing internal bearer token"))
			return
		}
		if _, err := authjwt.ParseInternal(app.InternalSecret, tok); err != nil {
			httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindUnauthorized, "invalid internal token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func getUserID(r *http.Request) (string, bool) {
	v := r.Context().Value(ctxUserID)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
