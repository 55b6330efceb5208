package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

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

type validateReq struct {
	UserToken string `json:"user_token"`
}

type validateResp struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"user_id,omitempty"`
}

// AuthMiddleware implements spec.md §4.2's auth guard: it never trusts the
// external token's own claims, only Identity's verdict on it.
func (app *App) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := bearerToken(r)
		if !ok {
			httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindUnauthorized, "missing bearer token"))
			return
		}

		userID, err := app.validateExternal(r.Context(), tok)
		if err != nil {
			httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindUnauthorized, "token rejected"))
			return
		}

		ctx := context.WithValue(r.Context(), ctxUserID, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// validateExternal mints a short-lived internal JWT and asks Identity to
// validate the external token. Network errors, non-2xx responses, decode
// failures, and {valid:false} all map to the same failure: spec.md §4.2's
// "network or decoding errors ... treated as validation failure."
func (app *App) validateExternal(ctx context.Context, externalToken string) (string, error) {
	internalTok, err := authjwt.MintInternal(app.InternalSecret, time.Minute)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(validateReq{UserToken: externalToken})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		app.IdentityBaseURL+"/api/v1/auth/validate-user-jwt", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+internalTok)

	resp, err := app.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", authjwt.ErrInvalidToken
	}

	var out validateResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if !out.Valid || out.UserID == "" {
		return "", authjwt.ErrInvalidToken
	}
	return out.UserID, nil
}

// InternalOnly gates peer-service-only routes (the idempotency sweeper)
// behind the same internal JWT strategy Identity uses for its own
// validate-user-jwt endpoint.
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
