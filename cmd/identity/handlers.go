package main

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ledgerplatform/identity-ledger/pkg/authjwt"
	"github.com/ledgerplatform/identity-ledger/pkg/httpkit"
	"github.com/ledgerplatform/identity-ledger/pkg/security"
)

type registerReq struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authUserView is the minimal user projection spec.md §4.1 names for
// Login: {id, email, first_name, last_name}. It is a distinct, narrower
// type from UserView so a login response can never round-trip a password
// digest even by accident.
type authUserView struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type loginResp struct {
	User         authUserView `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
}

func validEmail(email string) bool {
	if email == "" || strings.Count(email, "@") != 1 {
		return false
	}
	parts := strings.SplitN(email, "@", 2)
	return len(parts[0]) > 0 && strings.Contains(parts[1], ".")
}

// Register implements spec.md §4.1's Register operation.
func (app *App) Register(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindInvalidInput, "invalid json"))
		return
	}
	req.Email = strings.TrimSpace(req.Email)

	if !validEmail(req.Email) || len(req.FirstName) < 2 || len(req.LastName) < 2 || len(req.Password) < 6 {
		httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindInvalidInput, "invalid registration fields"))
		return
	}

	hash, err := security.HashPassword(req.Password)
	if err != nil {
		log.Error().Err(err).Msg("argon2 hash error")
		httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindInternal, "hash error"))
		return
	}

	u, err := app.Store.CreateUser(r.Context(), req.Email, hash, req.FirstName, req.LastName)
	if err != nil {
		if httpkit.StatusFor(err) != http.StatusInternalServerError {
			httpkit.WriteError(w, err)
			return
		}
		log.Error().Err(err).Msg("create user failed")
		httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindInternal, "create user failed"))
		return
	}

	httpkit.WriteJSON(w, http.StatusCreated, u.View())
}

// Login implements spec.md §4.1's Login operation, plus the refresh-token
// rotation SPEC_FULL.md §4.1 supplements.
func (app *App) Login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindInvalidInput, "invalid json"))
		return
	}
	req.Email = strings.TrimSpace(req.Email)

	u, err := app.Store.FindByEmail(r.Context(), req.Email)
	if err != nil {
		if httpkit.StatusFor(err) == http.StatusNotFound {
			httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindUnauthorized, "invalid credentials"))
			return
		}
		log.Error().Err(err).Msg("select user on login failed")
		httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindInternal, "db error"))
		return
	}

	ok, err := security.CheckPassword(req.Password, u.PasswordHash)
	if err != nil || !ok {
		httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindUnauthorized, "invalid credentials"))
		return
	}

	access, refresh, err := app.issueTokens(r, u.ID)
	if err != nil {
		log.Error().Err(err).Str("user_id", u.ID).Msg("issue tokens failed")
		httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindInternal, "token issue error"))
		return
	}

	httpkit.WriteJSON(w, http.StatusOK, loginResp{
		User: authUserView{ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName},
		AccessToken:  access,
		RefreshToken: refresh,
	})
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

func (app *App) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshReq
	if err := httpkit.DecodeJSON(r, &body); err != nil || body.RefreshToken == "" {
		httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindInvalidInput, "invalid json"))
		return
	}

	userID, jti, err := authjwt.ParseRefreshSubjectAndID(app.ExternalSecret, body.RefreshToken)
	if err != nil {
		httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindUnauthorized, "invalid refresh token"))
		return
	}

	row, err := app.Store.FindRefreshToken(r.Context(), jti)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	if row.RevokedAt != nil || time.Now().After(row.ExpiresAt) || row.UserID != userID {
		httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindUnauthorized, "refresh token no longer valid"))
		return
	}

	if err := app.Store.RevokeRefreshToken(r.Context(), jti); err != nil {
		log.Error().Err(err).Str("jti", jti).Msg("revoke old refresh token failed")
	}

	access, refresh, err := app.issueTokens(r, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("issue tokens failed")
		httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindInternal, "token issue error"))
		return
	}

	u, err := app.Store.FindByID(r.Context(), userID)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}

	httpkit.WriteJSON(w, http.StatusOK, loginResp{
		User: authUserView{ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName},
		AccessToken:  access,
		RefreshToken: refresh,
	})
}

// ValidateExternalToken implements spec.md §4.1's ValidateExternalToken,
// gated by InternalOnly middleware in the router.
type validateReq struct {
	UserToken string `json:"user_token"`
}

type validateResp struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"user_id,omitempty"`
}

func (app *App) ValidateExternalToken(w http.ResponseWriter, r *http.Request) {
	var body validateReq
	if err := httpkit.DecodeJSON(r, &body); err != nil {
		httpkit.WriteJSON(w, http.StatusOK, validateResp{Valid: false})
		return
	}
	claims, err := authjwt.ParseExternal(app.ExternalSecret, body.UserToken)
	if err != nil {
		httpkit.WriteJSON(w, http.StatusOK, validateResp{Valid: false})
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, validateResp{Valid: true, UserID: claims.Subject})
}

func (app *App) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := app.Store.ListUsers(r.Context(), 50)
	if err != nil {
		log.Error().Err(err).Msg("list users failed")
		httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindInternal, "db error"))
		return
	}
	views := make([]UserView, 0, len(users))
	for _, u := range users {
		views = append(views, u.View())
	}
	httpkit.WriteJSON(w, http.StatusOK, views)
}

func (app *App) ReadSelf(w http.ResponseWriter, r *http.Request) {
	principal, _ := getUserID(r)
	target := chi.URLParam(r, "id")
	if principal != target {
		httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindForbidden, "not your resource"))
		return
	}
	u, err := app.Store.FindByID(r.Context(), target)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, u.View())
}

type updateSelfReq struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (app *App) UpdateSelf(w http.ResponseWriter, r *http.Request) {
	principal, _ := getUserID(r)
	target := chi.URLParam(r, "id")
	if principal != target {
		httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindForbidden, "not your resource"))
		return
	}
	var body updateSelfReq
	if err := httpkit.DecodeJSON(r, &body); err != nil || len(body.FirstName) < 2 || len(body.LastName) < 2 {
		httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindInvalidInput, "invalid update fields"))
		return
	}
	u, err := app.Store.UpdateUser(r.Context(), target, body.FirstName, body.LastName)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, u.View())
}

func (app *App) DeleteSelf(w http.ResponseWriter, r *http.Request) {
	principal, _ := getUserID(r)
	target := chi.URLParam(r, "id")
	if principal != target {
		httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindForbidden, "not your resource"))
		return
	}
	if err := app.Store.DeleteUser(r.Context(), target); err != nil {
		httpkit.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *App) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := app.DB.Ping(r.Context()); err != nil {
		httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindInternal, "db not ready"))
		return
	}
	w.Write([]byte("ok"))
}

func (app *App) issueTokens(r *http.Request, userID string) (access, refresh string, err error) {
	u, err := app.Store.FindByID(r.Context(), userID)
	if err != nil {
		return "", "", err
	}

	access, err = authjwt.MintExternal(app.ExternalSecret, u.ID, u.Email, app.AccessTokenTTL)
	if err != nil {
		return "", "", err
	}

	jti := uuid.NewString()
	refresh, err = authjwt.MintRefresh(app.ExternalSecret, u.ID, jti, app.RefreshTokenTTL)
	if err != nil {
		return "", "", err
	}

	ua, ip := r.UserAgent(), clientIP(r)
	if err := app.Store.StoreRefreshToken(r.Context(), u.ID, jti, ua, ip, time.Now().Add(app.RefreshTokenTTL)); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func clientIP(r *http.Request) string {
	if x := r.Header.Get("X-Forwarded-For"); x != "" {
		parts := strings.Split(x, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
