package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/ledgerplatform/identity-ledger/pkg/httpkit"
)

func (app *App) Router(maxInflight int) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)
	r.Use(httpkit.RequestID)
	r.Use(httpkit.SecurityHeaders)
	r.Use(httpkit.AccessLog)

	r.Get("/healthz", app.Healthz)

	rl := httpkit.NewRateLimiter(app.Redis)

	r.Route("/api/v1", func(api chi.Router) {
		api.With(rl.ByIP(20, time.Minute)).Post("/users", app.Register)
		api.With(rl.ByIP(30, time.Minute)).Post("/auth", app.Login)
		api.With(rl.ByIP(60, time.Minute)).Post("/auth/refresh", app.Refresh)

		api.With(app.InternalOnly).Post("/auth/validate-user-jwt", app.ValidateExternalToken)

		api.Group(func(pr chi.Router) {
			pr.Use(app.AuthMiddleware)
			pr.Get("/users", app.ListUsers)
			pr.Get("/users/{id}", app.ReadSelf)
			pr.Patch("/users/{id}", app.UpdateSelf)
			pr.Delete("/users/{id}", app.DeleteSelf)
		})
	})

	return httpkit.WithConcurrencyLimit(r, maxInflight)
}
