package main

import (
	"net/http"

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

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := app.DB.Ping(r.Context()); err != nil {
			httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindInternal, "db not ready"))
			return
		}
		w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/status", app.GetStatus)

		api.With(app.InternalOnly).Post("/internal/sweep-idempotency", app.SweepIdempotency)

		api.Group(func(pr chi.Router) {
			pr.Use(app.AuthMiddleware)
			pr.Post("/transactions", app.PostTransaction)
			pr.Get("/transactions", app.ListTransactions)
			pr.Get("/balance", app.GetBalance)
		})
	})

	return httpkit.WithConcurrencyLimit(r, maxInflight)
}
