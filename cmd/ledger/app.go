package main

import (
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// App is the wiring root for the Ledger service. Unlike Identity, the
// Ledger never parses an external token itself — spec.md §4.2 requires
// every principal to come from Identity's remote verdict, so only the
// internal secret (used to mint the request to Identity) lives here.
type App struct {
	DB    *pgxpool.Pool
	Store *Store

	InternalSecret []byte

	IdentityBaseURL string
	HTTPClient      *http.Client
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 5 * time.Second}
}
