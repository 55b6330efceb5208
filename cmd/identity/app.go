package main

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// App is the wiring root for the Identity service: every handler hangs off
// this struct instead of reading ambient globals.
type App struct {
	DB              *pgxpool.Pool
	Store           *Store
	ExternalSecret  []byte
	InternalSecret  []byte
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Redis           *redis.Client
}
