package main

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerplatform/identity-ledger/pkg/dbkit"
	"github.com/ledgerplatform/identity-ledger/pkg/httpkit"
)

// User is Identity's sole owned entity. PasswordHash never leaves this
// package via a response DTO.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserView is the wire-safe projection of User.
type UserView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u User) View() UserView {
	return UserView{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store { return &Store{db: db} }

func (s *Store) CreateUser(ctx context.Context, email, passwordHash, firstName, lastName string) (User, error) {
	var u User
	err := s.db.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, first_name, last_name)
		VALUES ($1,$2,$3,$4)
		RETURNING id, email, password_hash, first_name, last_name, created_at, updated_at
	`, email, passwordHash, firstName, lastName).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if dbkit.IsUniqueViolation(err) {
			return User{}, httpkit.NewAppError(httpkit.KindEmailConflict, "email already registered")
		}
		return User{}, err
	}
	return u, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := s.db.QueryRow(ctx, `
		SELECT id, email, password_hash, first_name, last_name, created_at, updated_at
		FROM users WHERE email=$1
	`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, httpkit.NewAppError(httpkit.KindNotFound, "user not found")
	}
	return u, err
}

func (s *Store) FindByID(ctx context.Context, id string) (User, error) {
	var u User
	err := s.db.QueryRow(ctx, `
		SELECT id, email, password_hash, first_name, last_name, created_at, updated_at
		FROM users WHERE id=$1
	`, id).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, httpkit.NewAppError(httpkit.KindNotFound, "user not found")
	}
	return u, err
}

func (s *Store) ListUsers(ctx context.Context, limit int) ([]User, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, email, password_hash, first_name, last_name, created_at, updated_at
		FROM users ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, id, firstName, lastName string) (User, error) {
	var u User
	err := s.db.QueryRow(ctx, `
		UPDATE users SET first_name=$2, last_name=$3, updated_at=now()
		WHERE id=$1
		RETURNING id, email, password_hash, first_name, last_name, created_at, updated_at
	`, id, firstName, lastName).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, httpkit.NewAppError(httpkit.KindNotFound, "user not found")
	}
	return u, err
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id=$1`, id); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpkit.NewAppError(httpkit.KindNotFound, "user not found")
	}

	return tx.Commit(ctx)
}

// StoreRefreshToken records a freshly minted refresh token's metadata so it
// can be rotated/revoked later.
func (s *Store) StoreRefreshToken(ctx context.Context, userID, jti, userAgent, ip string, expiresAt time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO refresh_tokens (user_id, jti, user_agent, ip, expires_at)
		VALUES ($1,$2,$3,$4,$5)
	`, userID, jti, userAgent, ip, expiresAt)
	return err
}

type refreshTokenRow struct {
	UserID    string
	Role      string
	RevokedAt *time.Time
	ExpiresAt time.Time
}

func (s *Store) FindRefreshToken(ctx context.Context, jti string) (refreshTokenRow, error) {
	var row refreshTokenRow
	err := s.db.QueryRow(ctx, `
		SELECT user_id, revoked_at, expires_at FROM refresh_tokens WHERE jti=$1
	`, jti).Scan(&row.UserID, &row.RevokedAt, &row.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return refreshTokenRow{}, httpkit.NewAppError(httpkit.KindUnauthorized, "refresh token not recognized")
	}
	return row, err
}

func (s *Store) RevokeRefreshToken(ctx context.Context, jti string) error {
	_, err := s.db.Exec(ctx, `UPDATE refresh_tokens SET revoked_at=now() WHERE jti=$1`, jti)
	return err
}
