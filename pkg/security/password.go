// Package security wraps argon2id password hashing so callers never touch
// a raw password or digest directly.
package security

import "github.com/alexedwards/argon2id"

// params pins concrete argon2id costs (64 MiB memory, 3 iterations,
// parallelism 2, 16-byte salt, 32-byte key) rather than using the library's
// DefaultParams. argon2id has no single "cost factor" knob (a bcrypt-ism),
// so the memory/time/parallelism costs are fixed here instead.
var params = &argon2id.Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// HashPassword returns an argon2id digest safe to store in the database.
func HashPassword(password string) (string, error) {
	return argon2id.CreateHash(password, params)
}

// CheckPassword reports whether password matches the stored digest.
func CheckPassword(password, hash string) (bool, error) {
	return argon2id.ComparePasswordAndHash(password, hash)
}
