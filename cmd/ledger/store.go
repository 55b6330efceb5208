package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerplatform/identity-ledger/pkg/dbkit"
	"github.com/ledgerplatform/identity-ledger/pkg/httpkit"
)

// TxType is one of the two postings this ledger records.
type TxType string

const (
	Credit TxType = "CREDIT"
	Debit  TxType = "DEBIT"

	pendingSentinel = "__PENDING__"

	pendingTTL  = 90 * 24 * time.Hour
	finalizeTTL = 24 * time.Hour
)

// TransactionView is the wire shape returned for a posted or replayed
// transaction: spec.md §6's `{id, user_id, amount, type}`.
type TransactionView struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
	Type   TxType `json:"type"`
}

// Transaction is a single immutable log row.
type Transaction struct {
	ID             string
	UserID         string
	Type           TxType
	Amount         int64
	IdempotencyKey *string
	CreatedAt      time.Time
}

type Store struct {
	db *pgxpool.Pool

	statementTimeout time.Duration
	lockTimeout      time.Duration
	maxRetries       int
}

func NewStore(db *pgxpool.Pool, statementTimeout, lockTimeout time.Duration, maxRetries int) *Store {
	if maxRetries <= 0 {
		maxRetries = 10
	}
	return &Store{db: db, statementTimeout: statementTimeout, lockTimeout: lockTimeout, maxRetries: maxRetries}
}

// outcome tags the result of one attempt at the write protocol, standing in
// for the exception-for-signalling pattern the source uses: only
// Serialization is retried by the caller, everything else is terminal.
type outcome int

const (
	outcomeCommitted outcome = iota
	outcomeDuplicate
	outcomeInsufficient
	outcomeSerialization
	outcomeOther
)

type writeResult struct {
	outcome  outcome
	response TransactionView

	// populated only when outcome == outcomeInsufficient
	currentBalance int64
	shortage       int64

	// populated only when outcome == outcomeOther
	err error
}

// PostTransaction runs the Ledger's transactional write protocol: validate
// amount, reserve the idempotency key, read the snapshot, compute the
// proposed balance, append to the log, upsert the snapshot, finalize the
// idempotency record, commit. On serialization failures this function
// retries with exponential backoff and jitter, making at most maxRetries
// attempts in total (10 by default); every other outcome is terminal.
func (s *Store) PostTransaction(ctx context.Context, userID string, txType TxType, amount int64, idemKey string) (TransactionView, error) {
	if amount <= 0 {
		return TransactionView{}, httpkit.NewAppError(httpkit.KindInvalidAmount, "amount must be positive")
	}
	if txType != Credit && txType != Debit {
		return TransactionView{}, httpkit.NewAppError(httpkit.KindInvalidInput, "type must be CREDIT or DEBIT")
	}

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		res := s.attempt(ctx, userID, txType, amount, idemKey)

		switch res.outcome {
		case outcomeCommitted, outcomeDuplicate:
			return res.response, nil
		case outcomeInsufficient:
			return TransactionView{}, httpkit.NewAppError(httpkit.KindInsufficientBalance, "debit would overdraw account").
				WithDetails(map[string]any{
					"current_balance":  res.currentBalance,
					"requested_amount": amount,
					"shortage":         res.shortage,
				})
		case outcomeSerialization:
			if attempt == s.maxRetries {
				return TransactionView{}, httpkit.NewAppError(httpkit.KindInternal, "serialization retries exhausted")
			}
			sleepBackoff(attempt)
			continue
		default:
			return TransactionView{}, httpkit.NewAppError(httpkit.KindInternal, "write failed").WithDetails(res.err.Error())
		}
	}
	return TransactionView{}, httpkit.NewAppError(httpkit.KindInternal, "serialization retries exhausted")
}

func (s *Store) attempt(ctx context.Context, userID string, txType TxType, amount int64, idemKey string) writeResult {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: pgx.ReadWrite})
	if err != nil {
		if dbkit.IsSerializationFailure(err) {
			return writeResult{outcome: outcomeSerialization}
		}
		return writeResult{outcome: outcomeOther, err: err}
	}
	defer tx.Rollback(ctx)

	// SET does not accept bind parameters, so the millisecond values are
	// formatted into the statement text.
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", s.statementTimeout.Milliseconds())); err != nil {
		return writeResult{outcome: outcomeOther, err: err}
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", s.lockTimeout.Milliseconds())); err != nil {
		return writeResult{outcome: outcomeOther, err: err}
	}

	hasKey := idemKey != ""

	if hasKey {
		if res, done := s.probeIdempotency(ctx, tx, idemKey); done {
			return res
		}
	}

	var balance, version int64
	err = tx.QueryRow(ctx, `SELECT balance, version FROM accounts WHERE user_id = $1`, userID).Scan(&balance, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			balance, version = 0, 0
		} else if dbkit.IsSerializationFailure(err) {
			return writeResult{outcome: outcomeSerialization}
		} else {
			return writeResult{outcome: outcomeOther, err: err}
		}
	}

	var delta int64
	if txType == Credit {
		delta = amount
	} else {
		delta = -amount
	}
	newBalance := balance + delta
	if newBalance < 0 {
		return writeResult{outcome: outcomeInsufficient, currentBalance: balance, shortage: -newBalance}
	}

	txID := uuid.NewString()
	var keyCol *string
	if hasKey {
		keyCol = &idemKey
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, type, amount, idempotency_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, now())`,
		txID, userID, string(txType), amount, keyCol,
	)
	if err != nil {
		if dbkit.IsSerializationFailure(err) {
			return writeResult{outcome: outcomeSerialization}
		}
		return writeResult{outcome: outcomeOther, err: err}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO accounts (id, user_id, balance, version, created_at, updated_at)
		 VALUES ($1, $2, $3, 1, now(), now())
		 ON CONFLICT (user_id) DO UPDATE
		 SET balance = accounts.balance + $4, version = accounts.version + 1, updated_at = now()`,
		uuid.NewString(), userID, newBalance, delta,
	)
	if err != nil {
		if dbkit.IsSerializationFailure(err) {
			return writeResult{outcome: outcomeSerialization}
		}
		return writeResult{outcome: outcomeOther, err: err}
	}

	view := TransactionView{ID: txID, UserID: userID, Amount: amount, Type: txType}

	if hasKey {
		body, err := json.Marshal(view)
		if err != nil {
			return writeResult{outcome: outcomeOther, err: err}
		}
		_, err = tx.Exec(ctx,
			`UPDATE idempotency_keys SET response = $1, expires_at = now() + $2 WHERE key = $3`,
			string(body), finalizeTTL, idemKey,
		)
		if err != nil {
			if dbkit.IsSerializationFailure(err) {
				return writeResult{outcome: outcomeSerialization}
			}
			return writeResult{outcome: outcomeOther, err: err}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if dbkit.IsSerializationFailure(err) {
			return writeResult{outcome: outcomeSerialization}
		}
		return writeResult{outcome: outcomeOther, err: err}
	}

	return writeResult{outcome: outcomeCommitted, response: view}
}

// probeIdempotency implements step 2 of the write protocol. done is true
// when the caller should return res immediately without proceeding to the
// balance/append/upsert steps: a finalized duplicate was found, the key is
// held by another attempt (pending or a lost reservation race, reported as a
// serialization outcome for the outer loop to retry), or an error occurred.
// done is false only when this attempt reserved the key itself.
func (s *Store) probeIdempotency(ctx context.Context, tx pgx.Tx, idemKey string) (writeResult, bool) {
	var response string
	err := tx.QueryRow(ctx,
		`SELECT response FROM idempotency_keys WHERE key = $1 AND expires_at > now()`,
		idemKey,
	).Scan(&response)

	switch {
	case err == nil:
		if response == pendingSentinel {
			// Another attempt holds the reservation mid-commit; this one
			// cannot proceed safely, so it is treated as a conflict for the
			// outer loop to retry. By the time it retries, the racing
			// committer has either finalized (case below) or rolled back
			// and the row is gone (insert-branch below wins instead).
			return writeResult{outcome: outcomeSerialization}, true
		}
		var cached TransactionView
		if jsonErr := json.Unmarshal([]byte(response), &cached); jsonErr != nil {
			return writeResult{outcome: outcomeOther, err: jsonErr}, true
		}
		return writeResult{outcome: outcomeDuplicate, response: cached}, true

	case errors.Is(err, pgx.ErrNoRows):
		tag, insertErr := tx.Exec(ctx,
			`INSERT INTO idempotency_keys (id, key, response, created_at, expires_at)
			 VALUES ($1, $2, $3, now(), now() + $4)
			 ON CONFLICT (key) DO NOTHING`,
			uuid.NewString(), idemKey, pendingSentinel, pendingTTL,
		)
		if insertErr != nil {
			if dbkit.IsSerializationFailure(insertErr) {
				return writeResult{outcome: outcomeSerialization}, true
			}
			return writeResult{outcome: outcomeOther, err: insertErr}, true
		}
		if tag.RowsAffected() == 0 {
			// Lost the race to reserve; a concurrent attempt holds it.
			return writeResult{outcome: outcomeSerialization}, true
		}
		return writeResult{}, false

	default:
		if dbkit.IsSerializationFailure(err) {
			return writeResult{outcome: outcomeSerialization}, true
		}
		return writeResult{outcome: outcomeOther, err: err}, true
	}
}

// Balance returns the authenticated user's current balance, falling back
// to summing the transaction log when no snapshot exists yet.
func (s *Store) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := s.db.QueryRow(ctx, `SELECT balance FROM accounts WHERE user_id = $1`, userID).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	var credit, debit int64
	if err := s.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE user_id = $1 AND type = 'CREDIT'`, userID,
	).Scan(&credit); err != nil {
		return 0, err
	}
	if err := s.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE user_id = $1 AND type = 'DEBIT'`, userID,
	).Scan(&debit); err != nil {
		return 0, err
	}
	return credit - debit, nil
}

// ListTransactions returns userID's transactions newest first, optionally
// filtered by type.
func (s *Store) ListTransactions(ctx context.Context, userID string, typeFilter TxType) ([]Transaction, error) {
	var rows pgx.Rows
	var err error
	if typeFilter == "" {
		rows, err = s.db.Query(ctx,
			`SELECT id, user_id, type, amount, idempotency_key, created_at
			 FROM transactions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	} else {
		rows, err = s.db.Query(ctx,
			`SELECT id, user_id, type, amount, idempotency_key, created_at
			 FROM transactions WHERE user_id = $1 AND type = $2 ORDER BY created_at DESC`,
			userID, string(typeFilter))
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		var typ string
		if err := rows.Scan(&t.ID, &t.UserID, &typ, &t.Amount, &t.IdempotencyKey, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = TxType(typ)
		out = append(out, t)
	}
	return out, rows.Err()
}

// SweepExpiredIdempotencyKeys deletes idempotency records past their
// expiry — both stale PENDING reservations and finalized records older
// than their retention window — and returns the number removed.
func (s *Store) SweepExpiredIdempotencyKeys(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Status reports database dependency health for GET /status.
type Status struct {
	DBVersion       string `json:"db_version"`
	MaxConnections  int32  `json:"max_connections"`
	OpenConnections int32  `json:"open_connections"`
}

func (s *Store) Status(ctx context.Context) (Status, error) {
	var version string
	if err := s.db.QueryRow(ctx, `SELECT version()`).Scan(&version); err != nil {
		return Status{}, err
	}
	stat := s.db.Stat()
	return Status{
		DBVersion:       version,
		MaxConnections:  stat.MaxConns(),
		OpenConnections: stat.TotalConns(),
	}, nil
}
