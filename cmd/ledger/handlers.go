package main

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/ledgerplatform/identity-ledger/pkg/httpkit"
)

type postTransactionReq struct {
	Amount int64  `json:"amount"`
	Type   TxType `json:"type"`
}

// PostTransaction implements spec.md §4.3's write protocol at the HTTP
// boundary: decode, extract the optional idempotency key, and hand off to
// the store's retrying write protocol.
func (app *App) PostTransaction(w http.ResponseWriter, r *http.Request) {
	userID, _ := getUserID(r)

	var req postTransactionReq
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindInvalidInput, "invalid json"))
		return
	}

	idemKey := r.Header.Get("x-idempotency-key")

	view, err := app.Store.PostTransaction(r.Context(), userID, req.Type, req.Amount, idemKey)
	if err != nil {
		if httpkit.StatusFor(err) != http.StatusInternalServerError {
			httpkit.WriteError(w, err)
			return
		}
		log.Error().Err(err).Str("user_id", userID).Msg("post transaction failed")
		httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindInternal, "write failed"))
		return
	}

	httpkit.WriteJSON(w, http.StatusOK, view)
}

// ListTransactions implements spec.md §4.4: the authenticated principal's
// own transactions, newest first, optionally filtered by type.
func (app *App) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, _ := getUserID(r)
	filter := TxType(r.URL.Query().Get("type"))
	if filter != "" && filter != Credit && filter != Debit {
		httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindInvalidInput, "type must be CREDIT or DEBIT"))
		return
	}

	txs, err := app.Store.ListTransactions(r.Context(), userID, filter)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("list transactions failed")
		httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindInternal, "db error"))
		return
	}

	views := make([]TransactionView, 0, len(txs))
	for _, t := range txs {
		views = append(views, TransactionView{ID: t.ID, UserID: t.UserID, Amount: t.Amount, Type: t.Type})
	}
	httpkit.WriteJSON(w, http.StatusOK, views)
}

type balanceResp struct {
	Amount int64 `json:"amount"`
}

func (app *App) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, _ := getUserID(r)
	balance, err := app.Store.Balance(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("read balance failed")
		httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindInternal, "db error"))
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, balanceResp{Amount: balance})
}

func (app *App) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := app.Store.Status(r.Context())
	if err != nil {
		httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindInternal, "db not ready"))
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, status)
}

type sweepResp struct {
	Deleted int64 `json:"deleted"`
}

// SweepIdempotency implements spec.md §4.5's maintenance operation, gated
// by InternalOnly so only a peer service or trusted scheduler can trigger
// it.
func (app *App) SweepIdempotency(w http.ResponseWriter, r *http.Request) {
	n, err := app.Store.SweepExpiredIdempotencyKeys(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("idempotency sweep failed")
		httpkit.WriteError(w, httpkit.NewAppError(httpkit.KindInternal, "sweep failed"))
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, sweepResp{Deleted: n})
}
