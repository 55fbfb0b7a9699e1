// internal/httpserver/routes_coins.go
//
// Coin routes (require auth), all scoped to the caller's account:
//   - GET  /coins/balance
//   - POST /coins/add    {amount, reason}
//   - POST /coins/spend  {amount, reason}
//   - GET  /coins/history?limit=
//   - GET  /coins/statement

package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/robalobadob/cardle/internal/apperr"
	"github.com/robalobadob/cardle/internal/coins"
)

func (s *Server) mountCoins() {
	s.r.Route("/coins", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/balance", s.handleBalance)
		r.Post("/add", s.handleCoins(true))
		r.Post("/spend", s.handleCoins(false))
		r.Get("/history", s.handleHistory)
		r.Get("/statement", s.handleStatement)
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	acc, err := s.d.Ledger.Balance(r.Context(), userFrom(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, "balance", acc)
}

type coinsReq struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// handleCoins credits (earn) or debits the caller.
func (s *Server) handleCoins(earn bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req coinsReq
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		req.Reason = strings.TrimSpace(req.Reason)
		if req.Amount <= 0 {
			s.writeError(w, r, apperr.Validation("amount must be a positive integer"))
			return
		}
		if req.Reason == "" {
			s.writeError(w, r, apperr.Validation("reason is required"))
			return
		}

		op, msg := s.d.Ledger.Debit, "coins spent"
		if earn {
			op, msg = s.d.Ledger.Credit, "coins added"
		}
		acc, err := op(r.Context(), userFrom(r).ID, req.Amount, req.Reason)
		if errors.Is(err, coins.ErrInsufficientBalance) {
			s.writeError(w, r, apperr.InsufficientBalance("insufficient balance"))
			return
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ok(w, msg, acc)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	txs, err := s.d.Ledger.History(r.Context(), userFrom(r).ID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, "history", txs)
}

func (s *Server) handleStatement(w http.ResponseWriter, r *http.Request) {
	st, err := s.d.Ledger.Statement(r.Context(), userFrom(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, "statement", st)
}

// queryInt parses an optional integer query parameter; missing is 0.
func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Validation(name + " must be an integer")
	}
	return n, nil
}
