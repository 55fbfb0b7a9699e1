// Package coins implements the coin ledger: a running balance per user plus
// an append-only transaction log.
//
// Every credit or debit updates coin_accounts and appends to
// coin_transactions inside one SQL transaction, so
// balance = total_earned − total_spent holds after every commit. The same
// identity and balance ≥ 0 are also enforced by CHECK constraints.
package coins

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInsufficientBalance is returned by Debit when amount exceeds the balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidAmount is returned for non-positive amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// Transaction types.
const (
	TypeEarn  = "earn"
	TypeSpend = "spend"
)

// Account is a user's running totals.
type Account struct {
	UserID      string    `json:"userId"`
	Balance     int64     `json:"balance"`
	TotalEarned int64     `json:"totalEarned"`
	TotalSpent  int64     `json:"totalSpent"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Transaction is one immutable ledger entry.
type Transaction struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Type         string    `json:"type"`
	Amount       int64     `json:"amount"`
	Reason       string    `json:"reason"`
	BalanceAfter int64     `json:"balanceAfter"`
	CreatedAt    time.Time `json:"createdAt"`
}

// StatementLine totals the transactions of one type and reason.
type StatementLine struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
	Count  int    `json:"count"`
	Total  int64  `json:"total"`
}

// Statement is an account summary grouped by reason.
type Statement struct {
	Account Account         `json:"account"`
	Lines   []StatementLine `json:"lines"`
}

// Ledger is the SQLite-backed coin ledger.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Credit adds amount to the user's balance.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int64, reason string) (Account, error) {
	if amount <= 0 {
		return Account{}, ErrInvalidAmount
	}
	return l.apply(ctx, userID, TypeEarn, amount, reason,
		`UPDATE coin_accounts
		 SET balance = balance + ?1, total_earned = total_earned + ?1, last_updated = ?2
		 WHERE user_id = ?3
		 RETURNING balance, total_earned, total_spent`)
}

// Debit removes amount from the user's balance. It fails with
// ErrInsufficientBalance, leaving the account untouched, when amount exceeds
// the balance.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int64, reason string) (Account, error) {
	if amount <= 0 {
		return Account{}, ErrInvalidAmount
	}
	return l.apply(ctx, userID, TypeSpend, amount, reason,
		`UPDATE coin_accounts
		 SET balance = balance - ?1, total_spent = total_spent + ?1, last_updated = ?2
		 WHERE user_id = ?3 AND balance >= ?1
		 RETURNING balance, total_earned, total_spent`)
}

func (l *Ledger) apply(ctx context.Context, userID, typ string, amount int64, reason, update string) (Account, error) {
	now := l.now().UTC()
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Account{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO coin_accounts(user_id, last_updated) VALUES(?, ?)
		 ON CONFLICT(user_id) DO NOTHING`, userID, now.UnixMilli()); err != nil {
		return Account{}, fmt.Errorf("ensure coin account: %w", err)
	}

	acc := Account{UserID: userID, LastUpdated: time.UnixMilli(now.UnixMilli()).UTC()}
	err = tx.QueryRowContext(ctx, update, amount, now.UnixMilli(), userID).
		Scan(&acc.Balance, &acc.TotalEarned, &acc.TotalSpent)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrInsufficientBalance
	}
	if err != nil {
		return Account{}, fmt.Errorf("update coin account: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO coin_transactions(id, user_id, type, amount, reason, balance_after, created_at)
		 VALUES(?,?,?,?,?,?,?)`,
		uuid.NewString(), userID, typ, amount, reason, acc.Balance, now.UnixMilli()); err != nil {
		return Account{}, fmt.Errorf("insert coin transaction: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Account{}, fmt.Errorf("commit coin transaction: %w", err)
	}
	return acc, nil
}

// Balance returns the user's account. Users without one have a zero account.
func (l *Ledger) Balance(ctx context.Context, userID string) (Account, error) {
	acc := Account{UserID: userID}
	var updated int64
	err := l.db.QueryRowContext(ctx,
		`SELECT balance, total_earned, total_spent, last_updated
		 FROM coin_accounts WHERE user_id = ?`, userID,
	).Scan(&acc.Balance, &acc.TotalEarned, &acc.TotalSpent, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return acc, nil
	}
	if err != nil {
		return Account{}, fmt.Errorf("get coin account: %w", err)
	}
	acc.LastUpdated = time.UnixMilli(updated).UTC()
	return acc, nil
}

// History returns the user's most recent transactions, newest first.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, user_id, type, amount, reason, balance_after, created_at
		 FROM coin_transactions
		 WHERE user_id = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list coin transactions: %w", err)
	}
	defer rows.Close()

	out := make([]Transaction, 0, limit)
	for rows.Next() {
		var (
			t  Transaction
			ms int64
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Reason, &t.BalanceAfter, &ms); err != nil {
			return nil, err
		}
		t.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// Statement returns the account with its transactions totalled by type and reason.
func (l *Ledger) Statement(ctx context.Context, userID string) (Statement, error) {
	acc, err := l.Balance(ctx, userID)
	if err != nil {
		return Statement{}, err
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT type, reason, COUNT(*), SUM(amount)
		 FROM coin_transactions
		 WHERE user_id = ?
		 GROUP BY type, reason
		 ORDER BY type, SUM(amount) DESC, reason`, userID)
	if err != nil {
		return Statement{}, fmt.Errorf("coin statement: %w", err)
	}
	defer rows.Close()

	st := Statement{Account: acc, Lines: []StatementLine{}}
	for rows.Next() {
		var ln StatementLine
		if err := rows.Scan(&ln.Type, &ln.Reason, &ln.Count, &ln.Total); err != nil {
			return Statement{}, err
		}
		st.Lines = append(st.Lines, ln)
	}
	return st, rows.Err()
}
