package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"panelbill/internal/ledger"
	"panelbill/internal/model"
)

func (s *Store) GetAccount(ctx context.Context, accountID string) (model.Account, error) {
	var a model.Account
	err := s.db.QueryRow(ctx, `
		SELECT id, balance, banned, discord_linked, is_admin, created_at
		FROM accounts WHERE id = $1`, accountID,
	).Scan(&a.ID, &a.Balance, &a.Banned, &a.DiscordLinked, &a.Admin, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Account{}, ledger.ErrAccountNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("get account %s: %w", accountID, err)
	}
	return a, nil
}

func (s *Store) CreateAccount(ctx context.Context, a model.Account) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO accounts (id, balance, banned, discord_linked, is_admin)
		VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.Balance, a.Banned, a.DiscordLinked, a.Admin)
	if err != nil {
		return fmt.Errorf("create account %s: %w", a.ID, err)
	}
	return nil
}

// CreditBalance is a monotonic increment; no guard needed beyond the row
// existing. Returns the balance the UPDATE itself produced.
func (s *Store) CreditBalance(ctx context.Context, accountID string, amount int64) (int64, error) {
	var balanceAfter int64
	err := s.db.QueryRow(ctx, `
		UPDATE accounts SET balance = balance + $2
		WHERE id = $1
		RETURNING balance`, accountID, amount,
	).Scan(&balanceAfter)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ledger.ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("credit account %s: %w", accountID, err)
	}
	return balanceAfter, nil
}

// DebitBalance is the race-safe conditional decrement: one UPDATE guarded
// by balance >= amount, indivisible on the row. Zero rows affected means
// either the account is missing or the balance cannot cover the amount;
// the follow-up existence check distinguishes the two.
func (s *Store) DebitBalance(ctx context.Context, accountID string, amount int64) (int64, error) {
	var balanceAfter int64
	err := s.db.QueryRow(ctx, `
		UPDATE accounts SET balance = balance - $2
		WHERE id = $1 AND balance >= $2
		RETURNING balance`, accountID, amount,
	).Scan(&balanceAfter)
	if err == nil {
		return balanceAfter, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("debit account %s: %w", accountID, err)
	}
	var exists bool
	if err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, accountID,
	).Scan(&exists); err != nil {
		return 0, fmt.Errorf("debit account %s: existence check: %w", accountID, err)
	}
	if !exists {
		return 0, ledger.ErrAccountNotFound
	}
	return 0, ledger.ErrInsufficientFunds
}

func (s *Store) AccountBalance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	err := s.db.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ledger.ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("balance of account %s: %w", accountID, err)
	}
	return balance, nil
}
