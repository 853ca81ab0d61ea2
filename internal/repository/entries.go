package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"panelbill/internal/ledger"
	"panelbill/internal/model"
)

// pgUniqueViolation is the SQLSTATE for unique constraint violations.
const pgUniqueViolation = "23505"

func (s *Store) InsertEntry(ctx context.Context, e *model.LedgerEntry) error {
	var meta []byte
	if e.Metadata != nil {
		var err error
		meta, err = json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal entry metadata: %w", err)
		}
	}
	var idemKey any
	if e.IdempotencyKey != "" {
		idemKey = e.IdempotencyKey
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO ledger_entries
			(id, account_id, direction, amount, description, balance_after, metadata, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.AccountID, string(e.Direction), e.Amount, e.Description,
		e.BalanceAfter, meta, idemKey, e.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ledger.ErrDuplicateEntry
	}
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (s *Store) Entries(ctx context.Context, accountID string, limit, offset int) ([]model.LedgerEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, account_id, direction, amount, description, balance_after, metadata, COALESCE(idempotency_key, ''), created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries for %s: %w", accountID, err)
	}
	defer rows.Close()

	var out []model.LedgerEntry
	for rows.Next() {
		var (
			e         model.LedgerEntry
			direction string
			meta      []byte
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &direction, &e.Amount, &e.Description,
			&e.BalanceAfter, &meta, &e.IdempotencyKey, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Direction = model.EntryDirection(direction)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal entry metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EntrySums returns the credit and debit totals of an account's log, used
// by the reconciliation check.
func (s *Store) EntrySums(ctx context.Context, accountID string) (credits, debits int64, err error) {
	err = s.db.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE direction = 'credit'), 0),
			COALESCE(SUM(amount) FILTER (WHERE direction = 'debit'), 0)
		FROM ledger_entries WHERE account_id = $1`, accountID,
	).Scan(&credits, &debits)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("sum ledger entries for %s: %w", accountID, err)
	}
	return credits, debits, nil
}

// InTx satisfies ledger.Store: the ledger's balance mutation and entry
// append commit or roll back together.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return s.withTx(ctx, func(ctx context.Context, txStore *Store) error {
		return fn(ctx, txStore)
	})
}
