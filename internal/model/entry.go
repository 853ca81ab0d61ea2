package model

import "time"

type EntryDirection string

const (
	DirectionCredit EntryDirection = "credit"
	DirectionDebit  EntryDirection = "debit"
)

// LedgerEntry is one immutable row of the append-only transaction log.
// BalanceAfter is the balance the atomic operation itself reported, never
// a separately-read snapshot.
type LedgerEntry struct {
	ID             string
	AccountID      string
	Direction      EntryDirection
	Amount         int64
	Description    string
	BalanceAfter   int64
	Metadata       map[string]any
	IdempotencyKey string
	CreatedAt      time.Time
}
