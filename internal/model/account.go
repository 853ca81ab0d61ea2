package model

import "time"

// Account is a panel user's wallet. Balance is whole coins and is mutated
// only through the ledger; it must never go negative.
type Account struct {
	ID            string
	Balance       int64
	Banned        bool
	DiscordLinked bool
	Admin         bool
	CreatedAt     time.Time
}

// BillingExempt reports whether policy prechecks are skipped for this owner.
func (a Account) BillingExempt() bool {
	return a.Admin
}
