package model

import "time"

// Bus topics. Notification delivery (email, webhooks, Discord DM) is an
// external collaborator that subscribes to these.
const (
	TopicResourceSuspended  = "billing.resource.suspended"
	TopicResourceResumed    = "billing.resource.resumed"
	TopicResourceTerminated = "billing.resource.terminated"
	TopicLedgerEntryCreated = "billing.ledger.entry_created"
	TopicRewardEarned       = "rewards.earned"
)

type ResourceSuspendedEvent struct {
	ResourceID string        `json:"resource_id"`
	AccountID  string        `json:"account_id"`
	Reason     SuspendReason `json:"reason"`
	At         time.Time     `json:"at"`
}

type ResourceResumedEvent struct {
	ResourceID string    `json:"resource_id"`
	AccountID  string    `json:"account_id"`
	At         time.Time `json:"at"`
}

type ResourceTerminatedEvent struct {
	ResourceID string    `json:"resource_id"`
	AccountID  string    `json:"account_id"`
	At         time.Time `json:"at"`
}

type LedgerEntryCreatedEvent struct {
	EntryID      string         `json:"entry_id"`
	AccountID    string         `json:"account_id"`
	Direction    EntryDirection `json:"direction"`
	Amount       int64          `json:"amount"`
	BalanceAfter int64          `json:"balance_after"`
	CreatedAt    time.Time      `json:"created_at"`
}

// RewardEarned is published by the panel (games, tasks, promotions) and
// consumed by the rewards worker, which credits the ledger exactly once
// per idempotency key.
type RewardEarned struct {
	AccountID      string    `json:"account_id"`
	Amount         int64     `json:"amount"`
	Source         string    `json:"source"`
	IdempotencyKey string    `json:"idempotency_key"`
	EarnedAt       time.Time `json:"earned_at"`
}
