package model

import "time"

type ResourceStatus string

const (
	StatusInstalling ResourceStatus = "installing"
	StatusActive     ResourceStatus = "active"
	StatusSuspended  ResourceStatus = "suspended"
	StatusTerminated ResourceStatus = "terminated"
)

type SuspendReason string

const (
	ReasonInsufficientCoins SuspendReason = "INSUFFICIENT_COINS"
	ReasonDiscordNotLinked  SuspendReason = "DISCORD_NOT_LINKED"
	ReasonAccountBanned     SuspendReason = "ACCOUNT_BANNED"
	ReasonAdmin             SuspendReason = "ADMIN"
)

// Resource is a rented server backed by an instance on the external
// control plane (ExternalRef). Status transitions go through the
// lifecycle machine only.
type Resource struct {
	ID            string
	AccountID     string
	Name          string
	MemoryMB      int64
	DiskMB        int64
	CPUPercent    int64
	Status        ResourceStatus
	Suspended     bool
	SuspendedAt   *time.Time
	SuspendedBy   string
	SuspendReason SuspendReason
	ExternalRef   string
	CreatedAt     time.Time
}

// BillableUnits converts the size spec into charge units: one unit per
// started GiB of memory, minimum one.
func (r Resource) BillableUnits() int64 {
	units := r.MemoryMB / 1024
	if r.MemoryMB%1024 != 0 {
		units++
	}
	if units < 1 {
		units = 1
	}
	return units
}

// Billable reports whether the billing cycle should consider this resource
// for charging at all.
func (r Resource) Billable() bool {
	return r.Status == StatusActive && !r.Suspended
}
