package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"panelbill/internal/lifecycle"
	"panelbill/internal/model"
)

const resourceColumns = `
	id, account_id, name, memory_mb, disk_mb, cpu_pct, status,
	suspended, suspended_at, suspended_by, COALESCE(suspend_reason, ''), external_ref, created_at`

func scanResource(row pgx.Row) (model.Resource, error) {
	var (
		r      model.Resource
		status string
		reason string
	)
	err := row.Scan(&r.ID, &r.AccountID, &r.Name, &r.MemoryMB, &r.DiskMB, &r.CPUPercent,
		&status, &r.Suspended, &r.SuspendedAt, &r.SuspendedBy, &reason, &r.ExternalRef, &r.CreatedAt)
	if err != nil {
		return model.Resource{}, err
	}
	r.Status = model.ResourceStatus(status)
	r.SuspendReason = model.SuspendReason(reason)
	return r, nil
}

func (s *Store) GetResource(ctx context.Context, resourceID string) (model.Resource, error) {
	r, err := scanResource(s.db.QueryRow(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE id = $1`, resourceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Resource{}, lifecycle.ErrResourceNotFound
	}
	if err != nil {
		return model.Resource{}, fmt.Errorf("get resource %s: %w", resourceID, err)
	}
	return r, nil
}

func (s *Store) CreateResource(ctx context.Context, r model.Resource) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO resources
			(id, account_id, name, memory_mb, disk_mb, cpu_pct, status, suspended, external_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.AccountID, r.Name, r.MemoryMB, r.DiskMB, r.CPUPercent,
		string(r.Status), r.Suspended, r.ExternalRef)
	if err != nil {
		return fmt.Errorf("create resource %s: %w", r.ID, err)
	}
	return nil
}

// ListBillable returns resources the billing cycle considers for charging:
// active and not suspended. Terminated, suspended and installing resources
// are excluded at the query level.
func (s *Store) ListBillable(ctx context.Context) ([]model.Resource, error) {
	return s.listResources(ctx, `
		SELECT `+resourceColumns+` FROM resources
		WHERE status = 'active' AND NOT suspended
		ORDER BY created_at`)
}

// ListSuspended returns suspended resources for the auto-resume and
// grace-period passes.
func (s *Store) ListSuspended(ctx context.Context) ([]model.Resource, error) {
	return s.listResources(ctx, `
		SELECT `+resourceColumns+` FROM resources
		WHERE status = 'suspended' AND suspended
		ORDER BY suspended_at`)
}

func (s *Store) listResources(ctx context.Context, query string) ([]model.Resource, error) {
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()
	var out []model.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkSuspended persists the suspended status, its metadata and the audit
// record in one transaction.
func (s *Store) MarkSuspended(ctx context.Context, resourceID string, reason model.SuspendReason, actor string, at time.Time) error {
	return s.withTx(ctx, func(ctx context.Context, tx *Store) error {
		tag, err := tx.db.Exec(ctx, `
			UPDATE resources SET
				status = 'suspended', suspended = TRUE,
				suspended_at = $2, suspended_by = $3, suspend_reason = $4
			WHERE id = $1 AND status <> 'terminated'`,
			resourceID, at, actor, string(reason))
		if err != nil {
			return fmt.Errorf("suspend resource %s: %w", resourceID, err)
		}
		if tag.RowsAffected() == 0 {
			return lifecycle.ErrResourceNotFound
		}
		return tx.appendAudit(ctx, actor, "resource.suspend", resourceID, map[string]any{"reason": string(reason)}, at)
	})
}

// MarkActive clears suspension metadata and records the resume.
func (s *Store) MarkActive(ctx context.Context, resourceID string, actor string, at time.Time) error {
	return s.withTx(ctx, func(ctx context.Context, tx *Store) error {
		tag, err := tx.db.Exec(ctx, `
			UPDATE resources SET
				status = 'active', suspended = FALSE,
				suspended_at = NULL, suspended_by = '', suspend_reason = NULL
			WHERE id = $1 AND status <> 'terminated'`, resourceID)
		if err != nil {
			return fmt.Errorf("resume resource %s: %w", resourceID, err)
		}
		if tag.RowsAffected() == 0 {
			return lifecycle.ErrResourceNotFound
		}
		return tx.appendAudit(ctx, actor, "resource.resume", resourceID, nil, at)
	})
}

// RemoveTerminated deletes the row; termination is absorbing and the
// record does not survive it. The audit record does.
func (s *Store) RemoveTerminated(ctx context.Context, resourceID string, actor string, at time.Time) error {
	return s.withTx(ctx, func(ctx context.Context, tx *Store) error {
		tag, err := tx.db.Exec(ctx, `DELETE FROM resources WHERE id = $1`, resourceID)
		if err != nil {
			return fmt.Errorf("delete resource %s: %w", resourceID, err)
		}
		if tag.RowsAffected() == 0 {
			return lifecycle.ErrResourceNotFound
		}
		return tx.appendAudit(ctx, actor, "resource.terminate", resourceID, nil, at)
	})
}
