package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

func (s *Store) appendAudit(ctx context.Context, actor, action, subject string, detail map[string]any, at time.Time) error {
	var payload []byte
	if detail != nil {
		var err error
		payload, err = json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("marshal audit detail: %w", err)
		}
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO audit_events (actor, action, subject, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)`, actor, action, subject, payload, at)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// AppendAudit records a structured decision trail entry outside of the
// lifecycle transactions (e.g. skipped-cycle notes from the scheduler).
func (s *Store) AppendAudit(ctx context.Context, actor, action, subject string, detail map[string]any, at time.Time) error {
	return s.appendAudit(ctx, actor, action, subject, detail, at)
}
