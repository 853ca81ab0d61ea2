package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"panelbill/internal/model"
)

// BillingConfig reads the billing policy row. Called at the start of every
// cycle, so edits to the row take effect without a restart. A missing row
// yields the documented defaults; an invalid row is an error rather than a
// silent fallback.
func (s *Store) BillingConfig(ctx context.Context) (model.BillingConfig, error) {
	cfg := model.DefaultBillingConfig()
	err := s.db.QueryRow(ctx, `
		SELECT enabled, interval_minutes, rate_per_unit_minute, auto_suspend, auto_resume, grace_days
		FROM billing_settings WHERE id = 1`,
	).Scan(&cfg.Enabled, &cfg.IntervalMinutes, &cfg.RatePerUnitMinute,
		&cfg.AutoSuspend, &cfg.AutoResume, &cfg.GraceDays)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DefaultBillingConfig(), nil
	}
	if err != nil {
		return model.BillingConfig{}, fmt.Errorf("load billing settings: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return model.BillingConfig{}, err
	}
	return cfg, nil
}

// UpdateBillingConfig upserts the singleton settings row after validation.
func (s *Store) UpdateBillingConfig(ctx context.Context, cfg model.BillingConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO billing_settings (id, enabled, interval_minutes, rate_per_unit_minute, auto_suspend, auto_resume, grace_days)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			interval_minutes = EXCLUDED.interval_minutes,
			rate_per_unit_minute = EXCLUDED.rate_per_unit_minute,
			auto_suspend = EXCLUDED.auto_suspend,
			auto_resume = EXCLUDED.auto_resume,
			grace_days = EXCLUDED.grace_days`,
		cfg.Enabled, cfg.IntervalMinutes, cfg.RatePerUnitMinute,
		cfg.AutoSuspend, cfg.AutoResume, cfg.GraceDays)
	if err != nil {
		return fmt.Errorf("update billing settings: %w", err)
	}
	return nil
}
