package db

import (
	"context"
	"database/sql"
	"errors"

	"staybook/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// GetOverridesInRange → overrides for the half-open range [from, to),
// i.e. the nights of a stay.
func (d *DB) GetOverridesInRange(ctx context.Context, from, to models.Date) ([]models.RateOverride, error) {
	var overrides []models.RateOverride
	err := d.Bun.NewSelect().
		Model(&overrides).
		Where("date >= ?", from).
		Where("date < ?", to).
		Order("date ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return overrides, nil
}

// GetOverride → the override row for one day, nil when the day has none.
func (d *DB) GetOverride(ctx context.Context, date models.Date) (*models.RateOverride, error) {
	var override models.RateOverride
	err := d.Bun.NewSelect().
		Model(&override).
		Where("date = ?", date).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &override, nil
}

// UpsertOverride → insert or update the row keyed by date.
func (d *DB) UpsertOverride(ctx context.Context, override *models.RateOverride) error {
	_, err := d.Bun.NewInsert().
		Model(override).
		On("CONFLICT (date) DO UPDATE").
		Set("price = EXCLUDED.price").
		Set("min_nights = EXCLUDED.min_nights").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// DeleteOverride → drop the row for a date. Rows with both fields null are
// deleted rather than persisted empty.
func (d *DB) DeleteOverride(ctx context.Context, date models.Date) error {
	_, err := d.Bun.NewDelete().
		Model((*models.RateOverride)(nil)).
		Where("date = ?", date).
		Exec(ctx)
	return err
}
