package db

import (
	"context"
	"database/sql"

	"staybook/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- SOURCES ----------------

func (d *DB) CreateSource(ctx context.Context, source *models.CalendarSource) error {
	_, err := d.Bun.NewInsert().Model(source).Exec(ctx)
	return err
}

func (d *DB) GetSource(ctx context.Context, id string) (*models.CalendarSource, error) {
	var source models.CalendarSource
	err := d.Bun.NewSelect().
		Model(&source).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &source, nil
}

func (d *DB) ListSources(ctx context.Context, activeOnly bool) ([]models.CalendarSource, error) {
	var sources []models.CalendarSource
	q := d.Bun.NewSelect().Model(&sources).Order("created_at ASC")
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return sources, nil
}

func (d *DB) UpdateSource(ctx context.Context, source *models.CalendarSource) error {
	_, err := d.Bun.NewUpdate().
		Model(source).
		Column("platform", "url", "active", "last_sync", "sync_state", "last_error").
		Where("id = ?", source.ID).
		Exec(ctx)
	return err
}

// DeleteSource removes the source and, through the FK cascade, every
// block it ever imported.
func (d *DB) DeleteSource(ctx context.Context, id string) (int64, error) {
	res, err := d.Bun.NewDelete().
		Model((*models.CalendarSource)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---------------- SYNCED BLOCKS ----------------

// ReplaceSourceBlocks swaps out every block owned by a source for the
// freshly parsed set in one transaction. A failure mid-replace leaves the
// previous set intact instead of vacating the source's days.
func (d *DB) ReplaceSourceBlocks(ctx context.Context, sourceID string, blocks []*models.ManualBlock) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*models.ManualBlock)(nil)).
			Where("source_id = ?", sourceID).
			Exec(ctx); err != nil {
			return err
		}
		if len(blocks) == 0 {
			return nil
		}
		_, err := tx.NewInsert().Model(&blocks).Exec(ctx)
		return err
	})
}

// ListOwnerBlocks → owner-created blocks only. The export feed must not
// echo imported events back to the platforms that produced them.
func (d *DB) ListOwnerBlocks(ctx context.Context) ([]models.ManualBlock, error) {
	var blocks []models.ManualBlock
	err := d.Bun.NewSelect().
		Model(&blocks).
		Where("source_id IS NULL").
		Order("start_date ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return blocks, nil
}
