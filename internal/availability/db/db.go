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

// ---------------- OVERLAP QUERIES ----------------

// CountOverlappingReservations → hold/confirmed reservations intersecting
// the half-open range [checkIn, checkOut).
func (d *DB) CountOverlappingReservations(ctx context.Context, checkIn, checkOut models.Date) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Reservation)(nil)).
		Where("status IN (?)", bun.In([]models.ReservationStatus{models.StatusHold, models.StatusConfirmed})).
		Where("check_in < ?", checkOut).
		Where("check_out > ?", checkIn).
		Count(ctx)
}

// CountOverlappingBlocks → manual blocks intersecting [checkIn, checkOut).
// Block end dates are inclusive, so the comparison is end_date >= checkIn.
func (d *DB) CountOverlappingBlocks(ctx context.Context, checkIn, checkOut models.Date) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.ManualBlock)(nil)).
		Where("start_date < ?", checkOut).
		Where("end_date >= ?", checkIn).
		Count(ctx)
}

// ---------------- BLOCKS ----------------

// BlockWithPlatform carries the owning calendar's platform name for
// imported blocks, empty for owner-created ones.
type BlockWithPlatform struct {
	models.ManualBlock
	Platform string `bun:"platform"`
}

// ListBlocksWithPlatform → all manual blocks joined to their source, ordered
// by start date.
func (d *DB) ListBlocksWithPlatform(ctx context.Context) ([]BlockWithPlatform, error) {
	var blocks []BlockWithPlatform
	err := d.Bun.NewSelect().
		Model((*models.ManualBlock)(nil)).
		ColumnExpr("manual_block.*").
		ColumnExpr("COALESCE(cs.platform, '') AS platform").
		Join("LEFT JOIN calendar_sources cs ON cs.id = manual_block.source_id").
		OrderExpr("manual_block.start_date ASC").
		Scan(ctx, &blocks)
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

func (d *DB) GetBlockByID(ctx context.Context, id string) (*models.ManualBlock, error) {
	var block models.ManualBlock
	err := d.Bun.NewSelect().
		Model(&block).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &block, nil
}

// GetBlockCovering → the first block whose inclusive range contains day,
// nil when the day is unblocked.
func (d *DB) GetBlockCovering(ctx context.Context, day models.Date) (*models.ManualBlock, error) {
	var block models.ManualBlock
	err := d.Bun.NewSelect().
		Model(&block).
		Where("start_date <= ?", day).
		Where("end_date >= ?", day).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &block, nil
}

func (d *DB) CreateBlock(ctx context.Context, block *models.ManualBlock) error {
	_, err := d.Bun.NewInsert().Model(block).Exec(ctx)
	return err
}

func (d *DB) DeleteBlock(ctx context.Context, id string) (int64, error) {
	res, err := d.Bun.NewDelete().
		Model((*models.ManualBlock)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReplaceBlock rewrites one block as zero or more remainder blocks in a
// single transaction, so a failed split cannot drop the whole range.
func (d *DB) ReplaceBlock(ctx context.Context, oldID string, replacements []*models.ManualBlock) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*models.ManualBlock)(nil)).
			Where("id = ?", oldID).
			Exec(ctx); err != nil {
			return err
		}
		for _, block := range replacements {
			if _, err := tx.NewInsert().Model(block).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}
