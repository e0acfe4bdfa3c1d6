package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"staybook/internal/models"

	"github.com/uptrace/bun"
)

// ErrConflict is returned when the conflict check inside the booking
// transaction finds an overlapping reservation or block.
var ErrConflict = errors.New("dates no longer available")

type DB struct {
	Bun *bun.DB
}

// ---------------- RESERVATIONS ----------------

// CreateIfAvailable runs the conflict check and the insert in one
// serializable transaction. Two concurrent bookings for overlapping ranges
// cannot both observe "no conflict" and commit: one of them fails here,
// either with ErrConflict or with a serialization error from the driver.
func (d *DB) CreateIfAvailable(ctx context.Context, reservation *models.Reservation) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx bun.Tx) error {
		reservations, err := tx.NewSelect().
			Model((*models.Reservation)(nil)).
			Where("status IN (?)", bun.In([]models.ReservationStatus{models.StatusHold, models.StatusConfirmed})).
			Where("check_in < ?", reservation.CheckOut).
			Where("check_out > ?", reservation.CheckIn).
			Count(ctx)
		if err != nil {
			return err
		}

		blocks, err := tx.NewSelect().
			Model((*models.ManualBlock)(nil)).
			Where("start_date < ?", reservation.CheckOut).
			Where("end_date >= ?", reservation.CheckIn).
			Count(ctx)
		if err != nil {
			return err
		}

		if reservations > 0 || blocks > 0 {
			return ErrConflict
		}

		_, err = tx.NewInsert().Model(reservation).Exec(ctx)
		return err
	})
}

// GetByID → fetch one reservation by its ID
func (d *DB) GetByID(ctx context.Context, id string) (*models.Reservation, error) {
	var reservation models.Reservation
	err := d.Bun.NewSelect().
		Model(&reservation).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

// Update → persist allowed mutable fields
func (d *DB) Update(ctx context.Context, reservation *models.Reservation) error {
	reservation.UpdatedAt = time.Now()
	_, err := d.Bun.NewUpdate().
		Model(reservation).
		Column("status", "payment_status", "payment_intent_id", "stripe_customer_id",
			"refund_amount", "cancelled_at", "cancel_reason", "updated_at").
		Where("id = ?", reservation.ID).
		Exec(ctx)
	return err
}

// List → all reservations, newest first
func (d *DB) List(ctx context.Context) ([]models.Reservation, error) {
	var reservations []models.Reservation
	err := d.Bun.NewSelect().
		Model(&reservations).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return reservations, nil
}

// ListActive → hold/confirmed reservations, used by the calendar export.
func (d *DB) ListActive(ctx context.Context) ([]models.Reservation, error) {
	var reservations []models.Reservation
	err := d.Bun.NewSelect().
		Model(&reservations).
		Where("status IN (?)", bun.In([]models.ReservationStatus{models.StatusHold, models.StatusConfirmed})).
		Order("check_in ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return reservations, nil
}

// ExpireHolds cancels every hold older than cutoff whose payment never
// succeeded. A single UPDATE keeps the sweep idempotent: rows already
// cancelled by a concurrent sweep simply no longer match.
func (d *DB) ExpireHolds(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Reservation)(nil)).
		Set("status = ?", models.StatusCancelled).
		Set("cancel_reason = ?", reason).
		Set("cancelled_at = ?", time.Now()).
		Set("updated_at = ?", time.Now()).
		Where("status = ?", models.StatusHold).
		Where("payment_status != ?", models.PaymentSucceeded).
		Where("created_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---------------- DAMAGE CHARGES ----------------

func (d *DB) CreateDamageCharge(ctx context.Context, charge *models.DamageCharge) error {
	_, err := d.Bun.NewInsert().Model(charge).Exec(ctx)
	return err
}

func (d *DB) ListDamageCharges(ctx context.Context, reservationID string) ([]models.DamageCharge, error) {
	var charges []models.DamageCharge
	err := d.Bun.NewSelect().
		Model(&charges).
		Where("reservation_id = ?", reservationID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return charges, nil
}
