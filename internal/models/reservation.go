package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ReservationStatus string

const (
	StatusHold      ReservationStatus = "hold"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusCancelled ReservationStatus = "cancelled"
	StatusCompleted ReservationStatus = "completed"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Reservation is one guest's claim on a contiguous [CheckIn, CheckOut)
// range. While status is hold or confirmed the range must not overlap any
// other hold/confirmed reservation nor any manual block.
type Reservation struct {
	bun.BaseModel `bun:"table:reservations"`

	ID         string `bun:"id,pk" json:"id"`
	CheckIn    Date   `bun:"check_in,type:date" json:"check_in"`
	CheckOut   Date   `bun:"check_out,type:date" json:"check_out"`
	GuestName  string `bun:"guest_name" json:"guest_name"`
	GuestEmail string `bun:"guest_email" json:"guest_email"`
	GuestPhone string `bun:"guest_phone,nullzero" json:"guest_phone,omitempty"`
	Guests     int    `bun:"guests" json:"guests"`

	// Price breakdown, always computed server-side at booking time.
	Subtotal    float64 `bun:"subtotal" json:"subtotal"`
	CleaningFee float64 `bun:"cleaning_fee" json:"cleaning_fee"`
	ServiceFee  float64 `bun:"service_fee" json:"service_fee"`
	Total       float64 `bun:"total" json:"total"`

	Status        ReservationStatus `bun:"status" json:"status"`
	PaymentStatus PaymentStatus     `bun:"payment_status" json:"payment_status"`

	PaymentIntentID  string   `bun:"payment_intent_id,nullzero" json:"-"`
	StripeCustomerID string   `bun:"stripe_customer_id,nullzero" json:"-"`
	RefundAmount     *float64 `bun:"refund_amount,nullzero" json:"refund_amount,omitempty"`

	CancelledAt  *time.Time `bun:"cancelled_at,nullzero" json:"cancelled_at,omitempty"`
	CancelReason string     `bun:"cancel_reason,nullzero" json:"cancel_reason,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// Nights returns the number of nights covered by the reservation.
func (r *Reservation) Nights() int {
	return r.CheckIn.DaysUntil(r.CheckOut)
}

// Active reports whether the reservation currently blocks its dates.
func (r *Reservation) Active() bool {
	return r.Status == StatusHold || r.Status == StatusConfirmed
}

// DamageCharge is a side-ledger entry for an out-of-band charge against a
// guest's saved payment method. It never changes the reservation state.
type DamageCharge struct {
	bun.BaseModel `bun:"table:damage_charges"`

	ID            string    `bun:"id,pk" json:"id"`
	ReservationID string    `bun:"reservation_id,notnull" json:"reservation_id"`
	Amount        float64   `bun:"amount" json:"amount"`
	Description   string    `bun:"description" json:"description"`
	PaymentRef    string    `bun:"payment_ref,nullzero" json:"payment_ref,omitempty"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}

// ReservationRequest is the guest-facing booking payload. Price fields are
// deliberately absent: the ledger never trusts a caller-supplied price.
type ReservationRequest struct {
	CheckIn    string `json:"check_in" validate:"required"`
	CheckOut   string `json:"check_out" validate:"required"`
	GuestName  string `json:"guest_name" validate:"required,min=2,max=120"`
	GuestEmail string `json:"guest_email" validate:"required,email"`
	GuestPhone string `json:"guest_phone" validate:"omitempty,max=32"`
	Guests     int    `json:"guests" validate:"required,min=1"`
}

type CancelRequest struct {
	Email  string `json:"email" validate:"required,email"`
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type DamageChargeRequest struct {
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	Description string  `json:"description" validate:"required,max=500"`
}
