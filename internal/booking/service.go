package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"staybook/internal/booking/db"
	"staybook/internal/config"
	"staybook/internal/errs"
	"staybook/internal/logger"
	"staybook/internal/models"
	"staybook/internal/utils"

	"github.com/google/uuid"
)

// HoldExpiredReason is the system-generated cancellation reason written by
// the hold expiry sweep.
const HoldExpiredReason = "hold expired: payment not completed in time"

type DBLayer interface {
	CreateIfAvailable(ctx context.Context, reservation *models.Reservation) error
	GetByID(ctx context.Context, id string) (*models.Reservation, error)
	Update(ctx context.Context, reservation *models.Reservation) error
	List(ctx context.Context) ([]models.Reservation, error)
	ExpireHolds(ctx context.Context, cutoff time.Time, reason string) (int64, error)
	CreateDamageCharge(ctx context.Context, charge *models.DamageCharge) error
	ListDamageCharges(ctx context.Context, reservationID string) ([]models.DamageCharge, error)
}

type NightLock interface {
	LockNights(nights []models.Date, reservationID string) (bool, error)
	UnlockNights(nights []models.Date, reservationID string) error
}

type Quoter interface {
	Quote(ctx context.Context, checkIn, checkOut models.Date) (*models.Quote, error)
}

type RangeValidator interface {
	ValidateRange(checkIn, checkOut models.Date) error
}

// PaymentProvider is the payment collaborator boundary. The ledger never
// computes currency amounts itself; it quotes through the rate resolver
// and hands amounts to this interface.
type PaymentProvider interface {
	VerifyPaymentSucceeded(ctx context.Context, paymentRef string) (bool, error)
	IssueRefund(ctx context.Context, paymentRef string) (float64, error)
	ChargeSavedMethod(ctx context.Context, customerRef string, amount float64, description string) (string, error)
}

// Publisher is the fire-and-forget notification boundary. Publish failures
// are logged and never roll back a state transition.
type Publisher interface {
	Publish(topic string, key string, value []byte) error
}

type QRGenerator interface {
	GenerateEncryptedQR(reservation *models.Reservation) ([]byte, error)
}

// Service is the reservation ledger: the transactional state machine for
// hold → confirmed → cancelled/completed.
type Service struct {
	DB           DBLayer
	Locks        NightLock
	Rates        Quoter
	Availability RangeValidator
	Payments     PaymentProvider
	Notify       Publisher
	QR           QRGenerator
	Property     config.PropertyConfig
	Topics       config.TopicConfig
	Logger       *logger.Logger
}

func NewService(
	dbLayer DBLayer,
	locks NightLock,
	quoter Quoter,
	validator RangeValidator,
	payments PaymentProvider,
	notify Publisher,
	qrGen QRGenerator,
	property config.PropertyConfig,
	topics config.TopicConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		DB:           dbLayer,
		Locks:        locks,
		Rates:        quoter,
		Availability: validator,
		Payments:     payments,
		Notify:       notify,
		QR:           qrGen,
		Property:     property,
		Topics:       topics,
		Logger:       log,
	}
}

// ---------------- CREATE ----------------

// CreateReservation admits a new hold. Validation and pricing run before
// any lock; the conflict check and the insert run inside one serializable
// transaction so overlapping concurrent requests cannot both succeed.
func (s *Service) CreateReservation(ctx context.Context, req models.ReservationRequest) (*models.Reservation, error) {
	checkIn, err := models.ParseDate(req.CheckIn)
	if err != nil {
		return nil, errs.New(errs.Validation, err.Error())
	}
	checkOut, err := models.ParseDate(req.CheckOut)
	if err != nil {
		return nil, errs.New(errs.Validation, err.Error())
	}
	if err := s.Availability.ValidateRange(checkIn, checkOut); err != nil {
		return nil, err
	}
	if req.Guests < 1 || req.Guests > s.Property.MaxGuests {
		return nil, errs.Newf(errs.Validation, "guest count must be between 1 and %d", s.Property.MaxGuests)
	}

	// Price is always computed server-side; a caller-supplied price is
	// never trusted or persisted.
	quote, err := s.Rates.Quote(ctx, checkIn, checkOut)
	if err != nil {
		return nil, err
	}
	if quote.Nights < quote.MinNights {
		return nil, errs.Newf(errs.Validation, "this stay requires a minimum of %d nights", quote.MinNights)
	}

	reservation := &models.Reservation{
		ID:            uuid.NewString(),
		CheckIn:       checkIn,
		CheckOut:      checkOut,
		GuestName:     req.GuestName,
		GuestEmail:    strings.ToLower(strings.TrimSpace(req.GuestEmail)),
		GuestPhone:    req.GuestPhone,
		Guests:        req.Guests,
		Subtotal:      quote.Subtotal,
		CleaningFee:   quote.CleaningFee,
		ServiceFee:    quote.ServiceFee,
		Total:         quote.Total,
		Status:        models.StatusHold,
		PaymentStatus: models.PaymentPending,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	nights := models.DaysBetween(checkIn, checkOut)
	ok, err := s.Locks.LockNights(nights, reservation.ID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to lock nights", err)
	}
	if !ok {
		return nil, errs.New(errs.Conflict, "selected dates are no longer available")
	}

	if err := s.DB.CreateIfAvailable(ctx, reservation); err != nil {
		_ = s.Locks.UnlockNights(nights, reservation.ID)
		if errors.Is(err, db.ErrConflict) || isSerializationFailure(err) {
			return nil, errs.New(errs.Conflict, "selected dates are no longer available")
		}
		return nil, errs.Wrap(errs.Internal, "failed to create reservation", err)
	}

	s.Logger.LogReservation("CREATE", reservation.ID,
		fmt.Sprintf("%s → %s, %d guest(s), total %.2f", checkIn, checkOut, req.Guests, reservation.Total))
	s.publish(s.Topics.ReservationCreated, reservation)

	return reservation, nil
}

// postgres aborts one of two racing serializable transactions; surface
// that as the same conflict the explicit check produces.
func isSerializationFailure(err error) bool {
	return err != nil && strings.Contains(err.Error(), "could not serialize access")
}

// ---------------- LOOKUPS ----------------

func (s *Service) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	reservation, err := s.DB.GetByID(ctx, id)
	if err != nil {
		return nil, errs.Wrap(errs.NotFound, "reservation not found", err)
	}
	return reservation, nil
}

// GetGuestReservation requires the stored guest email to match — the
// data-level ownership proof for guest-initiated reads.
func (s *Service) GetGuestReservation(ctx context.Context, id, email string) (*models.Reservation, error) {
	reservation, err := s.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !emailsMatch(reservation.GuestEmail, email) {
		return nil, errs.New(errs.Forbidden, "email does not match this reservation")
	}
	return reservation, nil
}

func (s *Service) ListReservations(ctx context.Context) ([]models.Reservation, error) {
	reservations, err := s.DB.List(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to list reservations", err)
	}
	return reservations, nil
}

func emailsMatch(stored, presented string) bool {
	return strings.EqualFold(strings.TrimSpace(stored), strings.TrimSpace(presented))
}

// ---------------- PAYMENT CONFIRMATION ----------------

// ConfirmPayment transitions hold → confirmed after a verified payment
// success. Safe to call twice: an already-confirmed reservation is a no-op,
// which keeps webhook redelivery harmless.
func (s *Service) ConfirmPayment(ctx context.Context, id, paymentRef string) error {
	reservation, err := s.GetReservation(ctx, id)
	if err != nil {
		return err
	}

	if reservation.Status == models.StatusConfirmed {
		return nil
	}
	if reservation.Status != models.StatusHold {
		return errs.Newf(errs.Validation, "cannot confirm a %s reservation", reservation.Status)
	}

	if paymentRef != "" {
		ok, err := s.Payments.VerifyPaymentSucceeded(ctx, paymentRef)
		if err != nil {
			return errs.Wrap(errs.Upstream, "payment verification failed", err)
		}
		if !ok {
			return errs.New(errs.Validation, "payment has not succeeded")
		}
		reservation.PaymentIntentID = paymentRef
	}

	reservation.Status = models.StatusConfirmed
	reservation.PaymentStatus = models.PaymentSucceeded
	if err := s.DB.Update(ctx, reservation); err != nil {
		return errs.Wrap(errs.Internal, "failed to confirm reservation", err)
	}

	s.Logger.LogReservation("CONFIRM", id, "payment succeeded, reservation confirmed")
	s.publish(s.Topics.ReservationConfirmed, reservation)
	return nil
}

// MarkPaymentFailed records a failed payment attempt without cancelling:
// the hold keeps blocking its dates until it expires or the guest retries.
func (s *Service) MarkPaymentFailed(ctx context.Context, id string) error {
	reservation, err := s.GetReservation(ctx, id)
	if err != nil {
		return err
	}
	if reservation.Status != models.StatusHold {
		return nil
	}
	reservation.PaymentStatus = models.PaymentFailed
	if err := s.DB.Update(ctx, reservation); err != nil {
		return errs.Wrap(errs.Internal, "failed to record payment failure", err)
	}
	s.Logger.LogReservation("PAYMENT_FAILED", id, "payment attempt failed, hold kept until expiry")
	return nil
}

// ---------------- CANCELLATION ----------------

// refundEligible: full refund while still a hold, or when more than 24
// hours remain until check-in. This rule is the canonical cancellation
// policy for both the ledger and guest-facing copy.
func refundEligible(reservation *models.Reservation, now time.Time) bool {
	if reservation.Status == models.StatusHold {
		return true
	}
	return now.Before(reservation.CheckIn.Time().Add(-24 * time.Hour))
}

// Cancel transitions a reservation to cancelled. Guests must present the
// reservation's email; admin callers skip the ownership check. Refunds go
// through the payment collaborator exactly once — an upstream failure
// surfaces instead of being retried, so a guest is never double-refunded.
func (s *Service) Cancel(ctx context.Context, id, requesterEmail, reason string, admin bool) (*models.Reservation, error) {
	reservation, err := s.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}

	if reservation.Status == models.StatusCancelled {
		return nil, errs.New(errs.Validation, "reservation is already cancelled")
	}
	if reservation.Status == models.StatusCompleted {
		return nil, errs.New(errs.Validation, "completed stays cannot be cancelled")
	}
	if !admin && !emailsMatch(reservation.GuestEmail, requesterEmail) {
		return nil, errs.New(errs.Forbidden, "email does not match this reservation")
	}

	if refundEligible(reservation, time.Now()) &&
		reservation.PaymentStatus == models.PaymentSucceeded &&
		reservation.PaymentIntentID != "" {
		amount, err := s.Payments.IssueRefund(ctx, reservation.PaymentIntentID)
		if err != nil {
			return nil, errs.Wrap(errs.Upstream, "refund failed, reservation not cancelled", err)
		}
		reservation.RefundAmount = &amount
		reservation.PaymentStatus = models.PaymentRefunded
		s.Logger.LogReservation("REFUND", id, fmt.Sprintf("refunded %.2f", amount))
	}

	now := time.Now()
	reservation.Status = models.StatusCancelled
	reservation.CancelledAt = &now
	if reason == "" {
		reason = "cancelled by guest"
		if admin {
			reason = "cancelled by owner"
		}
	}
	reservation.CancelReason = reason

	if err := s.DB.Update(ctx, reservation); err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to cancel reservation", err)
	}

	if err := s.Locks.UnlockNights(models.DaysBetween(reservation.CheckIn, reservation.CheckOut), reservation.ID); err != nil {
		s.Logger.Warn("LEDGER", fmt.Sprintf("failed to unlock nights for %s: %v", id, err))
	}

	s.Logger.LogReservation("CANCEL", id, reason)
	s.publish(s.Topics.ReservationCancelled, reservation)
	return reservation, nil
}

// ---------------- COMPLETION ----------------

// Complete transitions confirmed → completed after checkout, owner action.
func (s *Service) Complete(ctx context.Context, id string) (*models.Reservation, error) {
	reservation, err := s.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if reservation.Status != models.StatusConfirmed {
		return nil, errs.Newf(errs.Validation, "cannot complete a %s reservation", reservation.Status)
	}

	reservation.Status = models.StatusCompleted
	if err := s.DB.Update(ctx, reservation); err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to complete reservation", err)
	}

	s.Logger.LogReservation("COMPLETE", id, "stay marked completed")
	return reservation, nil
}

// ---------------- HOLD EXPIRY ----------------

// ExpireStaleHolds cancels unpaid holds older than the configured timeout.
// Idempotent: a second sweep finds nothing left to cancel.
func (s *Service) ExpireStaleHolds(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.Property.HoldTimeout)
	affected, err := s.DB.ExpireHolds(ctx, cutoff, HoldExpiredReason)
	if err != nil {
		return 0, errs.Wrap(errs.Internal, "hold expiry sweep failed", err)
	}
	if affected > 0 {
		s.Logger.Info("LEDGER", fmt.Sprintf("expired %d stale hold(s)", affected))
	}
	return affected, nil
}

// ---------------- DAMAGE CHARGES ----------------

// ChargeDamage records an out-of-band charge against the guest's saved
// payment method. Side-ledger only: the reservation state machine does not
// change.
func (s *Service) ChargeDamage(ctx context.Context, id string, req models.DamageChargeRequest) (*models.DamageCharge, error) {
	reservation, err := s.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if reservation.Status != models.StatusConfirmed && reservation.Status != models.StatusCompleted {
		return nil, errs.Newf(errs.Validation, "cannot charge a %s reservation", reservation.Status)
	}
	if reservation.StripeCustomerID == "" {
		return nil, errs.New(errs.Validation, "reservation has no saved payment method")
	}

	paymentRef, err := s.Payments.ChargeSavedMethod(ctx, reservation.StripeCustomerID, req.Amount, req.Description)
	if err != nil {
		return nil, errs.Wrap(errs.Upstream, "damage charge failed", err)
	}

	charge := &models.DamageCharge{
		ID:            utils.GenerateChargeID(),
		ReservationID: id,
		Amount:        req.Amount,
		Description:   req.Description,
		PaymentRef:    paymentRef,
		CreatedAt:     time.Now(),
	}
	if err := s.DB.CreateDamageCharge(ctx, charge); err != nil {
		// The charge went through; losing the ledger row is worse than
		// surfacing an error, so log loudly and still fail the request.
		s.Logger.Error("LEDGER", fmt.Sprintf("charge %s succeeded but ledger write failed: %v", paymentRef, err))
		return nil, errs.Wrap(errs.Internal, "charge succeeded but could not be recorded", err)
	}

	s.Logger.LogReservation("DAMAGE", id, fmt.Sprintf("charged %.2f (%s)", req.Amount, paymentRef))
	s.publish(s.Topics.DamageCharged, reservation)
	return charge, nil
}

func (s *Service) ListDamageCharges(ctx context.Context, reservationID string) ([]models.DamageCharge, error) {
	charges, err := s.DB.ListDamageCharges(ctx, reservationID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to list damage charges", err)
	}
	return charges, nil
}

// ---------------- CHECK-IN QR ----------------

// CheckInQR renders the encrypted check-in code for a confirmed stay,
// gated on the guest's email.
func (s *Service) CheckInQR(ctx context.Context, id, email string) ([]byte, error) {
	reservation, err := s.GetGuestReservation(ctx, id, email)
	if err != nil {
		return nil, err
	}
	if reservation.Status != models.StatusConfirmed {
		return nil, errs.New(errs.Validation, "check-in code is only available for confirmed reservations")
	}
	png, err := s.QR.GenerateEncryptedQR(reservation)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to render check-in code", err)
	}
	return png, nil
}

// ---------------- NOTIFICATIONS ----------------

type notificationEvent struct {
	ReservationID string    `json:"reservation_id"`
	Status        string    `json:"status"`
	CheckIn       string    `json:"check_in"`
	CheckOut      string    `json:"check_out"`
	GuestEmail    string    `json:"guest_email"`
	Total         float64   `json:"total"`
	Timestamp     time.Time `json:"timestamp"`
}

// publish is best-effort: notification failures are logged, never allowed
// to make a successful transition look failed.
func (s *Service) publish(topic string, reservation *models.Reservation) {
	if s.Notify == nil {
		return
	}
	value, err := json.Marshal(notificationEvent{
		ReservationID: reservation.ID,
		Status:        string(reservation.Status),
		CheckIn:       reservation.CheckIn.String(),
		CheckOut:      reservation.CheckOut.String(),
		GuestEmail:    reservation.GuestEmail,
		Total:         reservation.Total,
		Timestamp:     time.Now(),
	})
	if err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("failed to marshal event for %s: %v", reservation.ID, err))
		return
	}
	if err := s.Notify.Publish(topic, reservation.ID, value); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("failed to publish %s for %s: %v", topic, reservation.ID, err))
	}
}
