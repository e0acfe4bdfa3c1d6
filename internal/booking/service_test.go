package booking_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"staybook/internal/booking"
	"staybook/internal/booking/db"
	"staybook/internal/config"
	"staybook/internal/logger"
	"staybook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------- MOCKS ----------------

type MockReservationDB struct {
	reservations map[string]*models.Reservation
	charges      []models.DamageCharge
	shouldFailOn string
}

func NewMockReservationDB() *MockReservationDB {
	return &MockReservationDB{reservations: make(map[string]*models.Reservation)}
}

func (m *MockReservationDB) CreateIfAvailable(ctx context.Context, reservation *models.Reservation) error {
	if m.shouldFailOn == "CreateIfAvailable" {
		return errors.New("db failure")
	}
	for _, existing := range m.reservations {
		if existing.Active() && models.Overlaps(existing.CheckIn, existing.CheckOut, reservation.CheckIn, reservation.CheckOut) {
			return db.ErrConflict
		}
	}
	copied := *reservation
	m.reservations[reservation.ID] = &copied
	return nil
}

func (m *MockReservationDB) GetByID(ctx context.Context, id string) (*models.Reservation, error) {
	r, ok := m.reservations[id]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *r
	return &copied, nil
}

func (m *MockReservationDB) Update(ctx context.Context, reservation *models.Reservation) error {
	if m.shouldFailOn == "Update" {
		return errors.New("db failure")
	}
	copied := *reservation
	m.reservations[reservation.ID] = &copied
	return nil
}

func (m *MockReservationDB) List(ctx context.Context) ([]models.Reservation, error) {
	var out []models.Reservation
	for _, r := range m.reservations {
		out = append(out, *r)
	}
	return out, nil
}

func (m *MockReservationDB) ExpireHolds(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	var expired int64
	for _, r := range m.reservations {
		if r.Status == models.StatusHold && r.PaymentStatus != models.PaymentSucceeded && r.CreatedAt.Before(cutoff) {
			now := time.Now()
			r.Status = models.StatusCancelled
			r.CancelReason = reason
			r.CancelledAt = &now
			expired++
		}
	}
	return expired, nil
}

func (m *MockReservationDB) CreateDamageCharge(ctx context.Context, charge *models.DamageCharge) error {
	m.charges = append(m.charges, *charge)
	return nil
}

func (m *MockReservationDB) ListDamageCharges(ctx context.Context, reservationID string) ([]models.DamageCharge, error) {
	var out []models.DamageCharge
	for _, c := range m.charges {
		if c.ReservationID == reservationID {
			out = append(out, c)
		}
	}
	return out, nil
}

type MockNightLock struct {
	locks      map[string]string
	failLock   bool
	denyLock   bool
	unlockedBy map[string]int
}

func NewMockNightLock() *MockNightLock {
	return &MockNightLock{locks: make(map[string]string), unlockedBy: make(map[string]int)}
}

func (m *MockNightLock) LockNights(nights []models.Date, reservationID string) (bool, error) {
	if m.failLock {
		return false, errors.New("redis down")
	}
	if m.denyLock {
		return false, nil
	}
	for _, n := range nights {
		if _, held := m.locks[n.String()]; held {
			return false, nil
		}
	}
	for _, n := range nights {
		m.locks[n.String()] = reservationID
	}
	return true, nil
}

func (m *MockNightLock) UnlockNights(nights []models.Date, reservationID string) error {
	for _, n := range nights {
		if m.locks[n.String()] == reservationID {
			delete(m.locks, n.String())
		}
	}
	m.unlockedBy[reservationID]++
	return nil
}

type MockQuoter struct {
	minNights int
}

func (m *MockQuoter) Quote(ctx context.Context, checkIn, checkOut models.Date) (*models.Quote, error) {
	nights := checkIn.DaysUntil(checkOut)
	minNights := m.minNights
	if minNights == 0 {
		minNights = 2
	}
	return &models.Quote{
		CheckIn:     checkIn,
		CheckOut:    checkOut,
		Nights:      nights,
		Subtotal:    float64(nights) * 200,
		CleaningFee: 75,
		Total:       float64(nights)*200 + 75,
		MinNights:   minNights,
	}, nil
}

type MockValidator struct{}

func (m *MockValidator) ValidateRange(checkIn, checkOut models.Date) error {
	if !checkIn.Before(checkOut) {
		return errors.New("check-out must be after check-in")
	}
	return nil
}

type MockPayments struct {
	verifyResult  bool
	verifyErr     error
	refundErr     error
	refundCalls   int
	chargeErr     error
	chargedAmount float64
}

func (m *MockPayments) VerifyPaymentSucceeded(ctx context.Context, paymentRef string) (bool, error) {
	return m.verifyResult, m.verifyErr
}

func (m *MockPayments) IssueRefund(ctx context.Context, paymentRef string) (float64, error) {
	m.refundCalls++
	if m.refundErr != nil {
		return 0, m.refundErr
	}
	return 675, nil
}

func (m *MockPayments) ChargeSavedMethod(ctx context.Context, customerRef string, amount float64, description string) (string, error) {
	if m.chargeErr != nil {
		return "", m.chargeErr
	}
	m.chargedAmount = amount
	return "pi_damage_123", nil
}

type MockPublisher struct {
	published []string
}

func (m *MockPublisher) Publish(topic string, key string, value []byte) error {
	m.published = append(m.published, topic)
	return nil
}

type MockQR struct{}

func (m *MockQR) GenerateEncryptedQR(reservation *models.Reservation) ([]byte, error) {
	return []byte("png-bytes"), nil
}

// ---------------- HELPERS ----------------

type fixture struct {
	svc      *booking.Service
	db       *MockReservationDB
	locks    *MockNightLock
	payments *MockPayments
	notify   *MockPublisher
}

func newFixture() *fixture {
	db := NewMockReservationDB()
	locks := NewMockNightLock()
	payments := &MockPayments{verifyResult: true}
	notify := &MockPublisher{}

	property := config.PropertyConfig{
		MaxGuests:   8,
		MaxNights:   30,
		HoldTimeout: 10 * time.Minute,
	}
	topics := config.TopicConfig{
		ReservationCreated:   "staybook.reservation.created",
		ReservationConfirmed: "staybook.reservation.confirmed",
		ReservationCancelled: "staybook.reservation.cancelled",
		DamageCharged:        "staybook.damage.charged",
	}

	svc := booking.NewService(db, locks, &MockQuoter{}, &MockValidator{}, payments, notify, &MockQR{}, property, topics, logger.NewLogger())
	return &fixture{svc: svc, db: db, locks: locks, payments: payments, notify: notify}
}

func futureDate(days int) string {
	return models.Today().AddDays(days).String()
}

func request(checkIn, checkOut string) models.ReservationRequest {
	return models.ReservationRequest{
		CheckIn:    checkIn,
		CheckOut:   checkOut,
		GuestName:  "Jamie Doe",
		GuestEmail: "jamie@example.com",
		Guests:     2,
	}
}

// ---------------- CREATE ----------------

func TestCreateReservation(t *testing.T) {
	f := newFixture()

	res, err := f.svc.CreateReservation(context.Background(), request(futureDate(10), futureDate(13)))
	require.NoError(t, err)

	assert.Equal(t, models.StatusHold, res.Status)
	assert.Equal(t, models.PaymentPending, res.PaymentStatus)
	assert.Equal(t, 675.0, res.Total)
	assert.Equal(t, "jamie@example.com", res.GuestEmail)
	assert.Contains(t, f.notify.published, "staybook.reservation.created")
	assert.Len(t, f.locks.locks, 3, "one lock per night")
}

func TestCreateReservationNormalizesEmail(t *testing.T) {
	f := newFixture()
	req := request(futureDate(10), futureDate(13))
	req.GuestEmail = "  Jamie@Example.COM "

	res, err := f.svc.CreateReservation(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "jamie@example.com", res.GuestEmail)
}

func TestCreateReservationConflicts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.CreateReservation(ctx, request(futureDate(10), futureDate(12)))
	require.NoError(t, err)

	// Overlapping stay is rejected.
	_, err = f.svc.CreateReservation(ctx, request(futureDate(11), futureDate(14)))
	require.Error(t, err)

	// Back to back is allowed.
	_, err = f.svc.CreateReservation(ctx, request(futureDate(12), futureDate(14)))
	assert.NoError(t, err)
}

func TestCreateReservationLockDenied(t *testing.T) {
	f := newFixture()
	f.locks.denyLock = true

	_, err := f.svc.CreateReservation(context.Background(), request(futureDate(10), futureDate(13)))
	require.Error(t, err)
	assert.Empty(t, f.db.reservations, "nothing persisted when the lock is contended")
}

func TestCreateReservationUnlocksOnDBFailure(t *testing.T) {
	f := newFixture()
	f.db.shouldFailOn = "CreateIfAvailable"

	_, err := f.svc.CreateReservation(context.Background(), request(futureDate(10), futureDate(13)))
	require.Error(t, err)
	assert.Empty(t, f.locks.locks, "locks released after a failed insert")
}

func TestCreateReservationGuestBounds(t *testing.T) {
	f := newFixture()
	req := request(futureDate(10), futureDate(13))
	req.Guests = 9

	_, err := f.svc.CreateReservation(context.Background(), req)
	assert.Error(t, err)
}

func TestCreateReservationMinNights(t *testing.T) {
	db := NewMockReservationDB()
	svc := booking.NewService(db, NewMockNightLock(), &MockQuoter{minNights: 4}, &MockValidator{}, &MockPayments{}, nil, &MockQR{},
		config.PropertyConfig{MaxGuests: 8, MaxNights: 30}, config.TopicConfig{}, logger.NewLogger())

	_, err := svc.CreateReservation(context.Background(), request(futureDate(10), futureDate(12)))
	require.Error(t, err)
	assert.Empty(t, db.reservations)
}

// ---------------- CONFIRM / FAIL ----------------

func TestConfirmPayment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	res, err := f.svc.CreateReservation(ctx, request(futureDate(10), futureDate(13)))
	require.NoError(t, err)

	require.NoError(t, f.svc.ConfirmPayment(ctx, res.ID, "pi_123"))

	stored := f.db.reservations[res.ID]
	assert.Equal(t, models.StatusConfirmed, stored.Status)
	assert.Equal(t, models.PaymentSucceeded, stored.PaymentStatus)
	assert.Equal(t, "pi_123", stored.PaymentIntentID)
	assert.Contains(t, f.notify.published, "staybook.reservation.confirmed")
}

func TestConfirmPaymentIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	res, _ := f.svc.CreateReservation(ctx, request(futureDate(10), futureDate(13)))

	require.NoError(t, f.svc.ConfirmPayment(ctx, res.ID, "pi_123"))
	// Webhook redelivery: second confirm is a silent no-op.
	require.NoError(t, f.svc.ConfirmPayment(ctx, res.ID, "pi_123"))
}

func TestConfirmPaymentVerificationFails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	res, _ := f.svc.CreateReservation(ctx, request(futureDate(10), futureDate(13)))
	f.payments.verifyResult = false

	err := f.svc.ConfirmPayment(ctx, res.ID, "pi_123")
	require.Error(t, err)
	assert.Equal(t, models.StatusHold, f.db.reservations[res.ID].Status)
}

func TestMarkPaymentFailedKeepsHold(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	res, _ := f.svc.CreateReservation(ctx, request(futureDate(10), futureDate(13)))

	require.NoError(t, f.svc.MarkPaymentFailed(ctx, res.ID))

	stored := f.db.reservations[res.ID]
	assert.Equal(t, models.StatusHold, stored.Status, "failed payment must not cancel the hold")
	assert.Equal(t, models.PaymentFailed, stored.PaymentStatus)
}

// ---------------- CANCEL ----------------

func confirmedReservation(t *testing.T, f *fixture, daysOut int) *models.Reservation {
	t.Helper()
	ctx := context.Background()
	res, err := f.svc.CreateReservation(ctx, request(futureDate(daysOut), futureDate(daysOut+3)))
	require.NoError(t, err)
	require.NoError(t, f.svc.ConfirmPayment(ctx, res.ID, "pi_123"))
	return f.db.reservations[res.ID]
}

func TestGuestCancelWithRefund(t *testing.T) {
	f := newFixture()
	res := confirmedReservation(t, f, 10) // well outside the 24h window

	cancelled, err := f.svc.Cancel(context.Background(), res.ID, "jamie@example.com", "", false)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Equal(t, models.PaymentRefunded, cancelled.PaymentStatus)
	require.NotNil(t, cancelled.RefundAmount)
	assert.Equal(t, 675.0, *cancelled.RefundAmount)
	assert.Equal(t, "cancelled by guest", cancelled.CancelReason)
	assert.Equal(t, 1, f.payments.refundCalls)
	assert.Empty(t, f.locks.locks, "cancelled nights are unlocked")
	assert.Contains(t, f.notify.published, "staybook.reservation.cancelled")
}

func TestGuestCancelInsideWindowNoRefund(t *testing.T) {
	f := newFixture()
	// Check-in is tomorrow: less than 24 hours away for any confirmed stay.
	res := confirmedReservation(t, f, 0)

	cancelled, err := f.svc.Cancel(context.Background(), res.ID, "jamie@example.com", "", false)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Nil(t, cancelled.RefundAmount)
	assert.Equal(t, models.PaymentSucceeded, cancelled.PaymentStatus, "no refund issued inside the window")
	assert.Equal(t, 0, f.payments.refundCalls)
}

func TestHoldCancelAlwaysRefundEligible(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	res, err := f.svc.CreateReservation(ctx, request(futureDate(0), futureDate(3)))
	require.NoError(t, err)

	// Hold with no payment: cancels cleanly, no refund call.
	cancelled, err := f.svc.Cancel(ctx, res.ID, "jamie@example.com", "changed plans", false)
	require.NoError(t, err)
	assert.Equal(t, "changed plans", cancelled.CancelReason)
	assert.Equal(t, 0, f.payments.refundCalls)
}

func TestCancelWrongEmailForbidden(t *testing.T) {
	f := newFixture()
	res := confirmedReservation(t, f, 10)

	_, err := f.svc.Cancel(context.Background(), res.ID, "intruder@example.com", "", false)
	require.Error(t, err)
	assert.Equal(t, models.StatusConfirmed, f.db.reservations[res.ID].Status)
}

func TestAdminCancelSkipsOwnershipCheck(t *testing.T) {
	f := newFixture()
	res := confirmedReservation(t, f, 10)

	cancelled, err := f.svc.Cancel(context.Background(), res.ID, "", "", true)
	require.NoError(t, err)
	assert.Equal(t, "cancelled by owner", cancelled.CancelReason)
}

func TestCancelAlreadyCancelled(t *testing.T) {
	f := newFixture()
	res := confirmedReservation(t, f, 10)
	ctx := context.Background()

	_, err := f.svc.Cancel(ctx, res.ID, "jamie@example.com", "", false)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, res.ID, "jamie@example.com", "", false)
	require.Error(t, err)
	assert.Equal(t, 1, f.payments.refundCalls, "refund must never run twice")
}

func TestCancelRefundFailureLeavesReservationIntact(t *testing.T) {
	f := newFixture()
	res := confirmedReservation(t, f, 10)
	f.payments.refundErr = errors.New("stripe unavailable")

	_, err := f.svc.Cancel(context.Background(), res.ID, "jamie@example.com", "", false)
	require.Error(t, err)
	assert.Equal(t, models.StatusConfirmed, f.db.reservations[res.ID].Status,
		"a failed refund must not cancel the reservation")
}

func TestCancelCompletedStay(t *testing.T) {
	f := newFixture()
	res := confirmedReservation(t, f, 10)
	ctx := context.Background()

	_, err := f.svc.Complete(ctx, res.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, res.ID, "jamie@example.com", "", false)
	assert.Error(t, err)
}

// ---------------- COMPLETE / EXPIRE ----------------

func TestCompleteRequiresConfirmed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	res, _ := f.svc.CreateReservation(ctx, request(futureDate(10), futureDate(13)))

	_, err := f.svc.Complete(ctx, res.ID)
	assert.Error(t, err, "holds cannot be completed")

	require.NoError(t, f.svc.ConfirmPayment(ctx, res.ID, "pi_123"))
	completed, err := f.svc.Complete(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, completed.Status)
}

func TestExpireStaleHolds(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	stale, _ := f.svc.CreateReservation(ctx, request(futureDate(10), futureDate(13)))
	paid, _ := f.svc.CreateReservation(ctx, request(futureDate(20), futureDate(23)))
	require.NoError(t, f.svc.ConfirmPayment(ctx, paid.ID, "pi_123"))

	// Age both past the hold timeout.
	for _, r := range f.db.reservations {
		r.CreatedAt = time.Now().Add(-time.Hour)
	}

	expired, err := f.svc.ExpireStaleHolds(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)
	assert.Equal(t, models.StatusCancelled, f.db.reservations[stale.ID].Status)
	assert.Equal(t, models.StatusConfirmed, f.db.reservations[paid.ID].Status)

	// Second sweep finds nothing.
	expired, err = f.svc.ExpireStaleHolds(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired)
}

// ---------------- DAMAGE / QR ----------------

func TestChargeDamage(t *testing.T) {
	f := newFixture()
	res := confirmedReservation(t, f, 10)
	res.StripeCustomerID = "cus_123"
	f.db.reservations[res.ID] = res

	charge, err := f.svc.ChargeDamage(context.Background(), res.ID, models.DamageChargeRequest{
		Amount:      120,
		Description: "broken lamp",
	})
	require.NoError(t, err)

	assert.Equal(t, 120.0, charge.Amount)
	assert.Equal(t, "pi_damage_123", charge.PaymentRef)
	assert.Equal(t, 120.0, f.payments.chargedAmount)
	require.Len(t, f.db.charges, 1)
	assert.Contains(t, f.notify.published, "staybook.damage.charged")
}

func TestChargeDamageRequiresSavedMethod(t *testing.T) {
	f := newFixture()
	res := confirmedReservation(t, f, 10)

	_, err := f.svc.ChargeDamage(context.Background(), res.ID, models.DamageChargeRequest{
		Amount:      120,
		Description: "broken lamp",
	})
	assert.Error(t, err, "no StripeCustomerID on file")
}

func TestChargeDamageRejectsHolds(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	res, _ := f.svc.CreateReservation(ctx, request(futureDate(10), futureDate(13)))

	_, err := f.svc.ChargeDamage(ctx, res.ID, models.DamageChargeRequest{Amount: 50, Description: "x"})
	assert.Error(t, err)
}

func TestCheckInQR(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	res, _ := f.svc.CreateReservation(ctx, request(futureDate(10), futureDate(13)))

	_, err := f.svc.CheckInQR(ctx, res.ID, "jamie@example.com")
	assert.Error(t, err, "holds have no check-in code")

	require.NoError(t, f.svc.ConfirmPayment(ctx, res.ID, "pi_123"))
	png, err := f.svc.CheckInQR(ctx, res.ID, "jamie@example.com")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), png)

	_, err = f.svc.CheckInQR(ctx, res.ID, "intruder@example.com")
	assert.Error(t, err)
}

func TestGetGuestReservationOwnership(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	res, _ := f.svc.CreateReservation(ctx, request(futureDate(10), futureDate(13)))

	found, err := f.svc.GetGuestReservation(ctx, res.ID, "JAMIE@example.com")
	require.NoError(t, err)
	assert.Equal(t, res.ID, found.ID)

	_, err = f.svc.GetGuestReservation(ctx, res.ID, "other@example.com")
	assert.Error(t, err)
}
